// Package token mints and verifies the signed session tokens handed to
// players when matchmaking seats them into a game.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken indicates the token is malformed or its signature does not
// verify.
var ErrInvalidToken = errors.New("token: invalid token")

// Identity is the claim set bound into a session token: which player may act
// in which game.
type Identity struct {
	GameID     string `json:"game_id"`
	PlayerName string `json:"player_name"`
}

// Signer mints and verifies tokens with an HMAC-SHA256 secret.
type Signer struct {
	secret []byte
}

// NewSigner returns a signer for the given shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Mint produces a token of the form payload.signature, both base64url.
func (s *Signer) Mint(id Identity) (string, error) {
	payload, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(encoded), nil
}

// Verify checks the signature and returns the embedded identity.
func (s *Signer) Verify(tok string) (Identity, error) {
	encoded, sig, ok := strings.Cut(tok, ".")
	if !ok || encoded == "" {
		return Identity{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(s.sign(encoded)), []byte(sig)) {
		return Identity{}, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	var id Identity
	if err := json.Unmarshal(payload, &id); err != nil {
		return Identity{}, ErrInvalidToken
	}
	if id.GameID == "" || id.PlayerName == "" {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

func (s *Signer) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
