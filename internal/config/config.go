// Package config loads server configuration from HCL files.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Game   GameSettings   `hcl:"game,block"`
}

// ServerSettings holds process-level settings.
type ServerSettings struct {
	Address     string `hcl:"address,optional"`
	MetricsAddr string `hcl:"metrics_address,optional"`
	LogLevel    string `hcl:"log_level,optional"`
	StorePath   string `hcl:"store_path,optional"`
	TokenSecret string `hcl:"token_secret,optional"`
	// GraceShutdownMs bounds how long a stopping game waits for its current
	// hand to finish before cutting it off.
	GraceShutdownMs int `hcl:"grace_shutdown_ms,optional"`
}

// GameSettings holds the tournament parameters applied to every game the
// matchmaker creates.
type GameSettings struct {
	PlayersPerGame int `hcl:"players_per_game,optional"`
	StartingChips  int `hcl:"starting_chips,optional"`
	SmallBlind     int `hcl:"small_blind,optional"`
	BigBlind       int `hcl:"big_blind,optional"`
	// SnapshotIntervalEvents is how many events between state snapshots in
	// the event log.
	SnapshotIntervalEvents int `hcl:"snapshot_interval_events,optional"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:         "localhost:8080",
			MetricsAddr:     "localhost:9090",
			LogLevel:        "info",
			StorePath:       "shortdeck.db",
			TokenSecret:     "dev-secret-change-me",
			GraceShutdownMs: 5000,
		},
		Game: GameSettings{
			PlayersPerGame:         2,
			StartingChips:          1000,
			SmallBlind:             10,
			BigBlind:               20,
			SnapshotIntervalEvents: 100,
		},
	}
}

// Load reads configuration from an HCL file, falling back to defaults when
// the file does not exist.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Parse decodes configuration from an in-memory HCL document.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = def.Server.MetricsAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Server.StorePath == "" {
		c.Server.StorePath = def.Server.StorePath
	}
	if c.Server.TokenSecret == "" {
		c.Server.TokenSecret = def.Server.TokenSecret
	}
	if c.Server.GraceShutdownMs == 0 {
		c.Server.GraceShutdownMs = def.Server.GraceShutdownMs
	}
	if c.Game.PlayersPerGame == 0 {
		c.Game.PlayersPerGame = def.Game.PlayersPerGame
	}
	if c.Game.StartingChips == 0 {
		c.Game.StartingChips = def.Game.StartingChips
	}
	if c.Game.SmallBlind == 0 {
		c.Game.SmallBlind = def.Game.SmallBlind
	}
	if c.Game.BigBlind == 0 {
		c.Game.BigBlind = def.Game.BigBlind
	}
	if c.Game.SnapshotIntervalEvents == 0 {
		c.Game.SnapshotIntervalEvents = def.Game.SnapshotIntervalEvents
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Game.PlayersPerGame < 2 || c.Game.PlayersPerGame > 10 {
		return fmt.Errorf("players_per_game must be between 2 and 10, got %d", c.Game.PlayersPerGame)
	}
	if c.Game.StartingChips <= 0 {
		return fmt.Errorf("starting_chips must be positive, got %d", c.Game.StartingChips)
	}
	if c.Game.SmallBlind <= 0 {
		return fmt.Errorf("small_blind must be positive, got %d", c.Game.SmallBlind)
	}
	if c.Game.BigBlind <= c.Game.SmallBlind {
		return fmt.Errorf("big_blind (%d) must be greater than small_blind (%d)", c.Game.BigBlind, c.Game.SmallBlind)
	}
	if c.Game.StartingChips < c.Game.BigBlind {
		return fmt.Errorf("starting_chips (%d) must cover at least the big blind (%d)", c.Game.StartingChips, c.Game.BigBlind)
	}
	if c.Game.SnapshotIntervalEvents < 1 {
		return fmt.Errorf("snapshot_interval_events must be at least 1, got %d", c.Game.SnapshotIntervalEvents)
	}
	if c.Server.GraceShutdownMs < 0 {
		return fmt.Errorf("grace_shutdown_ms must not be negative, got %d", c.Server.GraceShutdownMs)
	}
	return nil
}
