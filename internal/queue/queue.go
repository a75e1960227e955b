// Package queue is the global matchmaking queue. Players join in FIFO order;
// once players_per_game waiters are present the queue peels them off, asks
// the supervisor for a new game, and hands each seated player a signed
// session token over their private topic.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/sixplus/shortdeck/internal/metrics"
	"github.com/sixplus/shortdeck/internal/pubsub"
	"github.com/sixplus/shortdeck/internal/supervisor"
	"github.com/sixplus/shortdeck/internal/token"
)

var (
	ErrEmptyName     = errors.New("invalid_input: player name required")
	ErrAlreadyQueued = errors.New("invalid_input: player already queued")
	ErrNotQueued     = errors.New("player_not_found: not in queue")
)

// Waiter is one queued player.
type Waiter struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// GameReady is the payload published to each seated player when their game
// starts.
type GameReady struct {
	GameID string `json:"game_id"`
	Token  string `json:"token"`
}

// StatusUpdate is broadcast on the game_queue topic after every join and
// leave.
type StatusUpdate struct {
	Depth   int      `json:"depth"`
	Waiters []string `json:"waiters"`
}

// Options configures a Queue.
type Options struct {
	Supervisor     *supervisor.Supervisor
	Signer         *token.Signer
	Bus            *pubsub.Bus
	Metrics        *metrics.Metrics
	Log            zerolog.Logger
	Clock          quartz.Clock
	PlayersPerGame int
	StartingChips  int
	SmallBlind     int
	BigBlind       int
}

// Queue pairs waiting players into games.
type Queue struct {
	sup     *supervisor.Supervisor
	signer  *token.Signer
	bus     *pubsub.Bus
	metrics *metrics.Metrics
	log     zerolog.Logger
	clock   quartz.Clock

	playersPerGame int
	startingChips  int
	smallBlind     int
	bigBlind       int

	mu      sync.Mutex
	waiters []Waiter
}

// New builds the queue. A nil clock gets the real one.
func New(opts Options) *Queue {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Queue{
		sup:            opts.Supervisor,
		signer:         opts.Signer,
		bus:            opts.Bus,
		metrics:        opts.Metrics,
		log:            opts.Log.With().Str("component", "queue").Logger(),
		clock:          opts.Clock,
		playersPerGame: opts.PlayersPerGame,
		startingChips:  opts.StartingChips,
		smallBlind:     opts.SmallBlind,
		bigBlind:       opts.BigBlind,
	}
}

// Join adds a player to the back of the queue. When enough players are
// waiting, the front of the queue is seated into a new game. A failed game
// creation keeps every waiter queued.
func (q *Queue) Join(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, w := range q.waiters {
		if w.Name == name {
			return ErrAlreadyQueued
		}
	}
	q.waiters = append(q.waiters, Waiter{Name: name, JoinedAt: q.clock.Now()})
	q.log.Debug().Str("player", name).Int("depth", len(q.waiters)).Msg("player joined queue")

	if len(q.waiters) >= q.playersPerGame {
		q.seatBatch(ctx)
	}
	q.publishStatus()
	return nil
}

// Leave removes a player from the queue.
func (q *Queue) Leave(name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, w := range q.waiters {
		if w.Name == name {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			q.log.Debug().Str("player", name).Int("depth", len(q.waiters)).Msg("player left queue")
			q.publishStatus()
			return nil
		}
	}
	return ErrNotQueued
}

// Status returns the current waiters in queue order.
func (q *Queue) Status() []Waiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Waiter(nil), q.waiters...)
}

// seatBatch peels players_per_game waiters from the front and starts their
// game. Called with the lock held.
func (q *Queue) seatBatch(ctx context.Context) {
	batch := q.waiters[:q.playersPerGame]
	names := make([]string, len(batch))
	for i, w := range batch {
		names[i] = w.Name
	}

	id, err := q.sup.CreateGame(ctx, supervisor.GameParams{
		Players:       names,
		StartingChips: q.startingChips,
		SmallBlind:    q.smallBlind,
		BigBlind:      q.bigBlind,
	})
	if err != nil {
		// Waiters stay queued; the next join retries.
		q.log.Error().Err(err).Strs("players", names).Msg("game creation failed, keeping waiters")
		return
	}

	q.waiters = append([]Waiter(nil), q.waiters[q.playersPerGame:]...)

	for _, name := range names {
		tok, err := q.signer.Mint(token.Identity{GameID: id, PlayerName: name})
		if err != nil {
			q.log.Error().Err(err).Str("player", name).Msg("token mint failed")
			continue
		}
		q.bus.Publish(pubsub.Message{
			Topic:   "player:" + name,
			Kind:    "game_ready",
			Payload: GameReady{GameID: id, Token: tok},
		})
	}
	q.log.Info().Str("game_id", id).Strs("players", names).Msg("queue seated game")
}

// publishStatus broadcasts the queue state on the game_queue topic. Called
// with the lock held.
func (q *Queue) publishStatus() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.waiters)))
	}
	if q.bus == nil {
		return
	}
	names := make([]string, len(q.waiters))
	for i, w := range q.waiters {
		names[i] = w.Name
	}
	q.bus.Publish(pubsub.Message{
		Topic:   "game_queue",
		Kind:    "queue_status",
		Payload: StatusUpdate{Depth: len(names), Waiters: names},
	})
}
