// Package supervisor owns the registry of running games. It creates game
// actors, restarts them from the event log when they crash, and recovers
// every unfinished game at boot.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/sixplus/shortdeck/internal/actor"
	"github.com/sixplus/shortdeck/internal/eventlog"
	"github.com/sixplus/shortdeck/internal/game"
	"github.com/sixplus/shortdeck/internal/gameid"
	"github.com/sixplus/shortdeck/internal/metrics"
	"github.com/sixplus/shortdeck/internal/pubsub"
)

const maxPlayers = 10

var (
	ErrNoPlayers      = errors.New("invalid_input: no players")
	ErrTooFewPlayers  = errors.New("invalid_input: at least 2 players required")
	ErrTooManyPlayers = errors.New("invalid_input: at most 10 players allowed")
	ErrDuplicateName  = errors.New("invalid_input: duplicate player name")
	ErrInvalidChips   = errors.New("invalid_input: starting chips must be positive")
	ErrInvalidGameID  = errors.New("invalid_input: malformed game id")
	ErrDuplicateGame  = errors.New("invalid_input: game id already exists")
)

// GameParams describes a game to create. An empty ID gets a generated one.
type GameParams struct {
	ID            string
	Players       []string
	StartingChips int
	SmallBlind    int
	BigBlind      int
	Seed          int64
}

// Supervisor runs and watches game actors.
type Supervisor struct {
	store            eventlog.Store
	bus              *pubsub.Bus
	metrics          *metrics.Metrics
	log              zerolog.Logger
	clock            quartz.Clock
	grace            time.Duration
	snapshotInterval int

	mu sync.RWMutex
	// games holds running actors; creating reserves ids whose first event is
	// still being persisted, so concurrent creates cannot share an id.
	games    map[string]*handle
	creating map[string]struct{}
	wg       sync.WaitGroup
}

type handle struct {
	actor  *actor.Actor
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a Supervisor.
type Options struct {
	Store            eventlog.Store
	Bus              *pubsub.Bus
	Metrics          *metrics.Metrics
	Log              zerolog.Logger
	Clock            quartz.Clock
	Grace            time.Duration
	SnapshotInterval int
}

// New builds a supervisor. A nil clock gets the real one.
func New(opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Supervisor{
		store:            opts.Store,
		bus:              opts.Bus,
		metrics:          opts.Metrics,
		log:              opts.Log.With().Str("component", "supervisor").Logger(),
		clock:            opts.Clock,
		grace:            opts.Grace,
		snapshotInterval: opts.SnapshotInterval,
		games:            make(map[string]*handle),
		creating:         make(map[string]struct{}),
	}
}

// CreateGame validates params, persists the new game's creation event, and
// starts its actor. It returns the game id.
func (s *Supervisor) CreateGame(ctx context.Context, p GameParams) (string, error) {
	switch {
	case len(p.Players) == 0:
		return "", ErrNoPlayers
	case len(p.Players) < 2:
		return "", ErrTooFewPlayers
	case len(p.Players) > maxPlayers:
		return "", ErrTooManyPlayers
	case p.StartingChips <= 0:
		return "", ErrInvalidChips
	}
	seen := make(map[string]bool, len(p.Players))
	for _, name := range p.Players {
		if name == "" || seen[name] {
			return "", fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		seen[name] = true
	}

	id := p.ID
	if id == "" {
		id = gameid.Generate()
	} else if err := gameid.Validate(id); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidGameID, err)
	}

	if err := s.reserve(id); err != nil {
		return "", err
	}

	players := make([]game.Player, len(p.Players))
	for i, name := range p.Players {
		players[i] = game.Player{ID: name, Seat: i, Chips: p.StartingChips}
	}

	cfg := actor.Config{
		GameID:           id,
		Players:          players,
		SmallBlind:       p.SmallBlind,
		BigBlind:         p.BigBlind,
		SnapshotInterval: s.snapshotInterval,
		Store:            s.store,
		Bus:              s.bus,
		Metrics:          s.metrics,
		Log:              s.log,
		Seed:             p.Seed,
	}
	a, err := actor.New(ctx, cfg)
	if err != nil {
		s.release(id)
		return "", err
	}

	s.launch(id, a, cfg)
	s.log.Info().Str("game_id", id).Int("players", len(players)).Msg("game created")
	return id, nil
}

// RecoverAll resumes every unfinished game found in the store. Called once
// at boot.
func (s *Supervisor) RecoverAll(ctx context.Context) error {
	ids, err := s.store.OpenGames(ctx)
	if err != nil {
		return fmt.Errorf("scanning open games: %w", err)
	}

	for _, id := range ids {
		start := time.Now()
		res, err := eventlog.Recover(ctx, s.store, id)
		if err != nil {
			s.log.Error().Err(err).Str("game_id", id).Msg("recovery failed, skipping game")
			continue
		}
		if s.metrics != nil {
			s.metrics.ReplayDuration.Observe(time.Since(start).Seconds())
		}
		if res.Ended {
			continue
		}

		cfg := actor.Config{
			GameID:           id,
			SnapshotInterval: s.snapshotInterval,
			Store:            s.store,
			Bus:              s.bus,
			Metrics:          s.metrics,
			Log:              s.log,
		}
		s.launch(id, actor.Resume(cfg, res), cfg)
		s.log.Info().Str("game_id", id).Uint64("last_seq", res.LastSeq).Msg("game recovered")
	}
	return nil
}

// reserve claims a game id before its first event is persisted.
func (s *Supervisor) reserve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, id)
	}
	if _, exists := s.creating[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, id)
	}
	s.creating[id] = struct{}{}
	return nil
}

func (s *Supervisor) release(id string) {
	s.mu.Lock()
	delete(s.creating, id)
	s.mu.Unlock()
}

// launch registers the actor and runs it under crash supervision.
func (s *Supervisor) launch(id string, a *actor.Actor, cfg actor.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{actor: a, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	delete(s.creating, id)
	s.games[id] = h
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.GamesActive.Inc()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)
		defer func() {
			s.mu.Lock()
			delete(s.games, id)
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.GamesActive.Dec()
			}
		}()

		current := a
		for {
			panicked := s.runOnce(ctx, current)
			if !panicked || ctx.Err() != nil {
				return
			}

			// Crashed: rebuild from the log and go again. Everything the
			// actor applied was persisted first, so nothing is lost.
			if s.metrics != nil {
				s.metrics.GameRestarts.Inc()
			}
			res, err := eventlog.Recover(ctx, s.store, id)
			if err != nil {
				s.log.Error().Err(err).Str("game_id", id).Msg("restart recovery failed, giving up")
				return
			}
			if res.Ended {
				return
			}
			current = actor.Resume(cfg, res)
			h.actor = current
			s.log.Warn().Str("game_id", id).Uint64("last_seq", res.LastSeq).Msg("game actor restarted")
		}
	}()
}

// runOnce runs the actor, converting a panic into a restart signal.
func (s *Supervisor) runOnce(ctx context.Context, a *actor.Actor) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.log.Error().Interface("panic", r).Msg("game actor panicked")
		}
	}()
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Msg("game actor exited with error")
	}
	return false
}

// Get returns the running actor for a game id.
func (s *Supervisor) Get(id string) (*actor.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.games[id]
	if !ok {
		return nil, game.ErrGameNotFound
	}
	return h.actor, nil
}

// List returns the ids of all running games.
func (s *Supervisor) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	return ids
}

// Terminate stops one game, giving it the grace period to finish naturally
// before cancelling.
func (s *Supervisor) Terminate(id string) error {
	s.mu.RLock()
	h, ok := s.games[id]
	s.mu.RUnlock()
	if !ok {
		return game.ErrGameNotFound
	}

	graceOver := make(chan struct{})
	timer := s.clock.AfterFunc(s.grace, func() { close(graceOver) })
	defer timer.Stop()

	select {
	case <-h.actor.Ended():
	case <-h.done:
	case <-graceOver:
	}
	h.cancel()
	<-h.done
	return nil
}

// Shutdown stops every game and waits for the actors to exit.
func (s *Supervisor) Shutdown() {
	s.mu.RLock()
	handles := make([]*handle, 0, len(s.games))
	for _, h := range s.games {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	for _, h := range handles {
		h.cancel()
	}
	s.wg.Wait()
}
