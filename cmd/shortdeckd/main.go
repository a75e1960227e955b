// shortdeckd runs the short-deck tournament server: event store, game
// supervisor, matchmaking queue, and the WebSocket gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sixplus/shortdeck/internal/config"
	"github.com/sixplus/shortdeck/internal/eventlog"
	"github.com/sixplus/shortdeck/internal/gateway"
	"github.com/sixplus/shortdeck/internal/metrics"
	"github.com/sixplus/shortdeck/internal/pubsub"
	"github.com/sixplus/shortdeck/internal/queue"
	"github.com/sixplus/shortdeck/internal/supervisor"
	"github.com/sixplus/shortdeck/internal/token"
)

var CLI struct {
	Config   string `short:"c" default:"shortdeckd.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Listen address (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	Store    string `short:"s" help:"Event store path (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.Store != "" {
		cfg.Server.StorePath = CLI.Store
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	log, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		kctx.Exit(1)
	}

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger(), nil
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := eventlog.OpenSQLite(cfg.Server.StorePath)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	bus := pubsub.New(log)
	signer := token.NewSigner(cfg.Server.TokenSecret)

	sup := supervisor.New(supervisor.Options{
		Store:            store,
		Bus:              bus,
		Metrics:          m,
		Log:              log,
		Grace:            time.Duration(cfg.Server.GraceShutdownMs) * time.Millisecond,
		SnapshotInterval: cfg.Game.SnapshotIntervalEvents,
	})
	if err := sup.RecoverAll(ctx); err != nil {
		return fmt.Errorf("recovering games: %w", err)
	}
	defer sup.Shutdown()

	q := queue.New(queue.Options{
		Supervisor:     sup,
		Signer:         signer,
		Bus:            bus,
		Metrics:        m,
		Log:            log,
		PlayersPerGame: cfg.Game.PlayersPerGame,
		StartingChips:  cfg.Game.StartingChips,
		SmallBlind:     cfg.Game.SmallBlind,
		BigBlind:       cfg.Game.BigBlind,
	})

	gw := gateway.New(gateway.Options{
		Addr:       cfg.Server.Address,
		Supervisor: sup,
		Queue:      q,
		Signer:     signer,
		Bus:        bus,
		Metrics:    m,
		Log:        log,
	})

	log.Info().
		Str("addr", cfg.Server.Address).
		Str("store", cfg.Server.StorePath).
		Int("players_per_game", cfg.Game.PlayersPerGame).
		Msg("shortdeckd starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gw.Run(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.Server.MetricsAddr, m, log) })
	return g.Wait()
}

// serveMetrics exposes the prometheus registry on its own listener, away
// from player traffic.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
