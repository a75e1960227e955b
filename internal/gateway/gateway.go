// Package gateway is the WebSocket edge of the server. It authenticates
// session tokens, feeds player commands to the matchmaking queue and the game
// actors, and relays each player's filtered snapshot stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sixplus/shortdeck/internal/metrics"
	"github.com/sixplus/shortdeck/internal/pubsub"
	"github.com/sixplus/shortdeck/internal/queue"
	"github.com/sixplus/shortdeck/internal/supervisor"
	"github.com/sixplus/shortdeck/internal/token"
)

// Options wires the gateway to the core.
type Options struct {
	Addr       string
	Supervisor *supervisor.Supervisor
	Queue      *queue.Queue
	Signer     *token.Signer
	Bus        *pubsub.Bus
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
}

// Server accepts WebSocket clients and serves health and metrics endpoints
// on the same listener.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	sup      *supervisor.Supervisor
	queue    *queue.Queue
	signer   *token.Signer
	bus      *pubsub.Bus
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu          sync.Mutex
	connections map[*Connection]struct{}
}

// New builds the gateway server.
func New(opts Options) *Server {
	return &Server{
		addr: opts.Addr,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sup:         opts.Supervisor,
		queue:       opts.Queue,
		signer:      opts.Signer,
		bus:         opts.Bus,
		metrics:     opts.Metrics,
		log:         opts.Log.With().Str("component", "gateway").Logger(),
		connections: make(map[*Connection]struct{}),
	}
}

// Handler returns the HTTP mux: /ws for clients, /health and /metrics for
// operators.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Run serves until ctx is cancelled, then closes every client connection.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.closeAll()
		if err := srv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("gateway shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConnection(ws, s)
	s.track(conn)
	conn.start()

	go func() {
		<-conn.ctx.Done()
		s.untrack(conn)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "OK")
}

func (s *Server) track(c *Connection) {
	s.mu.Lock()
	s.connections[c] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Connections.Inc()
	}
	s.log.Info().Int("total", total).Msg("client connected")
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	_, ok := s.connections[c]
	delete(s.connections, c)
	total := len(s.connections)
	s.mu.Unlock()
	if ok {
		if s.metrics != nil {
			s.metrics.Connections.Dec()
		}
		_ = c.Close()
		s.log.Info().Int("total", total).Msg("client disconnected")
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
