// Package api serves the REST and WebSocket surface of the signal
// engine: latest and recent signals per symbol, the current indicator
// snapshot, strategy administration, and a live signal stream fed from
// the Redis pub/sub channels.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jpillora/backoff"

	"perpsignals/internal/indicator"
	"perpsignals/internal/logger"
	"perpsignals/internal/metrics"
	"perpsignals/internal/model"
	"perpsignals/internal/scoring"
	"perpsignals/internal/strategy"
	redisstore "perpsignals/internal/store/redis"
)

// SignalStore reads published signals. *redisstore.Reader implements it.
type SignalStore interface {
	LatestSignal(ctx context.Context, symbol string) (*model.SignalOutput, error)
	RecentSignals(ctx context.Context, symbol string, count int64) ([]model.SignalOutput, error)
	SubscribeSignals(ctx context.Context) (*goredis.PubSub, error)
}

// StrategyAdmin manages the active strategy set.
type StrategyAdmin interface {
	Strategies() []*strategy.Strategy
	UpsertStrategy(ctx context.Context, raw []byte) (*strategy.Strategy, error)
	RemoveStrategy(ctx context.Context, name string) error
}

// SnapshotSource exposes the last computed indicator state per symbol.
type SnapshotSource interface {
	Snapshot(symbol string) (SnapshotView, bool)
}

// SnapshotView is one symbol's most recent evaluation state.
type SnapshotView struct {
	Symbol   string
	Price    float64
	TS       time.Time
	Snap     *indicator.Snapshot
	Category scoring.Result
}

// Deps carries everything the API handlers need. Signals may be nil in
// tests; the live feed is skipped then.
type Deps struct {
	Metrics    *metrics.Metrics
	Signals    SignalStore
	Snapshots  SnapshotSource
	Strategies StrategyAdmin
	TOTPSecret string
	Symbols    []string
}

// Server is the public HTTP server. Start is non-blocking; Stop shuts
// the listener down and stops the signal feed.
type Server struct {
	addr  string
	deps  Deps
	hub   *Hub
	mux   *http.ServeMux
	srv   *http.Server
	start time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer builds the server and registers all routes.
func NewServer(addr string, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:   addr,
		deps:   deps,
		hub:    NewHub(),
		mux:    http.NewServeMux(),
		start:  time.Now(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start launches the HTTP listener and the signal feed loop.
func (s *Server) Start() {
	if s.deps.Signals != nil {
		go s.feedLoop(s.ctx)
	}
	go func() {
		slog.Info("api server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("api server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) {
	s.cancel()
	s.srv.Shutdown(ctx)
}

// feedLoop subscribes to the signal pub/sub channels and fans messages
// out to WebSocket clients, resubscribing with backoff after failures.
func (s *Server) feedLoop(ctx context.Context) {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Jitter: true}
	for {
		pubsub, err := s.deps.Signals.SubscribeSignals(ctx)
		if err != nil {
			slog.Warn("signal subscribe failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.Duration()):
			}
			continue
		}
		b.Reset()
		s.consume(ctx, pubsub)
		pubsub.Close()
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Server) consume(ctx context.Context, pubsub *goredis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			symbol := strings.TrimPrefix(msg.Channel, redisstore.SignalChannelPrefix)
			s.hub.Broadcast(symbol, []byte(msg.Payload))
		}
	}
}

// setCORS sets CORS headers for REST endpoints.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-TOTP-Code")
}

// wrap applies CORS, request metrics and trace ID propagation to a
// REST handler.
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if m := s.deps.Metrics; m != nil {
			start := time.Now()
			m.HTTPInFlight.Inc()
			defer func() {
				m.HTTPInFlight.Dec()
				m.HTTPRequestsTotal.Inc()
				m.HTTPRequestDur.Observe(time.Since(start).Seconds())
			}()
		}
		ctx := logger.WithTraceID(r.Context(), logger.NewTraceID())
		h(w, r.WithContext(ctx))
	}
}
