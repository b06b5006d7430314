// Package metrics exposes Prometheus instrumentation and the
// /metrics + /healthz endpoints for the signal engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	// Evaluation loop
	EvaluationsTotal  prometheus.Counter
	EvaluationDur     prometheus.Histogram
	EvaluationsActive prometheus.Gauge
	EvaluationErrors  prometheus.Counter

	// Emitted signals
	SignalsTotal         *prometheus.CounterVec // labels: direction
	SignalsSuppressed    *prometheus.CounterVec // labels: reason
	IndicatorUnavailable *prometheus.CounterVec // labels: indicator

	// Market data
	ProviderFetchDur    prometheus.Histogram
	ProviderFetchErrors prometheus.Counter
	CandleLag           prometheus.Gauge

	// Stores
	SQLiteWriteDur       prometheus.Histogram
	RedisPublishDur      prometheus.Histogram
	RedisBreakerState    prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBreakerTrips    prometheus.Counter
	RedisBufferedSignals prometheus.Gauge

	// API
	HTTPRequestsTotal prometheus.Counter
	HTTPRequestDur    prometheus.Histogram
	HTTPInFlight      prometheus.Gauge

	ActiveStrategies prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_signal_evaluations_total",
			Help: "Total signal evaluations performed",
		}),
		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_signal_evaluation_duration_seconds",
			Help:    "Signal evaluation latency (snapshot + aggregation + decision)",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		EvaluationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_signal_evaluations_active",
			Help: "Evaluations currently in progress",
		}),
		EvaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_signal_evaluation_errors_total",
			Help: "Evaluations that failed (bad series or strategy)",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_signals_total",
			Help: "Signals emitted to sinks (by direction)",
		}, []string{"direction"}),
		SignalsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_signals_suppressed_total",
			Help: "Signals withheld from sinks (low_confidence, duplicate)",
		}, []string{"reason"}),
		IndicatorUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_indicator_unavailable_total",
			Help: "Indicator omitted from a snapshot for lack of history (by indicator)",
		}, []string{"indicator"}),

		ProviderFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_provider_fetch_duration_seconds",
			Help:    "Candle history fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		ProviderFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_provider_fetch_errors_total",
			Help: "Candle history fetches that failed",
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_candle_lag_seconds",
			Help: "Age of the newest candle at evaluation time",
		}),

		SQLiteWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_sqlite_write_duration_seconds",
			Help:    "SQLite signal write latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_redis_publish_duration_seconds",
			Help:    "Redis signal publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_redis_buffered_signals",
			Help: "Signals currently buffered locally awaiting Redis recovery",
		}),

		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_http_requests_total",
			Help: "Total HTTP requests served by the API",
		}),
		HTTPRequestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_http_requests_in_flight",
			Help: "HTTP requests currently being processed",
		}),

		ActiveStrategies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_active_strategies",
			Help: "Strategies currently loaded for evaluation",
		}),
	}

	prometheus.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationDur,
		m.EvaluationsActive,
		m.EvaluationErrors,
		m.SignalsTotal,
		m.SignalsSuppressed,
		m.IndicatorUnavailable,
		m.ProviderFetchDur,
		m.ProviderFetchErrors,
		m.CandleLag,
		m.SQLiteWriteDur,
		m.RedisPublishDur,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
		m.RedisBufferedSignals,
		m.HTTPRequestsTotal,
		m.HTTPRequestDur,
		m.HTTPInFlight,
		m.ActiveStrategies,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	Provider       string
	ProviderOK     bool
	LastEvalTime   time.Time
	RedisConnected bool
	SQLiteOK       bool
	Symbols        []string

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetProvider(name string) {
	h.mu.Lock()
	h.Provider = name
	h.mu.Unlock()
}

func (h *HealthStatus) SetProviderOK(v bool) {
	h.mu.Lock()
	h.ProviderOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEvalTime(t time.Time) {
	h.mu.Lock()
	h.LastEvalTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.ProviderOK || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Eval age
	evalAge := ""
	if !h.LastEvalTime.IsZero() {
		evalAge = time.Since(h.LastEvalTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		Provider        string   `json:"provider"`
		ProviderOK      bool     `json:"provider_ok"`
		LastEvalTime    string   `json:"last_eval_time"`
		EvalAge         string   `json:"eval_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Provider:        h.Provider,
		ProviderOK:      h.ProviderOK,
		LastEvalTime:    h.LastEvalTime.Format(time.RFC3339),
		EvalAge:         evalAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
