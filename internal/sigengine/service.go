package sigengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"perpsignals/config"
	"perpsignals/internal/api"
	"perpsignals/internal/decision"
	"perpsignals/internal/indicator"
	"perpsignals/internal/marketdata/binance"
	"perpsignals/internal/marketdata/hyperliquid"
	"perpsignals/internal/marketdata/sim"
	"perpsignals/internal/metrics"
	"perpsignals/internal/model"
	"perpsignals/internal/notification"
	"perpsignals/internal/scoring"
	"perpsignals/internal/strategy"
	influxstore "perpsignals/internal/store/influx"
	redisstore "perpsignals/internal/store/redis"
	sqlitestore "perpsignals/internal/store/sqlite"
	hl "perpsignals/pkg/hyperliquid"
)

// streamingSource is implemented by providers that keep a live window
// fed from a stream and need to be started (hyperliquid). REST and
// simulated providers build windows on demand.
type streamingSource interface {
	Start(ctx context.Context, symbols []string) error
}

// Service is the top-level orchestrator for the signal engine.
// It wires all dependencies, manages lifecycle, and runs the periodic
// evaluation loop.
type Service struct {
	cfg    Config
	tuning config.Tuning

	provider model.CandleSource
	engine   *indicator.Engine

	sqlWriter   *sqlitestore.Writer
	redisWriter *redisstore.Writer
	redisReader *redisstore.Reader
	breaker     *redisstore.CircuitBreaker
	publisher   *redisstore.BufferedPublisher
	influx      *influxstore.Writer
	notify      *notification.Fanout

	prom       *metrics.Metrics
	health     *metrics.HealthStatus
	metricsSrv *metrics.Server
	apiSrv     *api.Server

	minConfidence float64

	mu         sync.RWMutex
	stored     map[string]*strategy.Strategy // persisted configs by name
	strategies []*strategy.Strategy          // effective active set
	snapshots  map[string]api.SnapshotView

	// evaluation-loop state, touched only by the loop goroutine
	lastDir  map[string]model.Direction
	lastArch map[string]time.Time
}

// New creates a new Service from the given Config. It builds the
// provider and connects the stores; InfluxDB and notifiers are
// optional, SQLite and Redis are not.
func New(cfg Config) (*Service, error) {
	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:           cfg,
		tuning:        tuning,
		engine:        indicator.NewEngine(tuning.Indicator),
		prom:          metrics.NewMetrics(),
		health:        metrics.NewHealthStatus(),
		minConfidence: tuning.MinConfidence,
		stored:        make(map[string]*strategy.Strategy),
		snapshots:     make(map[string]api.SnapshotView),
		lastDir:       make(map[string]model.Direction),
		lastArch:      make(map[string]time.Time),
	}
	if cfg.MinConfidence >= 0 {
		svc.minConfidence = cfg.MinConfidence
	}

	svc.provider, err = NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	svc.health.SetProvider(svc.provider.Name())
	svc.health.SetSymbols(cfg.Symbols)

	// ---- Open SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:      cfg.SQLitePath,
		KeepSignals: cfg.SignalKeep,
		KeepCandles: cfg.CandleKeep,
	})
	if err != nil {
		return nil, err
	}

	// ---- Connect to Redis ----
	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		svc.sqlWriter.Close()
		return nil, err
	}
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		svc.redisWriter.Close()
		svc.sqlWriter.Close()
		return nil, err
	}

	svc.breaker = redisstore.NewCircuitBreaker(5, 30*time.Second)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisBreakerTrips.Inc()
		}
	}

	// ---- Optional sinks ----
	if cfg.InfluxURL != "" {
		svc.influx, err = influxstore.New(influxstore.WriterConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		})
		if err != nil {
			slog.Warn("influx sink disabled", "error", err)
			svc.influx = nil
		}
	}

	var notifiers []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if len(notifiers) > 0 {
		svc.notify = notification.NewFanout(notifiers, 10*time.Second)
	}

	// ---- Servers ----
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health)
	svc.apiSrv = api.NewServer(cfg.APIAddr, api.Deps{
		Metrics:    svc.prom,
		Signals:    svc.redisReader,
		Snapshots:  svc,
		Strategies: svc,
		TOTPSecret: cfg.AdminTOTPSecret,
		Symbols:    cfg.Symbols,
	})

	return svc, nil
}

// NewProvider builds the candle source named by cfg.Provider. The sim
// provider accepts an optional scenario suffix, e.g. "sim:downtrend".
func NewProvider(cfg Config) (model.CandleSource, error) {
	name, arg, _ := strings.Cut(cfg.Provider, ":")
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sim":
		scenario, err := sim.ParseScenario(arg)
		if err != nil {
			return nil, err
		}
		secs, ok := hl.IntervalSeconds(cfg.CandleInterval)
		if !ok {
			return nil, fmt.Errorf("sigengine: unsupported candle interval %q", cfg.CandleInterval)
		}
		return sim.New(sim.Config{Scenario: scenario, Interval: time.Duration(secs) * time.Second})
	case "binance":
		return binance.New(binance.Config{
			APIKey:    cfg.BinanceAPIKey,
			APISecret: cfg.BinanceAPISecret,
			Testnet:   cfg.BinanceTestnet,
			Interval:  cfg.CandleInterval,
		})
	case "hyperliquid":
		return hyperliquid.New(hyperliquid.Config{
			APIURL:   cfg.HyperliquidAPIURL,
			WSURL:    cfg.HyperliquidWSURL,
			Interval: cfg.CandleInterval,
			Window:   cfg.HistoryBars,
		})
	}
	return nil, fmt.Errorf("sigengine: unknown provider %q", cfg.Provider)
}

// Run starts all subsystems and blocks until ctx is cancelled or a
// subsystem fails.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	slog.Info("starting signal engine",
		"provider", svc.provider.Name(),
		"symbols", cfg.Symbols,
		"eval_interval", cfg.EvalInterval,
		"history_bars", cfg.HistoryBars,
		"min_confidence", svc.minConfidence,
	)

	svc.loadStrategies(ctx)
	svc.publisher = redisstore.NewBufferedPublisher(ctx, svc.redisWriter, svc.breaker, 1000)

	g, gctx := errgroup.WithContext(ctx)
	if src, ok := svc.provider.(streamingSource); ok {
		g.Go(func() error {
			return src.Start(gctx, cfg.Symbols)
		})
	}
	g.Go(func() error {
		svc.evalLoop(gctx)
		return nil
	})

	svc.metricsSrv.Start()
	svc.apiSrv.Start()
	svc.health.StartLivenessChecker(gctx, svc.redisWriter.Client(), svc.sqlWriter.DB(), 15*time.Second)

	notifiers := 0
	if svc.notify != nil {
		notifiers = svc.notify.Len()
	}
	slog.Info("signal engine active",
		"strategies", len(svc.Strategies()),
		"sqlite", cfg.SQLitePath,
		"redis", cfg.RedisAddr,
		"influx", svc.influx != nil,
		"notifiers", notifiers,
		"api", cfg.APIAddr,
		"metrics", cfg.MetricsAddr,
	)

	err := g.Wait()
	svc.shutdown()
	return err
}

// shutdown stops the servers and closes stores in reverse start order.
func (svc *Service) shutdown() {
	slog.Info("shutting down signal engine")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc.apiSrv.Stop(shutCtx)
	svc.metricsSrv.Stop(shutCtx)

	if svc.publisher != nil {
		if n := svc.publisher.PendingCount(); n > 0 {
			slog.Warn("discarding buffered signals", "count", n)
		}
		svc.publisher.Close()
	} else {
		svc.redisWriter.Close()
	}
	svc.redisReader.Close()
	if svc.influx != nil {
		svc.influx.Close()
	}
	svc.sqlWriter.Close()

	slog.Info("shutdown complete")
}

// evalLoop runs one evaluation pass immediately and then on every tick.
func (svc *Service) evalLoop(ctx context.Context) {
	svc.evalAll(ctx)
	ticker := time.NewTicker(svc.cfg.EvalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.evalAll(ctx)
		}
	}
}

// evalAll evaluates every configured symbol once.
func (svc *Service) evalAll(ctx context.Context) {
	for _, symbol := range svc.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		svc.evalSymbol(ctx, symbol)
	}
	svc.health.SetLastEvalTime(time.Now())
	svc.prom.RedisBufferedSignals.Set(float64(svc.publisher.PendingCount()))
}

// evalSymbol fetches the candle window for one symbol and runs the
// category path plus every applicable strategy over it.
func (svc *Service) evalSymbol(ctx context.Context, symbol string) {
	svc.prom.EvaluationsActive.Inc()
	start := time.Now()
	defer func() {
		svc.prom.EvaluationDur.Observe(time.Since(start).Seconds())
		svc.prom.EvaluationsActive.Dec()
	}()

	window, err := svc.fetchWindow(ctx, symbol)
	if err != nil {
		svc.prom.EvaluationErrors.Inc()
		slog.Warn("candle fetch failed", "symbol", symbol, "error", err)
		return
	}
	if len(window) == 0 {
		svc.prom.EvaluationsTotal.Inc()
		slog.Debug("no candles yet", "symbol", symbol)
		return
	}
	if err := model.ValidateSeries(window); err != nil {
		svc.prom.EvaluationErrors.Inc()
		slog.Warn("malformed candle window", "symbol", symbol, "error", err)
		return
	}

	last := window[len(window)-1]
	svc.prom.CandleLag.Set(time.Since(last.TS).Seconds())
	svc.archiveCandles(ctx, symbol, window)

	if len(window) < svc.cfg.MinCandles {
		svc.prom.EvaluationsTotal.Inc()
		slog.Debug("insufficient candles", "symbol", symbol, "have", len(window), "want", svc.cfg.MinCandles)
		return
	}

	snap := svc.engine.Compute(window)
	for _, id := range snap.Unavailable() {
		svc.prom.IndicatorUnavailable.WithLabelValues(string(id)).Inc()
	}
	agg := scoring.Aggregate(snap)
	svc.setSnapshot(symbol, last, snap, agg)

	svc.route(ctx, decision.FromCategories(agg, snap, symbol, last.Close, last.TS, svc.tuning.Decision))
	svc.prom.EvaluationsTotal.Inc()

	for _, st := range svc.strategiesFor(symbol) {
		sig, err := Evaluate(window, st, svc.tuning)
		if err != nil {
			svc.prom.EvaluationErrors.Inc()
			slog.Warn("strategy evaluation failed", "symbol", symbol, "strategy", st.Name, "error", err)
			continue
		}
		svc.route(ctx, sig)
		svc.prom.EvaluationsTotal.Inc()
	}
}

func (svc *Service) fetchWindow(ctx context.Context, symbol string) ([]model.Candle, error) {
	start := time.Now()
	window, err := svc.provider.History(ctx, symbol, svc.cfg.HistoryBars)
	svc.prom.ProviderFetchDur.Observe(time.Since(start).Seconds())
	if err != nil {
		svc.prom.ProviderFetchErrors.Inc()
		svc.health.SetProviderOK(false)
		return nil, err
	}
	svc.health.SetProviderOK(true)
	return window, nil
}

// archiveCandles upserts the window's new bars into the SQLite archive.
// The previously newest bar is re-written so a forming bar gets its
// final values once it closes.
func (svc *Service) archiveCandles(ctx context.Context, symbol string, window []model.Candle) {
	since := svc.lastArch[symbol]
	first := len(window)
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].TS.Before(since) {
			break
		}
		first = i
	}
	if first == len(window) {
		return
	}
	if err := svc.sqlWriter.ArchiveCandles(ctx, window[first:]); err != nil {
		slog.Warn("candle archive failed", "symbol", symbol, "error", err)
		return
	}
	svc.lastArch[symbol] = window[len(window)-1].TS
}

// route fans one signal out. Redis and InfluxDB see every evaluation so
// the live cache and dashboards stay continuous; SQLite and notifiers
// only see direction changes that clear the confidence floor, keeping
// stored history event-shaped.
func (svc *Service) route(ctx context.Context, sig model.SignalOutput) {
	svc.prom.SignalsTotal.WithLabelValues(string(sig.Direction)).Inc()
	if sig.Direction == model.Neutral {
		slog.Debug("signal", "symbol", sig.Symbol, "strategy", sig.Strategy, "confidence", sig.Confidence)
	} else {
		slog.Info("signal", "symbol", sig.Symbol, "strategy", sig.Strategy, "direction", sig.Direction,
			"confidence", sig.Confidence, "price", sig.Price)
	}

	pubStart := time.Now()
	err := svc.publisher.PublishSignal(ctx, sig)
	svc.prom.RedisPublishDur.Observe(time.Since(pubStart).Seconds())
	if err != nil {
		slog.Warn("redis publish failed", "symbol", sig.Symbol, "error", err)
	}

	if svc.influx != nil {
		if err := svc.influx.WriteSignal(ctx, sig); err != nil {
			slog.Warn("influx write failed", "symbol", sig.Symbol, "error", err)
		}
	}

	if !svc.shouldPersist(sig) {
		return
	}

	sqlStart := time.Now()
	err = svc.sqlWriter.WriteSignal(ctx, sig)
	svc.prom.SQLiteWriteDur.Observe(time.Since(sqlStart).Seconds())
	if err != nil {
		slog.Warn("sqlite write failed", "symbol", sig.Symbol, "error", err)
	}

	if sig.Direction != model.Neutral && svc.notify != nil {
		svc.notify.NotifySignal(sig)
	}
}

// shouldPersist applies the confidence floor and consecutive-duplicate
// suppression per (symbol, strategy). The tracked direction only
// advances on persisted signals, so a low-confidence flip does not mask
// the eventual confident one.
func (svc *Service) shouldPersist(sig model.SignalOutput) bool {
	if sig.Direction != model.Neutral && sig.Confidence < svc.minConfidence {
		svc.prom.SignalsSuppressed.WithLabelValues("low_confidence").Inc()
		return false
	}
	key := sig.Symbol + "\x00" + sig.Strategy
	if prev, ok := svc.lastDir[key]; ok && prev == sig.Direction {
		svc.prom.SignalsSuppressed.WithLabelValues("duplicate").Inc()
		return false
	}
	svc.lastDir[key] = sig.Direction
	return true
}

// loadStrategies parses the stored strategy configs. The built-in
// default is active whenever the store holds none.
func (svc *Service) loadStrategies(ctx context.Context) {
	stored, err := svc.sqlWriter.LoadStrategies(ctx)
	if err != nil {
		slog.Warn("strategy load failed, using built-in default", "error", err)
	}

	svc.mu.Lock()
	for name, raw := range stored {
		st, err := strategy.Parse(raw)
		if err != nil {
			slog.Warn("skipping stored strategy", "name", name, "error", err)
			continue
		}
		svc.stored[st.Name] = st
	}
	svc.rebuildLocked()
	n := len(svc.strategies)
	svc.mu.Unlock()

	svc.prom.ActiveStrategies.Set(float64(n))
	slog.Info("strategies loaded", "count", n)
}

// rebuildLocked recomputes the active set from the stored configs.
// Callers must hold svc.mu.
func (svc *Service) rebuildLocked() {
	if len(svc.stored) == 0 {
		svc.strategies = []*strategy.Strategy{strategy.Default("")}
		return
	}
	next := make([]*strategy.Strategy, 0, len(svc.stored))
	for _, st := range svc.stored {
		next = append(next, st)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].Name < next[j].Name })
	svc.strategies = next
}

// strategiesFor returns the active strategies applying to a symbol.
func (svc *Service) strategiesFor(symbol string) []*strategy.Strategy {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	out := make([]*strategy.Strategy, 0, len(svc.strategies))
	for _, st := range svc.strategies {
		if st.Symbol == "" || st.Symbol == symbol {
			out = append(out, st)
		}
	}
	return out
}

// Strategies returns a copy of the active strategy set.
func (svc *Service) Strategies() []*strategy.Strategy {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	out := make([]*strategy.Strategy, len(svc.strategies))
	copy(out, svc.strategies)
	return out
}

// UpsertStrategy validates, persists and activates a strategy config.
func (svc *Service) UpsertStrategy(ctx context.Context, raw []byte) (*strategy.Strategy, error) {
	st, err := strategy.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := svc.sqlWriter.SaveStrategy(ctx, st.Name, st.Symbol, raw); err != nil {
		return nil, err
	}

	svc.mu.Lock()
	svc.stored[st.Name] = st
	svc.rebuildLocked()
	n := len(svc.strategies)
	svc.mu.Unlock()

	svc.prom.ActiveStrategies.Set(float64(n))
	slog.Info("strategy upserted", "name", st.Name, "symbol", st.Symbol)
	return st, nil
}

// RemoveStrategy deletes a stored strategy. The built-in default is not
// stored, so it cannot be removed; it retires by itself while stored
// strategies exist.
func (svc *Service) RemoveStrategy(ctx context.Context, name string) error {
	svc.mu.RLock()
	_, ok := svc.stored[name]
	svc.mu.RUnlock()
	if !ok {
		return strategy.ErrNotFound
	}
	if err := svc.sqlWriter.DeleteStrategy(ctx, name); err != nil {
		return err
	}

	svc.mu.Lock()
	delete(svc.stored, name)
	svc.rebuildLocked()
	n := len(svc.strategies)
	svc.mu.Unlock()

	svc.prom.ActiveStrategies.Set(float64(n))
	slog.Info("strategy removed", "name", name)
	return nil
}

func (svc *Service) setSnapshot(symbol string, last model.Candle, snap *indicator.Snapshot, agg scoring.Result) {
	svc.mu.Lock()
	svc.snapshots[symbol] = api.SnapshotView{
		Symbol:   symbol,
		Price:    last.Close,
		TS:       last.TS,
		Snap:     snap,
		Category: agg,
	}
	svc.mu.Unlock()
}

// Snapshot returns the last computed indicator state for a symbol.
func (svc *Service) Snapshot(symbol string) (api.SnapshotView, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	v, ok := svc.snapshots[symbol]
	return v, ok
}
