package model

import (
	"context"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the evaluation service from concrete market-data
// and storage implementations (Hyperliquid, Binance, the simulator, Redis,
// SQLite, Influx). Each implementation satisfies one or more of them.

// CandleSource supplies candle history for a symbol, most recent last.
// Implementations may serve from a live window, a REST fetch, or synthesis;
// they must return at most bars candles in strictly increasing TS order.
type CandleSource interface {
	// History returns up to bars trailing candles for symbol.
	History(ctx context.Context, symbol string, bars int) ([]Candle, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// SignalWriter persists signal outputs.
type SignalWriter interface {
	// WriteSignal stores one evaluated signal.
	WriteSignal(ctx context.Context, sig SignalOutput) error

	// Close releases underlying resources.
	Close() error
}

// SignalPublisher pushes signals to live subscribers (cache + pub/sub).
type SignalPublisher interface {
	// PublishSignal caches the latest signal and notifies subscribers.
	PublishSignal(ctx context.Context, sig SignalOutput) error

	// Close releases underlying resources.
	Close() error
}

// StrategyStore loads and mutates stored strategy definitions as raw JSON.
// Using []byte avoids a model→strategy import cycle.
type StrategyStore interface {
	// LoadStrategies returns all stored strategies keyed by name.
	LoadStrategies(ctx context.Context) (map[string][]byte, error)

	// SaveStrategy inserts or replaces a strategy definition.
	SaveStrategy(ctx context.Context, name, symbol string, cfg []byte) error

	// DeleteStrategy removes a strategy by name.
	DeleteStrategy(ctx context.Context, name string) error
}

// CandleArchiver persists fetched candles so offline scans can replay them.
type CandleArchiver interface {
	// ArchiveCandles stores a batch of candles (idempotent per symbol+TS).
	ArchiveCandles(ctx context.Context, candles []Candle) error

	// ReadCandles returns up to limit archived candles for symbol,
	// oldest first.
	ReadCandles(ctx context.Context, symbol string, limit int) ([]Candle, error)
}
