package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"perpsignals/internal/model"
)

const (
	// Per-symbol signal stream bound: roughly a day of 1m evaluations.
	signalStreamMaxLen = 1500
	defaultLatestTTL   = 30 * time.Minute

	// SignalChannelPrefix prefixes the per-symbol pub/sub channels;
	// subscribers strip it to recover the symbol.
	SignalChannelPrefix = "pub:signals:"
)

// Signal key scheme, per symbol.
func latestKey(symbol string) string { return "signal:latest:" + symbol }
func streamKey(symbol string) string { return "signals:" + symbol }
func pubsubKey(symbol string) string { return SignalChannelPrefix + symbol }

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes evaluated signals to Redis: latest-value key,
// bounded stream, and pub/sub fanout for live subscribers. It
// implements model.SignalPublisher.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return &Writer{client: client}, nil
}

// PublishSignal implements model.SignalPublisher. SET latest with TTL,
// XADD to the bounded per-symbol stream, PUBLISH for subscribers, all
// in one pipeline roundtrip.
func (w *Writer) PublishSignal(ctx context.Context, sig model.SignalOutput) error {
	jsonData := string(sig.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey(sig.Symbol), jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey(sig.Symbol),
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubKey(sig.Symbol), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", sig.Symbol, err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
