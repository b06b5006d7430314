package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"perpsignals/internal/model"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader serves the API side: latest-signal lookups, recent history
// from the per-symbol streams, and pub/sub subscriptions for the
// websocket gateway.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	slog.Info("redis reader connected", "addr", cfg.Addr)
	return &Reader{client: client}, nil
}

// LatestSignal returns the most recent signal for a symbol, or nil
// when none is cached (absent key or expired TTL).
func (r *Reader) LatestSignal(ctx context.Context, symbol string) (*model.SignalOutput, error) {
	data, err := r.client.Get(ctx, latestKey(symbol)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get latest %s: %w", symbol, err)
	}

	var sig model.SignalOutput
	if err := json.Unmarshal([]byte(data), &sig); err != nil {
		return nil, fmt.Errorf("unmarshal signal: %w", err)
	}
	return &sig, nil
}

// RecentSignals returns up to count signals for a symbol from its
// stream, newest first.
func (r *Reader) RecentSignals(ctx context.Context, symbol string, count int64) ([]model.SignalOutput, error) {
	msgs, err := r.client.XRevRangeN(ctx, streamKey(symbol), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange %s: %w", symbol, err)
	}

	out := make([]model.SignalOutput, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var sig model.SignalOutput
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			slog.Warn("skipping malformed stream entry", "stream", streamKey(symbol), "id", msg.ID, "err", err)
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// SubscribeSignals subscribes to every symbol's signal channel.
// The caller reads from the returned handle's Channel() and must
// Close it when done.
func (r *Reader) SubscribeSignals(ctx context.Context) (*goredis.PubSub, error) {
	pubsub := r.client.PSubscribe(ctx, SignalChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis psubscribe signals: %w", err)
	}
	return pubsub, nil
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
