// Package influx writes evaluated signals to InfluxDB as time-series
// points for dashboarding. The sink is optional and uses the
// non-blocking write API, so queuing a point never stalls the
// evaluation loop; delivery failures surface on the client's error
// channel and are logged.
package influx

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"perpsignals/internal/model"
)

const measurementSignals = "signals"

// WriterConfig holds connection settings for an InfluxDB 2.x instance.
type WriterConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Writer persists signals as InfluxDB points. It implements
// model.SignalWriter.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// New connects to InfluxDB and verifies the server reports healthy.
func New(cfg WriterConfig) (*Writer, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx health check: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("influx not healthy: %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			slog.Warn("influx write failed", "error", err)
		}
	}()

	slog.Info("connected to influxdb", "url", cfg.URL, "bucket", cfg.Bucket)
	return &Writer{client: client, writeAPI: writeAPI}, nil
}

// WriteSignal queues one signal point for asynchronous delivery. The
// write API batches and flushes on its own interval.
func (w *Writer) WriteSignal(ctx context.Context, sig model.SignalOutput) error {
	point := influxdb2.NewPoint(measurementSignals, signalTags(sig), signalFields(sig), sig.TS)
	w.writeAPI.WritePoint(point)
	return nil
}

// Close flushes queued points and shuts the client down.
func (w *Writer) Close() error {
	w.writeAPI.Flush()
	w.client.Close()
	return nil
}

// signalTags keys the point by symbol and direction so dashboards can
// group on them. Strategy is tagged only for the per-strategy path.
func signalTags(sig model.SignalOutput) map[string]string {
	tags := map[string]string{
		"symbol":    sig.Symbol,
		"direction": string(sig.Direction),
	}
	if sig.Strategy != "" {
		tags["strategy"] = sig.Strategy
	}
	return tags
}

func signalFields(sig model.SignalOutput) map[string]interface{} {
	fields := map[string]interface{}{
		"confidence":   sig.Confidence,
		"score":        sig.Score,
		"price":        sig.Price,
		"reason_count": len(sig.Reasons),
	}
	if sig.RecommendedSLPct != nil {
		fields["sl_pct"] = *sig.RecommendedSLPct
	}
	if sig.RecommendedTPPct != nil {
		fields["tp_pct"] = *sig.RecommendedTPPct
	}
	return fields
}
