package notification

import (
	"context"
	"log/slog"
	"time"

	"perpsignals/internal/model"
)

// Fanout delivers alerts to every configured notifier concurrently with
// a per-notifier timeout. Failures are logged, never propagated, so a
// slow or dead channel cannot stall signal evaluation.
type Fanout struct {
	notifiers []Notifier
	timeout   time.Duration
}

// NewFanout wraps the given notifiers. A zero timeout defaults to 10s.
func NewFanout(notifiers []Notifier, timeout time.Duration) *Fanout {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fanout{notifiers: notifiers, timeout: timeout}
}

// NotifySignal formats and dispatches an alert for a signal.
func (f *Fanout) NotifySignal(sig model.SignalOutput) {
	f.Notify(FromSignal(sig))
}

// Notify dispatches an alert to all notifiers and returns immediately.
func (f *Fanout) Notify(alert Alert) {
	for _, n := range f.notifiers {
		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			if err := n.Send(ctx, alert); err != nil {
				slog.Warn("alert delivery failed", "title", alert.Title, "error", err)
			}
		}(n)
	}
}

// Len reports how many notifiers are configured.
func (f *Fanout) Len() int { return len(f.notifiers) }
