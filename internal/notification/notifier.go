// Package notification delivers signal alerts to external channels
// (Telegram, generic webhooks). Delivery is fire-and-forget: the
// evaluation loop never waits on or fails because of a notifier.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"perpsignals/internal/model"
)

// AlertLevel represents the urgency of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Signal is set for
// signal-driven alerts and rides along in webhook payloads.
type Alert struct {
	Level   AlertLevel          `json:"level"`
	Title   string              `json:"title"`
	Message string              `json:"message"`
	Signal  *model.SignalOutput `json:"signal,omitempty"`
}

// FromSignal builds the alert for a non-Neutral signal: title names the
// call, message carries confidence, price, SL/TP and the top reasons.
// Urgency scales with confidence.
func FromSignal(sig model.SignalOutput) Alert {
	level := AlertInfo
	switch {
	case sig.Confidence >= 0.8:
		level = AlertCritical
	case sig.Confidence >= 0.6:
		level = AlertWarning
	}

	title := fmt.Sprintf("%s %s", sig.Symbol, sig.Direction)
	if sig.Strategy != "" {
		title += " (" + sig.Strategy + ")"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "confidence %.0f%% at %.2f", sig.Confidence*100, sig.Price)
	if sig.RecommendedSLPct != nil && sig.RecommendedTPPct != nil {
		fmt.Fprintf(&b, "\nSL %.2f%% / TP %.2f%%", *sig.RecommendedSLPct, *sig.RecommendedTPPct)
	}
	for i, r := range sig.Reasons {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "\n- %s", r.Detail)
	}

	s := sig
	return Alert{Level: level, Title: title, Message: b.String(), Signal: &s}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("alert", "level", alert.Level, "title", alert.Title, "message", alert.Message)
	return nil
}
