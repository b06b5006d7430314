// Package config provides the process-level configuration surface: env
// helpers with defaults, optional .env loading, and the YAML tuning file
// carrying indicator periods, decision multipliers, and category weights.
// Service-specific wiring (symbols, providers, sinks) lives in each
// service's own LoadConfig.
package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"perpsignals/internal/decision"
	"perpsignals/internal/indicator"
	"perpsignals/internal/scoring"
)

// LoadDotEnv loads a .env file from the working directory when present.
// Absence is not an error; real env vars always win.
func LoadDotEnv() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}
}

// MustEnv returns the value of a required env var, exiting when unset.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

// GetEnv returns the env var value or the fallback when unset.
func GetEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// GetEnvInt parses an integer env var, falling back on absence or junk.
func GetEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("env var is not an integer", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return n
}

// GetEnvFloat parses a float env var, falling back on absence or junk.
func GetEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("env var is not a number", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return f
}

// GetEnvBool parses a boolean env var (strconv syntax), falling back on
// absence or junk.
func GetEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("env var is not a bool", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return b
}

// ParseList splits a comma-separated value into trimmed non-empty items.
func ParseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Tuning is the optional YAML tuning file. Fields absent from the file
// keep their defaults. CategoryWeights are carried for documentation and
// the clamp rationale; the aggregator does not multiply by them.
type Tuning struct {
	Indicator       indicator.Params   `yaml:"indicator"`
	Decision        decision.Params    `yaml:"decision"`
	CategoryWeights map[string]float64 `yaml:"category_weights"`
	MinConfidence   float64            `yaml:"min_confidence"`
}

// DefaultTuning returns the stock tuning used when no file is given.
func DefaultTuning() Tuning {
	weights := make(map[string]float64)
	for c, w := range scoring.DefaultWeights() {
		weights[string(c)] = w
	}
	return Tuning{
		Indicator:       indicator.DefaultParams(),
		Decision:        decision.DefaultParams(),
		CategoryWeights: weights,
		MinConfidence:   0.5,
	}
}

// LoadTuning reads and validates the YAML tuning file. An empty path
// yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("tuning: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	slog.Info("loaded tuning file", "path", path)
	return t, nil
}

// Validate checks the tuning invariants the engine assumes.
func (t *Tuning) Validate() error {
	if err := t.Indicator.Validate(); err != nil {
		return err
	}
	if t.Decision.SLMult <= 0 || t.Decision.TPMult <= 0 {
		return fmt.Errorf("non-positive SL/TP multiplier %v/%v", t.Decision.SLMult, t.Decision.TPMult)
	}
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %v outside [0, 1]", t.MinConfidence)
	}
	return nil
}
