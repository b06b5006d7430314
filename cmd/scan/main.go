// cmd/scan runs one evaluation over a candle window and prints the
// resulting signal as JSON, without touching Redis or the API server.
// The window comes from a live provider or from the candle archive a
// running engine leaves behind in SQLite.
//
// Usage:
//
//	go run ./cmd/scan --provider=sim:downtrend --symbol=BTC
//	go run ./cmd/scan --db=data/signals.db --symbol=ETH --strategy=my.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"perpsignals/config"
	"perpsignals/internal/model"
	"perpsignals/internal/sigengine"
	"perpsignals/internal/strategy"
	sqlitestore "perpsignals/internal/store/sqlite"
)

func main() {
	symbol := flag.String("symbol", "BTC", "Symbol to evaluate")
	bars := flag.Int("bars", 300, "Candle window size")
	dbPath := flag.String("db", "", "Read the window from this SQLite candle archive instead of a provider")
	provider := flag.String("provider", "", "Provider override: hyperliquid, binance or sim[:scenario] (default $PROVIDER)")
	strategyPath := flag.String("strategy", "", `Strategy JSON file, or "default" for the builtin; empty runs the category path`)
	tuningPath := flag.String("tuning", "", "Tuning YAML override (default $TUNING_FILE)")
	timeout := flag.Duration("timeout", 30*time.Second, "Fetch timeout")
	flag.Parse()

	config.LoadDotEnv()
	cfg := sigengine.LoadConfig()
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *tuningPath != "" {
		cfg.TuningFile = *tuningPath
	}
	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		log.Fatalf("[scan] tuning: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	window, err := fetchWindow(ctx, cfg, *dbPath, *symbol, *bars)
	if err != nil {
		log.Fatalf("[scan] window: %v", err)
	}
	if len(window) == 0 {
		log.Fatalf("[scan] no candles for %s", *symbol)
	}

	sig, err := evaluate(window, *symbol, *strategyPath, tuning)
	if err != nil {
		log.Fatalf("[scan] evaluate: %v", err)
	}

	out, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		log.Fatalf("[scan] encode: %v", err)
	}
	fmt.Println(string(out))
}

func fetchWindow(ctx context.Context, cfg sigengine.Config, dbPath, symbol string, bars int) ([]model.Candle, error) {
	if dbPath != "" {
		reader, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return reader.ReadCandles(ctx, symbol, bars)
	}
	src, err := sigengine.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return src.History(ctx, symbol, bars)
}

func evaluate(window []model.Candle, symbol, strategyPath string, tuning config.Tuning) (model.SignalOutput, error) {
	switch strategyPath {
	case "":
		return sigengine.EvaluateCategory(window, tuning)
	case "default":
		return sigengine.Evaluate(window, strategy.Default(symbol), tuning)
	}
	raw, err := os.ReadFile(strategyPath)
	if err != nil {
		return model.SignalOutput{}, err
	}
	st, err := strategy.Parse(raw)
	if err != nil {
		return model.SignalOutput{}, err
	}
	return sigengine.Evaluate(window, st, tuning)
}
