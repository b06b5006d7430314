package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"perpsignals/internal/model"
)

// Reader provides read-only access for the API and offline scans. It
// opens its own handle; WAL mode lets it run beside the writer.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db}, nil
}

const signalColumns = `symbol, strategy, direction, confidence, score, price, sl_pct, tp_pct, reasons, ts`

// AllSignals returns the newest signals across all symbols.
func (r *Reader) AllSignals(ctx context.Context, limit int) ([]model.SignalOutput, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM signals ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	return scanSignals(rows)
}

// SignalsBySymbol returns the newest signals for one symbol.
func (r *Reader) SignalsBySymbol(ctx context.Context, symbol string, limit int) ([]model.SignalOutput, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE symbol = ? ORDER BY ts DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals for %s: %w", symbol, err)
	}
	return scanSignals(rows)
}

// SignalCount reports the number of stored signals, for health output.
func (r *Reader) SignalCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count signals: %w", err)
	}
	return n, nil
}

// Strategies returns stored strategy definitions keyed by name.
func (r *Reader) Strategies(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, config FROM strategies`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query strategies: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var name, cfg string
		if err := rows.Scan(&name, &cfg); err != nil {
			return nil, fmt.Errorf("sqlite scan strategy: %w", err)
		}
		out[name] = []byte(cfg)
	}
	return out, rows.Err()
}

// ReadCandles returns the trailing limit archived candles, oldest first.
func (r *Reader) ReadCandles(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	return readCandles(ctx, r.db, symbol, limit)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

func scanSignals(rows *sql.Rows) ([]model.SignalOutput, error) {
	defer rows.Close()

	var out []model.SignalOutput
	for rows.Next() {
		var (
			sig      model.SignalOutput
			dir      string
			sl, tp   sql.NullFloat64
			reasons  string
			tsMillis int64
		)
		if err := rows.Scan(&sig.Symbol, &sig.Strategy, &dir, &sig.Confidence, &sig.Score,
			&sig.Price, &sl, &tp, &reasons, &tsMillis); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		sig.Direction = model.Direction(dir)
		sig.TS = time.UnixMilli(tsMillis).UTC()
		if sl.Valid {
			v := sl.Float64
			sig.RecommendedSLPct = &v
		}
		if tp.Valid {
			v := tp.Float64
			sig.RecommendedTPPct = &v
		}
		if err := json.Unmarshal([]byte(reasons), &sig.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshal reasons: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// readCandles is shared by Writer and Reader. The query walks the
// (symbol, ts) primary key backwards, then the slice is flipped so
// callers get chronological order.
func readCandles(ctx context.Context, db *sql.DB, symbol string, limit int) ([]model.Candle, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume, funding_rate, open_interest
		FROM candles WHERE symbol = ? ORDER BY ts DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var (
			c        model.Candle
			tsMillis int64
			fr, oi   sql.NullFloat64
		)
		if err := rows.Scan(&c.Symbol, &tsMillis, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &fr, &oi); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.TS = time.UnixMilli(tsMillis).UTC()
		if fr.Valid {
			v := fr.Float64
			c.FundingRate = &v
		}
		if oi.Valid {
			v := oi.Float64
			c.OpenInterest = &v
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
