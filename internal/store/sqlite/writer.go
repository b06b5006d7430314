package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"perpsignals/internal/model"
)

const defaultKeepSignals = 10_000

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"

	// KeepSignals bounds the signals table; older rows are pruned after
	// each write. Zero means the default, negative disables pruning.
	KeepSignals int

	// KeepCandles bounds the archive per symbol. Zero keeps everything.
	KeepCandles int
}

// Writer is the engine-side store handle: it persists signals, strategy
// definitions and the candle archive over a single-writer connection.
type Writer struct {
	db          *sql.DB
	keepSignals int
	keepCandles int
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database, enabling WAL mode and creating the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; readers use their own handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	keep := cfg.KeepSignals
	if keep == 0 {
		keep = defaultKeepSignals
	}
	slog.Info("sqlite store opened", "path", cfg.DBPath)
	return &Writer{db: db, keepSignals: keep, keepCandles: cfg.KeepCandles}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id         TEXT    PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			strategy   TEXT    NOT NULL DEFAULT '',
			direction  TEXT    NOT NULL,
			confidence REAL    NOT NULL,
			score      REAL    NOT NULL,
			price      REAL    NOT NULL,
			sl_pct     REAL,
			tp_pct     REAL,
			reasons    TEXT    NOT NULL,
			ts         INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals (symbol, ts DESC);

		CREATE TABLE IF NOT EXISTS strategies (
			name       TEXT    PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			config     TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS candles (
			symbol        TEXT    NOT NULL,
			ts            INTEGER NOT NULL,
			open          REAL    NOT NULL,
			high          REAL    NOT NULL,
			low           REAL    NOT NULL,
			close         REAL    NOT NULL,
			volume        REAL    NOT NULL,
			funding_rate  REAL,
			open_interest REAL,
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// WriteSignal implements model.SignalWriter. Each signal gets a fresh
// id; the table is pruned to the retention bound after the insert.
func (w *Writer) WriteSignal(ctx context.Context, sig model.SignalOutput) error {
	reasons, err := json.Marshal(sig.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	_, err = w.db.ExecContext(ctx, `
		INSERT INTO signals (id, symbol, strategy, direction, confidence, score, price, sl_pct, tp_pct, reasons, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), sig.Symbol, sig.Strategy, string(sig.Direction), sig.Confidence, sig.Score,
		sig.Price, nullable(sig.RecommendedSLPct), nullable(sig.RecommendedTPPct), string(reasons), sig.TS.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite insert signal: %w", err)
	}

	if w.keepSignals > 0 {
		_, err := w.db.ExecContext(ctx,
			`DELETE FROM signals WHERE id NOT IN (SELECT id FROM signals ORDER BY ts DESC LIMIT ?)`,
			w.keepSignals)
		if err != nil {
			slog.Warn("signal prune failed", "err", err)
		}
	}
	return nil
}

// LoadStrategies implements model.StrategyStore.
func (w *Writer) LoadStrategies(ctx context.Context) (map[string][]byte, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT name, config FROM strategies`)
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

// SaveStrategy implements model.StrategyStore.
func (w *Writer) SaveStrategy(ctx context.Context, name, symbol string, cfg []byte) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO strategies (name, symbol, config, updated_at)
		VALUES (?, ?, ?, ?)
	`, name, symbol, string(cfg), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite save strategy: %w", err)
	}
	return nil
}

// DeleteStrategy implements model.StrategyStore.
func (w *Writer) DeleteStrategy(ctx context.Context, name string) error {
	res, err := w.db.ExecContext(ctx, `DELETE FROM strategies WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("sqlite delete strategy: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchiveCandles implements model.CandleArchiver. The batch goes into
// one transaction; re-archiving a bar replaces it.
func (w *Writer) ArchiveCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, ts, open, high, low, close, volume, funding_rate, open_interest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	symbols := make(map[string]struct{})
	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, c.TS.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume,
			nullable(c.FundingRate), nullable(c.OpenInterest))
		if err != nil {
			tx.Rollback()
			return err
		}
		symbols[c.Symbol] = struct{}{}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if w.keepCandles > 0 {
		for sym := range symbols {
			_, err := w.db.ExecContext(ctx, `
				DELETE FROM candles WHERE symbol = ? AND ts NOT IN
					(SELECT ts FROM candles WHERE symbol = ? ORDER BY ts DESC LIMIT ?)
			`, sym, sym, w.keepCandles)
			if err != nil {
				slog.Warn("candle prune failed", "symbol", sym, "err", err)
			}
		}
	}
	return nil
}

// ReadCandles implements model.CandleArchiver, trailing limit oldest first.
func (w *Writer) ReadCandles(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	return readCandles(ctx, w.db, symbol, limit)
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func nullable(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
