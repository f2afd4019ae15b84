package history

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/pkg/formulas"
)

// HistoryDB provides access to historical daily price data. It backs the
// warmup path: when an asset enters the universe, its stored closes are
// converted to period returns and seeded into the tracker.
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) (*HistoryDB, error) {
	h := &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
	if err := h.migrate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *HistoryDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_symbol_date
			ON daily_prices (symbol, date DESC);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return nil
}

// DailyPrice represents a daily closing price point
type DailyPrice struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// SaveDailyPrice upserts one daily close for a symbol.
func (h *HistoryDB) SaveDailyPrice(symbol string, date string, closePrice float64) error {
	_, err := h.db.Exec(`
		INSERT INTO daily_prices (symbol, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET close = excluded.close
	`, symbol, date, closePrice)
	if err != nil {
		return fmt.Errorf("failed to save daily price: %w", err)
	}
	return nil
}

// GetDailyCloses fetches up to limit most recent closes for a symbol,
// returned in chronological order (oldest first).
func (h *HistoryDB) GetDailyCloses(symbol string, limit int) ([]float64, error) {
	rows, err := h.db.Query(`
		SELECT close
		FROM daily_prices
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	// Query is newest-first; reverse into chronological order
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}

	return closes, nil
}

// WarmupReturns converts the stored closes for a symbol into period returns
// suitable for Tracker.Warmup. lookback is the number of returns wanted, so
// lookback+1 closes are fetched.
func (h *HistoryDB) WarmupReturns(symbol string, lookback int) ([]float64, error) {
	closes, err := h.GetDailyCloses(symbol, lookback+1)
	if err != nil {
		return nil, err
	}
	if len(closes) < 2 {
		h.log.Debug().
			Str("symbol", symbol).
			Int("closes", len(closes)).
			Msg("Not enough price history for warmup")
		return nil, nil
	}
	return formulas.PeriodReturns(closes), nil
}
