package rebalance

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// Run is one completed rebalance cycle and the targets it produced.
type Run struct {
	ID        string          `json:"id"`
	Policy    string          `json:"policy"`
	Strategy  string          `json:"strategy"`
	StartedAt time.Time       `json:"started_at"`
	Targets   []domain.Target `json:"targets"`
}

// RunRepository persists completed runs so operators can inspect the latest
// targets after the fact.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates the repository and its schema.
func NewRunRepository(db *sql.DB, log zerolog.Logger) (*RunRepository, error) {
	r := &RunRepository{
		db:  db,
		log: log.With().Str("component", "run_repository").Logger(),
	}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RunRepository) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			policy     TEXT NOT NULL,
			strategy   TEXT NOT NULL,
			started_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_targets (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			weight REAL NOT NULL,
			PRIMARY KEY (run_id, symbol)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate runs schema: %w", err)
	}
	return nil
}

// SaveRun records one completed cycle. The run id is generated here.
func (r *RunRepository) SaveRun(run Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, policy, strategy, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Policy, run.Strategy, run.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, t := range run.Targets {
		_, err = tx.Exec(`
			INSERT INTO run_targets (run_id, symbol, weight)
			VALUES (?, ?, ?)
		`, run.ID, t.Symbol, t.Weight)
		if err != nil {
			return fmt.Errorf("failed to insert run target: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	r.log.Debug().
		Str("run_id", run.ID).
		Int("targets", len(run.Targets)).
		Msg("Recorded rebalance run")

	return nil
}

// LatestRun fetches the most recent recorded run, or nil when none exists.
func (r *RunRepository) LatestRun() (*Run, error) {
	var run Run
	var startedAt string
	err := r.db.QueryRow(`
		SELECT id, policy, strategy, started_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Policy, &run.Strategy, &startedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT symbol, weight
		FROM run_targets
		WHERE run_id = ?
		ORDER BY symbol
	`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run targets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Target
		if err := rows.Scan(&t.Symbol, &t.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan run target: %w", err)
		}
		run.Targets = append(run.Targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run targets: %w", err)
	}

	return &run, nil
}
