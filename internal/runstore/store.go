// Package runstore keeps the reference host's execution history in SQLite.
package runstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/claude-code-node/internal/domain"
)

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// StartBatch records the start of a node execution
func (s *Store) StartBatch(source string, items int) (*domain.Batch, error) {
	b := &domain.Batch{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Items:     items,
	}
	_, err := s.db.Exec(`INSERT INTO batches (id, source, started_at, items) VALUES (?, ?, ?, ?)`,
		b.ID, b.Source, b.StartedAt, b.Items)
	if err != nil {
		return nil, fmt.Errorf("inserting batch: %w", err)
	}
	return b, nil
}

// FinishBatch stamps the batch with its end time and failure count
func (s *Store) FinishBatch(id string, failed int) error {
	res, err := s.db.Exec(`UPDATE batches SET finished_at = ?, failed = ? WHERE id = ?`,
		time.Now().UTC(), failed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %s not found", id)
	}
	return nil
}

// GetBatch retrieves a batch by ID
func (s *Store) GetBatch(id string) (*domain.Batch, error) {
	var b domain.Batch
	var finished sql.NullTime
	err := s.db.QueryRow(`SELECT id, source, started_at, finished_at, items, failed FROM batches WHERE id = ?`, id).
		Scan(&b.ID, &b.Source, &b.StartedAt, &finished, &b.Items, &b.Failed)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		b.FinishedAt = &finished.Time
	}
	return &b, nil
}

// SaveRun inserts a run, assigning an ID and timestamp when missing
func (s *Store) SaveRun(run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	var batchID sql.NullString
	if run.BatchID != "" {
		batchID = sql.NullString{String: run.BatchID, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, batch_id, item_index, operation, model, output_format, success, error_type, error_message, duration_ms, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		batchID,
		run.ItemIndex,
		string(run.Operation),
		run.Model,
		string(run.OutputFormat),
		run.Success,
		string(run.ErrorType),
		run.ErrorMessage,
		run.DurationMs,
		run.CostUSD,
		run.CreatedAt,
	)
	return err
}

const runColumns = `id, batch_id, item_index, operation, model, output_format, success, error_type, error_message, duration_ms, cost_usd, created_at`

// ListRecentRuns returns the newest runs first
func (s *Store) ListRecentRuns(limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRuns(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, item_index DESC LIMIT ?`, limit)
}

// ListBatchRuns returns a batch's runs in item order
func (s *Store) ListBatchRuns(batchID string) ([]*domain.Run, error) {
	return s.queryRuns(`SELECT `+runColumns+` FROM runs WHERE batch_id = ? ORDER BY item_index`, batchID)
}

func (s *Store) queryRuns(query string, args ...any) ([]*domain.Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (*domain.Run, error) {
	var run domain.Run
	var batchID, model, errorType, errorMessage sql.NullString
	var operation, format string
	var duration sql.NullInt64
	var cost sql.NullFloat64

	err := rows.Scan(&run.ID, &batchID, &run.ItemIndex, &operation, &model, &format, &run.Success,
		&errorType, &errorMessage, &duration, &cost, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	run.BatchID = batchID.String
	run.Operation = domain.Operation(operation)
	run.Model = model.String
	run.OutputFormat = domain.OutputFormat(format)
	run.ErrorType = domain.ErrorKind(errorType.String)
	run.ErrorMessage = errorMessage.String
	run.DurationMs = duration.Int64
	run.CostUSD = cost.Float64
	return &run, nil
}
