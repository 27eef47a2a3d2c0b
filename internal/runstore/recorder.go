package runstore

import (
	"log/slog"
	"sync"

	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/node"
)

// RunFromReport converts a finished record into its history row
func RunFromReport(batchID string, r node.ItemReport) *domain.Run {
	run := &domain.Run{
		BatchID:      batchID,
		ItemIndex:    r.Index,
		Operation:    r.Operation,
		Model:        r.Model,
		OutputFormat: r.OutputFormat,
		Success:      r.Succeeded(),
		DurationMs:   r.Duration.Milliseconds(),
		CostUSD:      r.CostUSD,
	}
	if r.Err != nil {
		run.ErrorType = domain.Classify(r.Err)
		run.ErrorMessage = r.Err.Error()
	}
	return run
}

// Recorder persists every finished record of one batch
type Recorder struct {
	store  *Store
	batch  *domain.Batch
	logger *slog.Logger

	mu     sync.Mutex
	failed int
}

// NewRecorder creates a recorder for batch
func NewRecorder(store *Store, batch *domain.Batch, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, batch: batch, logger: logger}
}

// ItemCompleted saves the record; storage faults are logged, never surfaced
func (r *Recorder) ItemCompleted(rep node.ItemReport) {
	run := RunFromReport(r.batch.ID, rep)

	r.mu.Lock()
	if !run.Success {
		r.failed++
	}
	r.mu.Unlock()

	if err := r.store.SaveRun(run); err != nil {
		r.logger.Warn("failed to save run", "batch", r.batch.ID, "item", rep.Index, "error", err)
	}
}

// Finish closes the batch
func (r *Recorder) Finish() error {
	r.mu.Lock()
	failed := r.failed
	r.mu.Unlock()
	return r.store.FinishBatch(r.batch.ID, failed)
}
