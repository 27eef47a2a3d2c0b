package domain

import "time"

// Run is the persisted summary of one output record produced by a host
type Run struct {
	ID           string       `json:"id"`
	BatchID      string       `json:"batch_id"`
	ItemIndex    int          `json:"item_index"`
	Operation    Operation    `json:"operation"`
	Model        string       `json:"model"`
	OutputFormat OutputFormat `json:"output_format"`
	Success      bool         `json:"success"`
	ErrorType    ErrorKind    `json:"error_type,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	DurationMs   int64        `json:"duration_ms"`
	CostUSD      float64      `json:"cost_usd"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Batch groups the runs of one node execution
type Batch struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Items      int        `json:"items"`
	Failed     int        `json:"failed"`
}
