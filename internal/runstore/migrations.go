package runstore

const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    items INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    batch_id TEXT REFERENCES batches(id),
    item_index INTEGER NOT NULL,
    operation TEXT NOT NULL,
    model TEXT,
    output_format TEXT NOT NULL,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_type TEXT,
    error_message TEXT,
    duration_ms INTEGER,
    cost_usd REAL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_batch_id ON runs(batch_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`
