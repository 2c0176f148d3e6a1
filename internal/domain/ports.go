package domain

import "context"

// SyncLogRepository is the sync log recorder: the only writer of
// tms_sync_log on the target database.
type SyncLogRepository interface {
	// Begin inserts a RUNNING entry before extraction starts and returns its id.
	Begin(ctx context.Context, jobID string, syncType SyncType) (int64, error)
	// Finish finalizes an entry exactly once with a terminal status.
	Finish(ctx context.Context, id int64, status string, counts SyncCounts, errMsg *string) error
	// ListHistory returns entries most-recent-first, optionally filtered.
	ListHistory(ctx context.Context, filter HistoryFilter) ([]SyncLogEntry, error)
}

// RowIterator yields source rows in bounded batches, one pass, in
// source-defined order. Close releases the underlying cursor.
type RowIterator interface {
	// Next returns the next batch, or nil when the sequence is exhausted.
	Next() ([]RawRow, error)
	Close() error
}

// Extractor reads rows for a fact type from the source database.
type Extractor interface {
	Extract(ctx context.Context, spec *TableSpec, window DateWindow) (RowIterator, error)
}

// Loader stages a transformed batch and merges it into the target fact table.
type Loader interface {
	Load(ctx context.Context, spec *TableSpec, batch []FactRecord) (inserted, updated int64, err error)
}

// SchemaManager ensures the target-side tables exist before any load.
type SchemaManager interface {
	EnsureTables(ctx context.Context) error
}
