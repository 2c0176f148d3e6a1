// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"tms-sync/internal/domain"
)

// === Sync Log Repository Mock ===

// RecordedEntry captures one begun sync log entry and how it was finished.
type RecordedEntry struct {
	ID       int64
	JobID    string
	SyncType domain.SyncType
	Status   string
	Counts   domain.SyncCounts
	ErrMsg   *string
	Finished bool
}

// MockSyncLogRepo implements domain.SyncLogRepository for testing. By default
// it records entries in memory; set the Fn fields to override behavior.
type MockSyncLogRepo struct {
	BeginFn       func(ctx context.Context, jobID string, syncType domain.SyncType) (int64, error)
	FinishFn      func(ctx context.Context, id int64, status string, counts domain.SyncCounts, errMsg *string) error
	ListHistoryFn func(ctx context.Context, filter domain.HistoryFilter) ([]domain.SyncLogEntry, error)

	mu      sync.Mutex
	nextID  int64
	Entries map[int64]*RecordedEntry
}

// Begin implements the interface method for testing.
func (m *MockSyncLogRepo) Begin(ctx context.Context, jobID string, syncType domain.SyncType) (int64, error) {
	if m.BeginFn != nil {
		return m.BeginFn(ctx, jobID, syncType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Entries == nil {
		m.Entries = make(map[int64]*RecordedEntry)
	}
	m.nextID++
	m.Entries[m.nextID] = &RecordedEntry{
		ID:       m.nextID,
		JobID:    jobID,
		SyncType: syncType,
		Status:   domain.SyncStatusRunning,
	}
	return m.nextID, nil
}

// Finish implements the interface method for testing.
func (m *MockSyncLogRepo) Finish(ctx context.Context, id int64, status string, counts domain.SyncCounts, errMsg *string) error {
	if m.FinishFn != nil {
		return m.FinishFn(ctx, id, status, counts, errMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Entries[id]
	if !ok {
		return domain.ErrNotFound("sync log entry %d not found", id)
	}
	e.Status = status
	e.Counts = counts
	e.ErrMsg = errMsg
	e.Finished = true
	return nil
}

// ListHistory implements the interface method for testing.
func (m *MockSyncLogRepo) ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.SyncLogEntry, error) {
	if m.ListHistoryFn != nil {
		return m.ListHistoryFn(ctx, filter)
	}
	panic("unexpected call to MockSyncLogRepo.ListHistory")
}

// EntryFor returns the recorded entry for a sync type, or nil.
func (m *MockSyncLogRepo) EntryFor(syncType domain.SyncType) *RecordedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.SyncType == syncType {
			return e
		}
	}
	return nil
}

var _ domain.SyncLogRepository = (*MockSyncLogRepo)(nil)

// === Extractor Mock ===

// MockExtractor implements domain.Extractor for testing.
type MockExtractor struct {
	ExtractFn func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error)
}

// Extract implements the interface method for testing.
func (m *MockExtractor) Extract(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
	if m.ExtractFn != nil {
		return m.ExtractFn(ctx, spec, window)
	}
	panic("unexpected call to MockExtractor.Extract")
}

var _ domain.Extractor = (*MockExtractor)(nil)

// SliceIterator is a RowIterator over pre-built batches.
type SliceIterator struct {
	Batches [][]domain.RawRow
	Err     error // returned after the batches are drained
	pos     int
	Closed  bool
}

// Next returns the next batch, then the configured error, then nil.
func (it *SliceIterator) Next() ([]domain.RawRow, error) {
	if it.pos < len(it.Batches) {
		b := it.Batches[it.pos]
		it.pos++
		return b, nil
	}
	if it.Err != nil {
		return nil, it.Err
	}
	return nil, nil
}

// Close marks the iterator closed.
func (it *SliceIterator) Close() error {
	it.Closed = true
	return nil
}

var _ domain.RowIterator = (*SliceIterator)(nil)

// === Loader Mock ===

// MockLoader implements domain.Loader for testing. By default it reports
// every record as inserted.
type MockLoader struct {
	LoadFn func(ctx context.Context, spec *domain.TableSpec, batch []domain.FactRecord) (int64, int64, error)

	mu      sync.Mutex
	Batches [][]domain.FactRecord
}

// Load implements the interface method for testing.
func (m *MockLoader) Load(ctx context.Context, spec *domain.TableSpec, batch []domain.FactRecord) (int64, int64, error) {
	m.mu.Lock()
	m.Batches = append(m.Batches, batch)
	m.mu.Unlock()
	if m.LoadFn != nil {
		return m.LoadFn(ctx, spec, batch)
	}
	return int64(len(batch)), 0, nil
}

// Loaded returns the total number of records passed to Load.
func (m *MockLoader) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.Batches {
		n += len(b)
	}
	return n
}

var _ domain.Loader = (*MockLoader)(nil)

// === Schema Manager Mock ===

// MockSchemaManager implements domain.SchemaManager for testing.
type MockSchemaManager struct {
	EnsureTablesFn func(ctx context.Context) error
	calls          int64
}

// EnsureTables implements the interface method for testing.
func (m *MockSchemaManager) EnsureTables(ctx context.Context) error {
	atomic.AddInt64(&m.calls, 1)
	if m.EnsureTablesFn != nil {
		return m.EnsureTablesFn(ctx)
	}
	return nil
}

// Calls returns how many times EnsureTables ran.
func (m *MockSchemaManager) Calls() int64 {
	return atomic.LoadInt64(&m.calls)
}

var _ domain.SchemaManager = (*MockSchemaManager)(nil)
