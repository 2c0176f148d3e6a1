package sync

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tms-sync/internal/domain"
	"tms-sync/internal/testutil"
)

var (
	orderTestSpec = &domain.TableSpec{
		Fact:       domain.FactOrder,
		Table:      "tms_fact_order",
		KeyColumns: []string{"order_id"},
		Columns: []domain.ColumnSpec{
			{Name: "order_id", Type: domain.ColText, Required: true},
			{Name: "status", Type: domain.ColText},
		},
	}
	deliveryTestSpec = &domain.TableSpec{
		Fact:       domain.FactDelivery,
		Table:      "tms_fact_delivery",
		KeyColumns: []string{"route_id", "order_id"},
		Columns: []domain.ColumnSpec{
			{Name: "route_id", Type: domain.ColText, Required: true},
			{Name: "order_id", Type: domain.ColText, Required: true},
		},
	}
	testSpecs = map[domain.FactType]*domain.TableSpec{
		domain.FactOrder:    orderTestSpec,
		domain.FactDelivery: deliveryTestSpec,
	}
)

type serviceFixture struct {
	service  *Service
	registry *Registry
	syncLog  *testutil.MockSyncLogRepo
	ext      *testutil.MockExtractor
	loader   *testutil.MockLoader
	schema   *testutil.MockSchemaManager
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		registry: NewRegistry(),
		syncLog:  &testutil.MockSyncLogRepo{},
		ext:      &testutil.MockExtractor{},
		loader:   &testutil.MockLoader{},
		schema:   &testutil.MockSchemaManager{},
	}
	f.service = NewService(
		f.registry, f.syncLog, f.ext, NewTransformer(), f.loader, f.schema,
		testSpecs, 2, 8, slog.New(slog.DiscardHandler),
	)
	return f
}

func orderRows(n int) []domain.RawRow {
	rows := make([]domain.RawRow, n)
	for i := range rows {
		rows[i] = domain.RawRow{"order_id": string(rune('A' + i)), "status": "DONE"}
	}
	return rows
}

func TestRunFactOrderSuccess(t *testing.T) {
	f := newServiceFixture(t)
	f.ext.ExtractFn = func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
		require.Equal(t, "tms_fact_order", spec.Table)
		return &testutil.SliceIterator{Batches: [][]domain.RawRow{orderRows(5)}}, nil
	}

	job, err := f.service.Run(context.Background(), domain.SubmitRequest{SyncType: domain.SyncTypeFactOrder})
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStatusSuccess, job.Status)
	assert.Equal(t, int64(5), job.Counts.Total)
	assert.Equal(t, int64(5), job.Counts.Success)
	assert.Equal(t, int64(0), job.Counts.Failed)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)
	assert.Equal(t, 5, f.loader.Loaded())
	assert.GreaterOrEqual(t, f.schema.Calls(), int64(1))

	entry := f.syncLog.EntryFor(domain.SyncTypeFactOrder)
	require.NotNil(t, entry)
	assert.True(t, entry.Finished)
	assert.Equal(t, domain.SyncStatusSuccess, entry.Status)
	assert.Equal(t, int64(5), entry.Counts.Total)
}

func TestRunRejectedRowsAreCountedNotFatal(t *testing.T) {
	f := newServiceFixture(t)
	rows := orderRows(9)
	rows = append(rows, domain.RawRow{"status": "NO KEY"}) // missing required order_id
	f.ext.ExtractFn = func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
		return &testutil.SliceIterator{Batches: [][]domain.RawRow{rows}}, nil
	}

	job, err := f.service.Run(context.Background(), domain.SubmitRequest{SyncType: domain.SyncTypeFactOrder})
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStatusSuccess, job.Status)
	assert.Equal(t, int64(10), job.Counts.Total)
	assert.Equal(t, int64(9), job.Counts.Success)
	assert.Equal(t, int64(1), job.Counts.Failed)
}

func TestRunBothPartialFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.ext.ExtractFn = func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
		if spec.Fact == domain.FactDelivery {
			return nil, domain.ErrSourceUnavailable(errors.New("connection refused"), "query source for %s", spec.Table)
		}
		return &testutil.SliceIterator{Batches: [][]domain.RawRow{orderRows(3)}}, nil
	}

	job, err := f.service.Run(context.Background(), domain.SubmitRequest{SyncType: domain.SyncTypeBoth})
	require.NoError(t, err)

	// One pipeline failing fails the job, but the surviving pipeline's rows
	// stay committed and counted.
	assert.Equal(t, domain.SyncStatusFailed, job.Status)
	assert.Contains(t, job.Error, "delivery")
	assert.Equal(t, int64(3), job.Counts.Success)
	assert.Equal(t, 3, f.loader.Loaded())

	orderEntry := f.syncLog.EntryFor(domain.SyncTypeFactOrder)
	require.NotNil(t, orderEntry)
	assert.Equal(t, domain.SyncStatusSuccess, orderEntry.Status)

	deliveryEntry := f.syncLog.EntryFor(domain.SyncTypeFactDelivery)
	require.NotNil(t, deliveryEntry)
	assert.Equal(t, domain.SyncStatusFailed, deliveryEntry.Status)
	require.NotNil(t, deliveryEntry.ErrMsg)
	assert.Contains(t, *deliveryEntry.ErrMsg, "connection refused")
}

func TestRunLoadFailureStopsPipeline(t *testing.T) {
	f := newServiceFixture(t)
	f.ext.ExtractFn = func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
		return &testutil.SliceIterator{Batches: [][]domain.RawRow{orderRows(4), orderRows(4)}}, nil
	}
	calls := 0
	f.loader.LoadFn = func(ctx context.Context, spec *domain.TableSpec, batch []domain.FactRecord) (int64, int64, error) {
		calls++
		if calls == 2 {
			return 0, 0, domain.ErrLoad(errors.New("connection reset"), true, "load batch into %s", spec.Table)
		}
		return int64(len(batch)), 0, nil
	}

	job, err := f.service.Run(context.Background(), domain.SubmitRequest{SyncType: domain.SyncTypeFactOrder})
	require.NoError(t, err)

	// First batch committed, second failed: the job fails but keeps the
	// earlier counts.
	assert.Equal(t, domain.SyncStatusFailed, job.Status)
	assert.Equal(t, int64(8), job.Counts.Total)
	assert.Equal(t, int64(4), job.Counts.Success)
	assert.Equal(t, int64(4), job.Counts.Failed)

	entry := f.syncLog.EntryFor(domain.SyncTypeFactOrder)
	require.NotNil(t, entry)
	assert.Equal(t, domain.SyncStatusFailed, entry.Status)
}

func TestRunPanicFinalizesJobAndLog(t *testing.T) {
	f := newServiceFixture(t)
	f.ext.ExtractFn = func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
		return &testutil.SliceIterator{Batches: [][]domain.RawRow{orderRows(1)}}, nil
	}
	f.loader.LoadFn = func(ctx context.Context, spec *domain.TableSpec, batch []domain.FactRecord) (int64, int64, error) {
		panic("loader exploded")
	}

	job, err := f.service.Run(context.Background(), domain.SubmitRequest{SyncType: domain.SyncTypeFactOrder})
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStatusFailed, job.Status)
	assert.Contains(t, job.Error, "loader exploded")

	entry := f.syncLog.EntryFor(domain.SyncTypeFactOrder)
	require.NotNil(t, entry)
	assert.True(t, entry.Finished, "sync log entry left dangling after panic")
	assert.Equal(t, domain.SyncStatusFailed, entry.Status)
}

func TestRunInvalidRequest(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Run(context.Background(), domain.SubmitRequest{SyncType: "nope"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSubmitExecutesOnWorkerPool(t *testing.T) {
	f := newServiceFixture(t)
	f.ext.ExtractFn = func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
		return &testutil.SliceIterator{Batches: [][]domain.RawRow{orderRows(2)}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.service.Start(ctx)
	defer f.service.Stop()

	jobID, err := f.service.Submit(domain.SubmitRequest{SyncType: domain.SyncTypeFactOrder})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	deadline := time.After(5 * time.Second)
	for {
		job, err := f.service.GetStatus(jobID)
		require.NoError(t, err)
		if job.Status == domain.SyncStatusSuccess || job.Status == domain.SyncStatusFailed {
			assert.Equal(t, domain.SyncStatusSuccess, job.Status)
			assert.Equal(t, int64(2), job.Counts.Success)
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job stuck in %s", job.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubmitConcurrentDistinctIDs(t *testing.T) {
	f := newServiceFixture(t)
	f.ext.ExtractFn = func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
		return &testutil.SliceIterator{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.service.Start(ctx)
	defer f.service.Stop()

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id, err := f.service.Submit(domain.SubmitRequest{SyncType: domain.SyncTypeFactOrder})
		require.NoError(t, err)
		require.False(t, ids[id], "duplicate job id %s", id)
		ids[id] = true
	}
}

func TestSubmitQueueFull(t *testing.T) {
	f := &serviceFixture{
		registry: NewRegistry(),
		syncLog:  &testutil.MockSyncLogRepo{},
		ext:      &testutil.MockExtractor{},
		loader:   &testutil.MockLoader{},
		schema:   &testutil.MockSchemaManager{},
	}
	// One queue slot and no running workers to drain it.
	f.service = NewService(
		f.registry, f.syncLog, f.ext, NewTransformer(), f.loader, f.schema,
		testSpecs, 1, 1, slog.New(slog.DiscardHandler),
	)

	first, err := f.service.Submit(domain.SubmitRequest{SyncType: domain.SyncTypeFactOrder})
	require.NoError(t, err)

	second, err := f.service.Submit(domain.SubmitRequest{SyncType: domain.SyncTypeFactOrder})
	var qerr *domain.QueueFullError
	require.ErrorAs(t, err, &qerr)
	assert.Empty(t, second)

	// The queued job is still pending, untouched.
	job, err := f.service.GetStatus(first)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPending, job.Status)

	// The rejected submission leaves no orphaned registry entry.
	f.registry.mu.RLock()
	defer f.registry.mu.RUnlock()
	assert.Len(t, f.registry.jobs, 1)
}

func TestGetStatusUnknownJob(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.GetStatus("00000000-0000-0000-0000-000000000000")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestHistoryDefaultsLimit(t *testing.T) {
	f := newServiceFixture(t)
	var gotFilter domain.HistoryFilter
	f.syncLog.ListHistoryFn = func(ctx context.Context, filter domain.HistoryFilter) ([]domain.SyncLogEntry, error) {
		gotFilter = filter
		return nil, nil
	}

	_, err := f.service.History(context.Background(), domain.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultHistoryLimit, gotFilter.Limit)
}

func TestRunDateWindowForwarded(t *testing.T) {
	f := newServiceFixture(t)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	var gotWindow domain.DateWindow
	f.ext.ExtractFn = func(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
		gotWindow = window
		return &testutil.SliceIterator{}, nil
	}

	_, err := f.service.Run(context.Background(), domain.SubmitRequest{
		SyncType: domain.SyncTypeFactOrder, DateFrom: &from, DateTo: &to,
	})
	require.NoError(t, err)
	require.NotNil(t, gotWindow.From)
	require.NotNil(t, gotWindow.To)
	assert.Equal(t, from, *gotWindow.From)
	assert.Equal(t, to, *gotWindow.To)
}
