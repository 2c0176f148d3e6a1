package repository

import (
	"context"
	"database/sql"
	"time"

	"tms-sync/internal/db"
	"tms-sync/internal/domain"
)

// Compile-time check.
var _ domain.SyncLogRepository = (*SyncLogRepo)(nil)

// SyncLogRepo records sync runs in tms_sync_log on the target database.
type SyncLogRepo struct {
	db     *sql.DB
	driver string
}

// NewSyncLogRepo creates a new SyncLogRepo. driver selects placeholder
// style for the target engine.
func NewSyncLogRepo(database *sql.DB, driver string) *SyncLogRepo {
	return &SyncLogRepo{db: database, driver: driver}
}

// Begin inserts a RUNNING entry and returns its id.
func (r *SyncLogRepo) Begin(ctx context.Context, jobID string, syncType domain.SyncType) (int64, error) {
	q := db.Rebind(r.driver, `
		INSERT INTO tms_sync_log (job_id, sync_type, started_at, status, total_rows, success_rows, failed_rows)
		VALUES (?, ?, ?, ?, 0, 0, 0)
		RETURNING id`)

	var id int64
	err := r.db.QueryRowContext(ctx, q,
		jobID, string(syncType), time.Now().UTC(), domain.SyncStatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, mapDBError(err)
	}
	return id, nil
}

// Finish finalizes an entry with a terminal status and row counts.
func (r *SyncLogRepo) Finish(ctx context.Context, id int64, status string, counts domain.SyncCounts, errMsg *string) error {
	q := db.Rebind(r.driver, `
		UPDATE tms_sync_log
		SET finished_at = ?, status = ?, total_rows = ?, success_rows = ?, failed_rows = ?, error_message = ?
		WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, q,
		time.Now().UTC(), status, counts.Total, counts.Success, counts.Failed,
		nullStrFromPtr(errMsg), id,
	)
	if err != nil {
		return mapDBError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound("sync log entry %d not found", id)
	}
	return nil
}

// ListHistory returns entries most-recent-first, optionally filtered by
// sync type and truncated to the filter limit.
func (r *SyncLogRepo) ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.SyncLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}

	q := `
		SELECT id, job_id, sync_type, started_at, finished_at, status,
		       total_rows, success_rows, failed_rows, error_message
		FROM tms_sync_log`
	args := []any{}
	if filter.SyncType != nil {
		q += ` WHERE sync_type = ?`
		args = append(args, string(*filter.SyncType))
	}
	q += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, db.Rebind(r.driver, q), args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []domain.SyncLogEntry
	for rows.Next() {
		var (
			e          domain.SyncLogEntry
			syncType   string
			finishedAt sql.NullTime
			errMsg     sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.JobID, &syncType, &e.StartedAt, &finishedAt, &e.Status,
			&e.TotalRows, &e.SuccessRows, &e.FailedRows, &errMsg); err != nil {
			return nil, err
		}
		e.SyncType = domain.SyncType(syncType)
		if finishedAt.Valid {
			t := finishedAt.Time
			e.FinishedAt = &t
		}
		if errMsg.Valid {
			e.ErrorMessage = &errMsg.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
