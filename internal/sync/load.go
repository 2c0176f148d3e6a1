package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tms-sync/internal/db"
	"tms-sync/internal/domain"
)

// Compile-time check.
var _ domain.Loader = (*TargetLoader)(nil)

const (
	maxLoadAttempts = 3
	// insertChunkRows bounds bind parameters per INSERT statement.
	insertChunkRows = 100
)

// TargetLoader stages transformed batches and merges them into the target
// fact tables. Each batch is one transaction: stage, count conflicts, merge
// keyed on the natural key, drop the stage. Loading the same batch twice
// yields the same end state.
type TargetLoader struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewTargetLoader creates a loader for the target connection.
func NewTargetLoader(database *sql.DB, driver string, logger *slog.Logger) *TargetLoader {
	return &TargetLoader{db: database, driver: driver, logger: logger, sleep: time.Sleep}
}

// Load writes one batch. Transient failures are retried with exponential
// backoff up to maxLoadAttempts; non-transient failures propagate
// immediately as a LoadError.
func (l *TargetLoader) Load(ctx context.Context, spec *domain.TableSpec, batch []domain.FactRecord) (int64, int64, error) {
	batch = dedupeByKey(spec, batch)
	if len(batch) == 0 {
		return 0, 0, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxLoadAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s...
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			l.sleep(backoff)
			l.logger.Info("retrying batch load", "table", spec.Table, "attempt", attempt+1)
		}

		inserted, updated, err := l.loadOnce(ctx, spec, batch)
		if err == nil {
			return inserted, updated, nil
		}
		if !isTransient(err) {
			return 0, 0, domain.ErrLoad(err, false, "load batch into %s", spec.Table)
		}
		lastErr = err
		l.logger.Warn("batch load attempt failed", "table", spec.Table, "attempt", attempt+1, "error", err)
	}
	return 0, 0, domain.ErrLoad(lastErr, true, "load batch into %s after %d attempts", spec.Table, maxLoadAttempts)
}

// loadOnce runs one staged-merge transaction.
func (l *TargetLoader) loadOnce(ctx context.Context, spec *domain.TableSpec, batch []domain.FactRecord) (inserted, updated int64, err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stage := stageName(spec.Table)
	if _, err = tx.ExecContext(ctx, l.stageDDL(stage, spec)); err != nil {
		return 0, 0, fmt.Errorf("create stage: %w", err)
	}

	if err = l.insertStage(ctx, tx, stage, spec, batch); err != nil {
		return 0, 0, fmt.Errorf("stage batch: %w", err)
	}

	// Conflicting keys become updates; the rest are inserts.
	updated, err = l.countConflicts(ctx, tx, stage, spec)
	if err != nil {
		return 0, 0, fmt.Errorf("count conflicts: %w", err)
	}
	inserted = int64(len(batch)) - updated

	if _, err = tx.ExecContext(ctx, db.Rebind(l.driver, l.mergeSQL(stage, spec)), time.Now().UTC()); err != nil {
		return 0, 0, fmt.Errorf("merge: %w", err)
	}

	if _, err = tx.ExecContext(ctx, "DROP TABLE "+stage); err != nil {
		return 0, 0, fmt.Errorf("drop stage: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, updated, nil
}

// stageDDL mirrors the fact columns without constraints.
func (l *TargetLoader) stageDDL(stage string, spec *domain.TableSpec) string {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = c.Name + " " + sqlType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", stage, strings.Join(cols, ",\n\t"))
}

// insertStage bulk-inserts the batch in bounded chunks.
func (l *TargetLoader) insertStage(ctx context.Context, tx *sql.Tx, stage string, spec *domain.TableSpec, batch []domain.FactRecord) error {
	names := spec.ColumnNames()
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + ")"

	for start := 0; start < len(batch); start += insertChunkRows {
		end := start + insertChunkRows
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(names))
		for i, rec := range chunk {
			placeholders[i] = rowPlaceholder
			for _, n := range names {
				args = append(args, rec.Values[n])
			}
		}

		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			stage, strings.Join(names, ", "), strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, db.Rebind(l.driver, q), args...); err != nil {
			return err
		}
	}
	return nil
}

// countConflicts counts staged rows whose natural key already exists.
func (l *TargetLoader) countConflicts(ctx context.Context, tx *sql.Tx, stage string, spec *domain.TableSpec) (int64, error) {
	join := make([]string, len(spec.KeyColumns))
	for i, k := range spec.KeyColumns {
		join[i] = fmt.Sprintf("t.%s = s.%s", k, k)
	}
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s s JOIN %s t ON %s",
		stage, spec.Table, strings.Join(join, " AND "))

	var n int64
	if err := tx.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// mergeSQL builds the set-based conflict-resolving write. One bound
// argument: the last_synced timestamp.
func (l *TargetLoader) mergeSQL(stage string, spec *domain.TableSpec) string {
	names := spec.ColumnNames()
	keys := make(map[string]bool, len(spec.KeyColumns))
	for _, k := range spec.KeyColumns {
		keys[k] = true
	}

	var sets []string
	for _, n := range names {
		if keys[n] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", n, n))
	}
	sets = append(sets, "last_synced = excluded.last_synced")

	// WHERE true disambiguates the upsert clause from a join for sqlite.
	return fmt.Sprintf(
		"INSERT INTO %s (%s, last_synced) SELECT %s, ? FROM %s WHERE true ON CONFLICT (%s) DO UPDATE SET %s",
		spec.Table,
		strings.Join(names, ", "),
		strings.Join(names, ", "),
		stage,
		strings.Join(spec.KeyColumns, ", "),
		strings.Join(sets, ", "),
	)
}

// stageName generates a collision-free staging table name so concurrent
// jobs can load the same fact table simultaneously.
func stageName(table string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("stage_%s_%s", table, suffix)
}

// dedupeByKey drops in-batch duplicates, keeping the first occurrence, so
// the merge never touches the same key twice in one statement.
func dedupeByKey(spec *domain.TableSpec, batch []domain.FactRecord) []domain.FactRecord {
	seen := make(map[string]bool, len(batch))
	out := batch[:0:0]
	for _, rec := range batch {
		k := rec.Key(spec)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, rec)
	}
	return out
}

// isTransient classifies target write failures worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"bad connection",
		"database is locked",
		"i/o timeout",
		"sqlstate 08", // connection exception class
		"sqlstate 40001", // serialization failure
		"sqlstate 40p01", // deadlock detected
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
