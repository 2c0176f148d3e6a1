package sync

import (
	"context"
	"database/sql"
	"strings"

	"tms-sync/internal/db"
	"tms-sync/internal/domain"
)

// Compile-time check.
var _ domain.Extractor = (*SourceExtractor)(nil)

// SourceExtractor reads fact rows from the source database in fixed-size
// batches. Any query or scan failure is fatal to the pipeline invocation.
type SourceExtractor struct {
	db        *sql.DB
	driver    string
	batchSize int
}

// NewSourceExtractor creates an extractor over the source connection.
func NewSourceExtractor(database *sql.DB, driver string, batchSize int) *SourceExtractor {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &SourceExtractor{db: database, driver: driver, batchSize: batchSize}
}

// Extract runs the spec's source query with the optional date window and
// returns a one-pass batched iterator. Ordering is source-defined.
func (e *SourceExtractor) Extract(ctx context.Context, spec *domain.TableSpec, window domain.DateWindow) (domain.RowIterator, error) {
	query, args := buildSourceQuery(spec, window)

	rows, err := e.db.QueryContext(ctx, db.Rebind(e.driver, query), args...)
	if err != nil {
		return nil, domain.ErrSourceUnavailable(err, "query source for %s", spec.Table)
	}

	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, domain.ErrSourceUnavailable(err, "read source columns for %s", spec.Table)
	}

	return &rowIterator{rows: rows, cols: cols, batchSize: e.batchSize, table: spec.Table}, nil
}

// buildSourceQuery composes the spec query with inclusive date bounds.
func buildSourceQuery(spec *domain.TableSpec, window domain.DateWindow) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	if window.From != nil {
		where += " AND " + spec.DateColumn + " >= ?"
		args = append(args, window.From.Format("2006-01-02"))
	}
	if window.To != nil {
		where += " AND " + spec.DateColumn + " <= ?"
		args = append(args, window.To.Format("2006-01-02"))
	}
	return strings.Replace(spec.SourceQuery, whereMarker, where, 1), args
}

// rowIterator streams batches off an open *sql.Rows cursor.
type rowIterator struct {
	rows      *sql.Rows
	cols      []string
	batchSize int
	table     string
	done      bool
}

// Next returns the next batch, or nil when the sequence is exhausted.
func (it *rowIterator) Next() ([]domain.RawRow, error) {
	if it.done {
		return nil, nil
	}

	batch := make([]domain.RawRow, 0, it.batchSize)
	for len(batch) < it.batchSize && it.rows.Next() {
		values := make([]any, len(it.cols))
		ptrs := make([]any, len(it.cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := it.rows.Scan(ptrs...); err != nil {
			return nil, domain.ErrSourceUnavailable(err, "scan source row from %s", it.table)
		}

		row := make(domain.RawRow, len(it.cols))
		for i, c := range it.cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		batch = append(batch, row)
	}

	if len(batch) < it.batchSize {
		it.done = true
		if err := it.rows.Err(); err != nil {
			return nil, domain.ErrSourceUnavailable(err, "iterate source rows from %s", it.table)
		}
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return batch, nil
}

// Close releases the underlying cursor.
func (it *rowIterator) Close() error {
	return it.rows.Close()
}
