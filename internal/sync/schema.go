package sync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tms-sync/internal/domain"
)

// Compile-time check.
var _ domain.SchemaManager = (*Schema)(nil)

// Schema ensures the target-side tables exist with the expected structure.
// All DDL is idempotent (IF NOT EXISTS) and runs before any load.
type Schema struct {
	db     *sql.DB
	driver string
	specs  map[domain.FactType]*domain.TableSpec
}

// NewSchema creates a schema manager for the target database.
func NewSchema(db *sql.DB, driver string, specs map[domain.FactType]*domain.TableSpec) *Schema {
	return &Schema{db: db, driver: driver, specs: specs}
}

// EnsureTables creates the sync log table and both fact tables if absent.
func (s *Schema) EnsureTables(ctx context.Context) error {
	for _, stmt := range s.syncLogDDL() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure tms_sync_log: %w", err)
		}
	}
	for _, spec := range s.specs {
		if _, err := s.db.ExecContext(ctx, s.factDDL(spec)); err != nil {
			return fmt.Errorf("ensure %s: %w", spec.Table, err)
		}
	}
	return nil
}

// syncLogDDL returns the statements creating tms_sync_log. The id column
// needs engine-specific autoincrement syntax.
func (s *Schema) syncLogDDL() []string {
	var id string
	var stmts []string
	switch s.driver {
	case "postgres":
		id = "id BIGSERIAL PRIMARY KEY"
	case "sqlite3":
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	default: // duckdb has no serial type, sequences instead
		stmts = append(stmts, "CREATE SEQUENCE IF NOT EXISTS tms_sync_log_seq")
		id = "id BIGINT PRIMARY KEY DEFAULT nextval('tms_sync_log_seq')"
	}

	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tms_sync_log (
	%s,
	job_id TEXT NOT NULL,
	sync_type TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	status TEXT NOT NULL,
	total_rows BIGINT NOT NULL DEFAULT 0,
	success_rows BIGINT NOT NULL DEFAULT 0,
	failed_rows BIGINT NOT NULL DEFAULT 0,
	error_message TEXT
)`, id))
	return stmts
}

// factDDL builds CREATE TABLE IF NOT EXISTS for a fact table, keyed by its
// natural key so the staged merge can resolve conflicts per key.
func (s *Schema) factDDL(spec *domain.TableSpec) string {
	cols := make([]string, 0, len(spec.Columns)+2)
	for _, c := range spec.Columns {
		def := c.Name + " " + sqlType(c.Type)
		if c.Required {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	cols = append(cols, "last_synced TIMESTAMP")
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(spec.KeyColumns, ", ")))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", spec.Table, strings.Join(cols, ",\n\t"))
}

// sqlType maps a canonical column type to DDL accepted by all three
// supported target engines.
func sqlType(t domain.ColumnType) string {
	switch t {
	case domain.ColInteger:
		return "INTEGER"
	case domain.ColNumeric:
		return "NUMERIC(15,2)"
	case domain.ColDate:
		return "DATE"
	case domain.ColTimestamp:
		return "TIMESTAMP"
	case domain.ColTime:
		return "TIME"
	default:
		return "TEXT"
	}
}
