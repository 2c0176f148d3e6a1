package sync

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"tms-sync/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", t.TempDir()+"/test.sqlite?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureTablesIdempotent(t *testing.T) {
	db := openTestDB(t)
	s := NewSchema(db, "sqlite3", Specs())
	ctx := context.Background()

	if err := s.EnsureTables(ctx); err != nil {
		t.Fatalf("first EnsureTables: %v", err)
	}
	// Second run against existing tables must be a no-op.
	if err := s.EnsureTables(ctx); err != nil {
		t.Fatalf("second EnsureTables: %v", err)
	}

	for _, table := range []string{"tms_sync_log", "tms_fact_order", "tms_fact_delivery"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestFactTableKeyEnforced(t *testing.T) {
	db := openTestDB(t)
	s := NewSchema(db, "sqlite3", Specs())
	if err := s.EnsureTables(context.Background()); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}

	// Required key columns carry NOT NULL.
	_, err := db.Exec(`INSERT INTO tms_fact_order (order_id, faktur_date) VALUES (NULL, '2025-06-01')`)
	if err == nil {
		t.Error("NULL key accepted")
	}

	// The natural key is the primary key.
	if _, err := db.Exec(`INSERT INTO tms_fact_order (order_id, faktur_date) VALUES ('O1', '2025-06-01')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = db.Exec(`INSERT INTO tms_fact_order (order_id, faktur_date) VALUES ('O1', '2025-06-02')`)
	if err == nil {
		t.Error("duplicate key accepted")
	}
}

func TestFactDDLColumns(t *testing.T) {
	s := &Schema{driver: "sqlite3"}
	ddl := s.factDDL(&domain.TableSpec{
		Table:      "t",
		KeyColumns: []string{"a", "b"},
		Columns: []domain.ColumnSpec{
			{Name: "a", Type: domain.ColText, Required: true},
			{Name: "b", Type: domain.ColInteger, Required: true},
			{Name: "v", Type: domain.ColNumeric},
		},
	})

	for _, want := range []string{
		"a TEXT NOT NULL",
		"b INTEGER NOT NULL",
		"v NUMERIC(15,2)",
		"last_synced TIMESTAMP",
		"PRIMARY KEY (a, b)",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}
