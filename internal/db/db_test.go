package db

import (
	"database/sql"
	"slices"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestDriverName(t *testing.T) {
	if got := DriverName("postgres"); got != "pgx" {
		t.Errorf("DriverName(postgres) = %q, want pgx", got)
	}
	for _, d := range []string{"sqlite3", "duckdb", "pgx"} {
		if got := DriverName(d); got != d {
			t.Errorf("DriverName(%s) = %q", d, got)
		}
	}
}

// The configured "postgres" engine must resolve to a driver the binaries
// actually register (the pgx stdlib adapter).
func TestPostgresDriverResolves(t *testing.T) {
	if !slices.Contains(sql.Drivers(), DriverName("postgres")) {
		t.Fatalf("driver %q not registered; registered: %v", DriverName("postgres"), sql.Drivers())
	}

	// sql.Open resolves the driver without dialing.
	conn, err := sql.Open(DriverName("postgres"), "postgres://u:p@localhost:5432/x")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = conn.Close()
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?) RETURNING id"

	if got := Rebind("sqlite3", q); got != q {
		t.Errorf("sqlite3 query rewritten: %q", got)
	}
	if got := Rebind("duckdb", q); got != q {
		t.Errorf("duckdb query rewritten: %q", got)
	}

	want := "INSERT INTO t (a, b) VALUES ($1, $2) RETURNING id"
	if got := Rebind("postgres", q); got != want {
		t.Errorf("postgres = %q, want %q", got, want)
	}
}

func TestRebindNoPlaceholders(t *testing.T) {
	q := "SELECT 1"
	if got := Rebind("postgres", q); got != q {
		t.Errorf("query without placeholders rewritten: %q", got)
	}
}
