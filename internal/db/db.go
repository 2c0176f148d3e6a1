// Package db provides database connectivity helpers for the source and
// target connections.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tms-sync/internal/config"
)

// Open opens a *sql.DB for the given descriptor and verifies it with a ping.
// The driver must be registered by the caller (blank import in main).
func Open(cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open(DriverName(cfg.Driver), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	switch cfg.Driver {
	case "sqlite3":
		// SQLite performs best with a single writer connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	return db, nil
}

// DriverName maps the configured engine name to the name the driver
// registers with database/sql. The pgx stdlib adapter registers as "pgx",
// not "postgres"; config, Rebind, and DDL keep using "postgres".
func DriverName(driver string) string {
	if driver == "postgres" {
		return "pgx"
	}
	return driver
}

// Rebind rewrites '?' placeholders to $N for postgres. SQLite and DuckDB
// both accept '?' natively, so queries are written with '?' throughout.
func Rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
