package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tms-sync/internal/domain"
)

var extractSpec = &domain.TableSpec{
	Fact:       domain.FactOrder,
	Table:      "tms_fact_order",
	KeyColumns: []string{"order_id"},
	Columns: []domain.ColumnSpec{
		{Name: "order_id", Type: domain.ColText, Required: true},
		{Name: "faktur_date", Type: domain.ColDate, Required: true},
	},
	DateColumn:  "faktur_date",
	SourceQuery: `SELECT order_id, faktur_date FROM src_orders {{where}} ORDER BY order_id`,
}

func TestBuildSourceQuery(t *testing.T) {
	q, args := buildSourceQuery(extractSpec, domain.DateWindow{})
	if strings.Contains(q, whereMarker) {
		t.Errorf("marker left in query: %s", q)
	}
	if len(args) != 0 {
		t.Errorf("unbounded window produced args: %v", args)
	}

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	q, args = buildSourceQuery(extractSpec, domain.DateWindow{From: &from, To: &to})
	if !strings.Contains(q, "faktur_date >= ?") || !strings.Contains(q, "faktur_date <= ?") {
		t.Errorf("bounds missing: %s", q)
	}
	if len(args) != 2 || args[0] != "2025-06-01" || args[1] != "2025-06-30" {
		t.Errorf("args = %v", args)
	}
}

func TestExtractBatchesAndWindow(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Exec(`CREATE TABLE src_orders (order_id TEXT, faktur_date TEXT)`); err != nil {
		t.Fatal(err)
	}
	for _, r := range [][2]string{
		{"O1", "2025-05-31"},
		{"O2", "2025-06-01"},
		{"O3", "2025-06-10"},
		{"O4", "2025-06-30"},
		{"O5", "2025-07-01"},
	} {
		if _, err := db.Exec(`INSERT INTO src_orders VALUES (?, ?)`, r[0], r[1]); err != nil {
			t.Fatal(err)
		}
	}

	e := NewSourceExtractor(db, "sqlite3", 2)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	iter, err := e.Extract(context.Background(), extractSpec, domain.DateWindow{From: &from, To: &to})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	defer iter.Close()

	var ids []string
	var batches int
	for {
		batch, err := iter.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if batch == nil {
			break
		}
		batches++
		if len(batch) > 2 {
			t.Errorf("batch size %d exceeds limit", len(batch))
		}
		for _, row := range batch {
			ids = append(ids, row["order_id"].(string))
		}
	}

	// Bounds are inclusive on both sides.
	if len(ids) != 3 || ids[0] != "O2" || ids[2] != "O4" {
		t.Errorf("ids = %v", ids)
	}
	if batches != 2 {
		t.Errorf("batches = %d, want 2", batches)
	}
}

func TestExtractEmptyResult(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Exec(`CREATE TABLE src_orders (order_id TEXT, faktur_date TEXT)`); err != nil {
		t.Fatal(err)
	}

	e := NewSourceExtractor(db, "sqlite3", 10)
	iter, err := e.Extract(context.Background(), extractSpec, domain.DateWindow{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	defer iter.Close()

	batch, err := iter.Next()
	if err != nil || batch != nil {
		t.Errorf("empty source: batch=%v err=%v", batch, err)
	}
}

func TestExtractSourceDown(t *testing.T) {
	db := openTestDB(t)
	// src_orders never created.
	e := NewSourceExtractor(db, "sqlite3", 10)

	_, err := e.Extract(context.Background(), extractSpec, domain.DateWindow{})
	if err == nil {
		t.Fatal("expected error")
	}
	var src *domain.SourceUnavailableError
	if !errors.As(err, &src) {
		t.Errorf("expected SourceUnavailableError, got %T", err)
	}
}
