package domain

import (
	"fmt"
	"strings"
)

// FactType tags one of the two fact pipelines.
type FactType string

// The two replicated fact tables.
const (
	FactOrder    FactType = "order"
	FactDelivery FactType = "delivery"
)

// SyncType maps a fact pipeline back to its single-pipeline sync type,
// used when recording per-pipeline sync log entries.
func (f FactType) SyncType() SyncType {
	if f == FactDelivery {
		return SyncTypeFactDelivery
	}
	return SyncTypeFactOrder
}

// ColumnType is the canonical type of a fact table column. The schema
// manager maps it to engine DDL and the transformer uses it for coercion.
type ColumnType int

// Canonical column types.
const (
	ColText ColumnType = iota
	ColInteger
	ColNumeric // fixed scale of 2
	ColDate
	ColTimestamp
	ColTime
)

// ColumnSpec describes one column of a fact table.
type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Required bool // missing or uncoercible value rejects the row
}

// TableSpec is the shared descriptor of a fact table: the schema manager
// derives DDL from it, the extractor runs its source query, the transformer
// coerces against its columns, and the loader builds the staged upsert from
// its key.
type TableSpec struct {
	Fact        FactType
	Table       string   // target table name
	KeyColumns  []string // natural key, the upsert conflict key
	Columns     []ColumnSpec
	SourceQuery string // parameterized on optional date bounds
	DateColumn  string // source column the date window filters on
}

// Column returns the spec for a named column.
func (s *TableSpec) Column(name string) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// ColumnNames returns the column names in declaration order.
func (s *TableSpec) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// RawRow is one untyped row read from the source database.
type RawRow map[string]any

// FactRecord is a transformed, canonical row ready for loading.
type FactRecord struct {
	Values map[string]any
}

// Key derives the record's natural-key identity under the given spec.
// Used for in-batch deduplication before the staged merge.
func (r FactRecord) Key(spec *TableSpec) string {
	parts := make([]string, len(spec.KeyColumns))
	for i, k := range spec.KeyColumns {
		parts[i] = fmt.Sprint(r.Values[k])
	}
	return strings.Join(parts, "\x1f")
}
