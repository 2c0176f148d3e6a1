package sync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tms-sync/internal/domain"
)

// Date sanity bounds: source rows occasionally carry placeholder dates far
// outside the business range; those values are nulled, not rejected.
var (
	minValidDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	maxValidDate = time.Date(2100, 12, 31, 23, 59, 59, 0, time.UTC)
)

// Transformer maps raw source rows into canonical fact records. Row-level
// defects produce a rejection error; they are counted by the caller and
// never abort the batch.
type Transformer struct{}

// NewTransformer creates a Transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform normalizes one raw row against the spec. A non-nil error means
// the row is rejected: a required field is missing or failed coercion.
// Coercion failures on optional fields null the value instead.
func (t *Transformer) Transform(spec *domain.TableSpec, raw domain.RawRow) (domain.FactRecord, error) {
	values := make(map[string]any, len(spec.Columns))

	for _, col := range spec.Columns {
		v, err := coerce(col.Type, raw[col.Name])
		if err != nil || v == nil {
			if col.Required {
				if err == nil {
					err = fmt.Errorf("value is missing")
				}
				return domain.FactRecord{}, fmt.Errorf("column %s: %w", col.Name, err)
			}
			values[col.Name] = nil
			continue
		}
		values[col.Name] = v
	}

	return domain.FactRecord{Values: values}, nil
}

// coerce normalizes a raw value to the canonical column type. A nil result
// with nil error means the value is absent (or sanitized away).
func coerce(t domain.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case domain.ColText:
		return coerceText(v)
	case domain.ColInteger:
		return coerceInt(v)
	case domain.ColNumeric:
		return coerceNumeric(v)
	case domain.ColDate:
		return coerceDate(v, "2006-01-02")
	case domain.ColTimestamp:
		return coerceDate(v, time.RFC3339)
	case domain.ColTime:
		return coerceTime(v)
	default:
		return nil, fmt.Errorf("unknown column type %d", t)
	}
}

func coerceText(v any) (any, error) {
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil, nil
		}
		return s, nil
	case []byte:
		return coerceText(string(s))
	case time.Time, bool:
		return nil, fmt.Errorf("cannot coerce %T to text", v)
	default:
		return fmt.Sprint(v), nil
	}
}

func coerceInt(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse integer %q: %w", n, err)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", v)
	}
}

// coerceNumeric normalizes to a float rounded to scale 2, matching the
// NUMERIC(15,2) target columns.
func coerceNumeric(v any) (any, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int64:
		f = float64(n)
	case int:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("parse numeric %q: %w", n, err)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("cannot coerce %T to numeric", v)
	}
	return math.Round(f*100) / 100, nil
}

// coerceDate accepts time.Time or a parseable string. Values outside the
// sanity bounds are nulled.
func coerceDate(v any, layout string) (any, error) {
	var ts time.Time
	switch d := v.(type) {
	case time.Time:
		ts = d
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return nil, nil
		}
		parsed, err := parseAnyTime(s, layout)
		if err != nil {
			return nil, err
		}
		ts = parsed
	default:
		return nil, fmt.Errorf("cannot coerce %T to date", v)
	}
	if ts.Before(minValidDate) || ts.After(maxValidDate) {
		return nil, nil
	}
	return ts, nil
}

func parseAnyTime(s, preferred string) (time.Time, error) {
	layouts := []string{preferred, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, l := range layouts {
		if ts, err := time.Parse(l, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}

// coerceTime normalizes to an HH:MM:SS string.
func coerceTime(v any) (any, error) {
	switch d := v.(type) {
	case time.Time:
		return d.Format("15:04:05"), nil
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return nil, nil
		}
		if ts, err := time.Parse("15:04:05", s); err == nil {
			return ts.Format("15:04:05"), nil
		}
		if ts, err := parseAnyTime(s, time.RFC3339); err == nil {
			return ts.Format("15:04:05"), nil
		}
		return nil, fmt.Errorf("parse time of day %q", s)
	default:
		return nil, fmt.Errorf("cannot coerce %T to time of day", v)
	}
}
