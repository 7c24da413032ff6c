// Package record maps fetched rows onto the target table and defines the
// storage contract the loader writes through.
package record

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	DateTimeLayout = "2006-01-02 15:04:05"
	TimeLayout     = "15:04:05"
)

// ErrMalformedRow marks a row that cannot be mapped onto the target columns.
var ErrMalformedRow = errors.New("malformed row")

// Row is one fetched record with named fields.
type Row map[string]any

// Target describes the destination table. Columns and Fields are aligned:
// Columns[i] is filled from Row[Fields[i]].
type Target struct {
	Table          string
	Columns        []string
	Fields         []string
	Keys           []string
	UpdatedColumn  string
	InsertedColumn string
}

// Stamp is the timestamp pair computed for each row in the job's timezone.
type Stamp struct {
	DateTime string
	Time     string
}

func NewStamp(now time.Time, loc *time.Location) Stamp {
	t := now.In(loc)
	return Stamp{DateTime: t.Format(DateTimeLayout), Time: t.Format(TimeLayout)}
}

// Record is a row mapped onto Target.Columns plus its timestamps.
type Record struct {
	Index  int
	Values []any
	Stamp  Stamp
}

// Args returns the statement arguments: columns, updated-at, inserted-at.
func (r Record) Args() []any {
	args := make([]any, 0, len(r.Values)+2)
	args = append(args, r.Values...)
	return append(args, r.Stamp.DateTime, r.Stamp.DateTime)
}

// IsKey reports whether column is part of the natural key.
func (t Target) IsKey(column string) bool {
	for _, k := range t.Keys {
		if k == column {
			return true
		}
	}
	return false
}

// NonKey returns the columns refreshed on conflict, in column order.
func (t Target) NonKey() []string {
	var out []string
	for _, c := range t.Columns {
		if !t.IsKey(c) {
			out = append(out, c)
		}
	}
	return out
}

// Build maps row onto the target columns. A missing field, a nested value or
// a null key column is ErrMalformedRow.
func (t Target) Build(index int, row Row, stamp Stamp) (Record, error) {
	values := make([]any, len(t.Columns))
	for i, field := range t.Fields {
		v, ok := row[field]
		if !ok {
			return Record{}, errors.Mark(errors.Newf("row %d: field %q missing", index, field), ErrMalformedRow)
		}
		sv, err := scalar(v)
		if err != nil {
			return Record{}, errors.Mark(errors.Wrapf(err, "row %d: field %q", index, field), ErrMalformedRow)
		}
		if sv == nil && t.IsKey(t.Columns[i]) {
			return Record{}, errors.Mark(errors.Newf("row %d: key field %q is null", index, field), ErrMalformedRow)
		}
		values[i] = sv
	}
	return Record{Index: index, Values: values, Stamp: stamp}, nil
}

func scalar(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	default:
		return nil, errors.Newf("unsupported value type %T", v)
	}
}

// Store opens one connection per ingest run.
type Store interface {
	Name() string
	Open(ctx context.Context) (Writer, error)
}

// Writer upserts records one at a time, each committed on its own.
type Writer interface {
	Upsert(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}
