package sqlstore

import (
	"strings"

	"WeeklyIngest/internal/record"
)

// Dialect selects identifier quoting and the conflict clause.
type Dialect int

const (
	MySQL Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "mysql"
}

func (d Dialect) quote(id string) string {
	if d == SQLite {
		return `"` + id + `"`
	}
	return "`" + id + "`"
}

// UpsertSQL builds the parameterized statement for t. Arguments follow
// record.Record.Args: the columns, then updated-at, then inserted-at.
// On conflict only the non-key columns and the updated-at column change.
func (d Dialect) UpsertSQL(t record.Target) string {
	cols := append(append([]string{}, t.Columns...), t.UpdatedColumn, t.InsertedColumn)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.quote(c)
		marks[i] = "?"
	}

	refresh := append(t.NonKey(), t.UpdatedColumn)
	sets := make([]string, len(refresh))
	for i, c := range refresh {
		q := d.quote(c)
		if d == SQLite {
			sets[i] = q + " = excluded." + q
		} else {
			sets[i] = q + " = VALUES(" + q + ")"
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.quote(t.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(marks, ", "))
	b.WriteString(")")

	if d == SQLite {
		keys := make([]string, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = d.quote(k)
		}
		b.WriteString(" ON CONFLICT (")
		b.WriteString(strings.Join(keys, ", "))
		b.WriteString(") DO UPDATE SET ")
	} else {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
	}
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}
