package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// RowWriter inserts normalized records into a fixed table. Duplicate rows are
// skipped by the database through ON CONFLICT DO NOTHING, so redelivered
// messages do not create extra rows as long as the table has a unique key.
type RowWriter struct {
	table string
}

func NewRowWriter(table string) *RowWriter {
	return &RowWriter{table: table}
}

// Write executes the insert on ex and reports whether a row was added. It
// never commits.
func (w *RowWriter) Write(ctx context.Context, ex Execer, rec Record) (bool, error) {
	query, args, err := w.insertStatement(rec)
	if err != nil {
		return false, err
	}

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		if code := sqlState(err); code != "" {
			return false, persistenceErrorf("insert into %s failed (sqlstate %s): %v", w.table, code, err)
		}
		return false, persistenceErrorf("insert into %s failed: %v", w.table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, persistenceErrorf("insert into %s: rows affected unavailable: %v", w.table, err)
	}
	return n > 0, nil
}

// insertStatement builds the parameterized insert, columns in sorted order so
// the statement text is stable for a given field set.
func (w *RowWriter) insertStatement(rec Record) (string, []any, error) {
	if len(rec) == 0 {
		return "", nil, persistenceErrorf("record has no fields")
	}

	columns := make([]string, 0, len(rec))
	for k := range rec {
		if k == "" {
			return "", nil, persistenceErrorf("record has an empty field name")
		}
		columns = append(columns, k)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		quoteTable(w.table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args, nil
}

// quoteTable quotes each part of a possibly schema qualified table name
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
