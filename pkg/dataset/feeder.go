package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/webtpl/pkg/webtpl"
)

// Feeder fills webtpl dynamic blocks from SQL queries.
type Feeder struct {
	db     *sql.DB
	logger *slog.Logger

	// Raw disables HTML escaping of column values.
	Raw bool
	// MaxRows stops a Fill after this many rows. Zero means no limit.
	MaxRows int
}

// NewFeeder returns a Feeder using db. A nil logger discards all logs.
func NewFeeder(db *sql.DB, logger *slog.Logger) *Feeder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Feeder{db: db, logger: logger}
}

// Fill runs query and evaluates the dynamic block at path once per row, after
// assigning every column to the macro named after it. NULL columns clear the
// macro. It returns the number of rows rendered.
func (f *Feeder) Fill(ctx context.Context, doc *webtpl.Document, path, query string, args ...any) (int, error) {
	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query for %s failed: %w", path, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("failed to read columns for %s: %w", path, err)
	}

	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	n := 0
	for rows.Next() {
		if f.MaxRows > 0 && n >= f.MaxRows {
			f.logger.Debug("row limit reached", "block", path, "limit", f.MaxRows)
			break
		}
		if err = rows.Scan(dest...); err != nil {
			return n, fmt.Errorf("failed to scan row for %s: %w", path, err)
		}
		f.assign(doc, columns, values)
		if err = doc.EvaluateDynamic(path); err != nil {
			return n, err
		}
		n++
	}
	if err = rows.Err(); err != nil {
		return n, fmt.Errorf("failed to iterate rows for %s: %w", path, err)
	}
	f.logger.Debug("block filled", "block", path, "rows", n)
	return n, nil
}

// AssignRow runs query and assigns the columns of its first row as macros,
// without evaluating anything. It reports whether a row was found.
func (f *Feeder) AssignRow(ctx context.Context, doc *webtpl.Document, query string, args ...any) (bool, error) {
	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("query failed: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	columns, err := rows.Columns()
	if err != nil {
		return false, fmt.Errorf("failed to read columns: %w", err)
	}
	if !rows.Next() {
		return false, rows.Err()
	}
	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err = rows.Scan(dest...); err != nil {
		return false, fmt.Errorf("failed to scan row: %w", err)
	}
	f.assign(doc, columns, values)
	return true, nil
}

func (f *Feeder) assign(doc *webtpl.Document, columns []string, values []sql.NullString) {
	for i, col := range columns {
		if !values[i].Valid {
			doc.Assign(col, "")
			continue
		}
		v := values[i].String
		if !f.Raw {
			v = webtpl.EscapeHTML(v)
		}
		doc.Assign(col, v)
	}
}
