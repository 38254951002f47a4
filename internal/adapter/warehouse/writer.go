// Package warehouse writes pipeline rows into the analytics warehouse
// (PostgreSQL). It separates row-level rejections, which are terminal, from
// transport errors, which callers may retry.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row maps warehouse column names to values. Nil and typed-nil values insert
// as SQL NULL.
type Row map[string]any

// LoadMode selects bulk-load semantics for LoadTable.
type LoadMode int

const (
	// LoadAppend adds rows to the existing table contents.
	LoadAppend LoadMode = iota
	// LoadTruncate atomically replaces the table contents.
	LoadTruncate
)

// RowError describes a single rejected row. Row errors are terminal: the same
// row cannot succeed on retry.
type RowError struct {
	Index  int
	Reason string
}

// InsertResult reports per-row outcomes of an InsertRows call.
type InsertResult struct {
	Inserted  int
	RowErrors []RowError
}

// Writer is the warehouse contract shared by the worker, the producer's sync
// fallback, and the feed fetchers.
type Writer interface {
	InsertRows(ctx context.Context, table string, rows []Row) (InsertResult, error)
	LoadTable(ctx context.Context, table string, columns []string, rows []Row, mode LoadMode) error
}

// Postgres implements Writer over a pgx connection pool. The pool is safe for
// concurrent use and shared by reference across worker tasks.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

// NewPostgres connects to the warehouse and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return &Postgres{pool: pool, schema: schema, logger: logger}, nil
}

// InsertRows inserts rows one at a time so a rejected row does not poison its
// neighbors. Row-level failures come back in the result; the returned error is
// transport-level only, and rows inserted before it remain inserted.
func (p *Postgres) InsertRows(ctx context.Context, table string, rows []Row) (InsertResult, error) {
	var result InsertResult
	for i, row := range rows {
		columns := sortedColumns(row)
		query := insertStatement(p.schema, table, columns)
		args := make([]any, len(columns))
		for j, col := range columns {
			args[j] = row[col]
		}

		if _, err := p.pool.Exec(ctx, query, args...); err != nil {
			if isRowError(err) {
				result.RowErrors = append(result.RowErrors, RowError{Index: i, Reason: err.Error()})
				continue
			}
			return result, fmt.Errorf("insert into %s: %w", table, err)
		}
		result.Inserted++
	}
	return result, nil
}

// LoadTable bulk-loads rows via COPY inside one transaction. In truncate mode
// the table is emptied first, so readers see either the old snapshot or the
// new one, never a mixture.
func (p *Postgres) LoadTable(ctx context.Context, table string, columns []string, rows []Row, mode LoadMode) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin load of %s: %w", table, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	ident := pgx.Identifier{p.schema, table}
	if mode == LoadTruncate {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+ident.Sanitize()); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		rowValues := make([]any, len(columns))
		for j, col := range columns {
			rowValues[j] = row[col]
		}
		values[i] = rowValues
	}

	if _, err := tx.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(values)); err != nil {
		return fmt.Errorf("copy into %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit load of %s: %w", table, err)
	}

	p.logger.Info("table loaded", "table", table, "rows", len(rows), "truncate", mode == LoadTruncate)
	return nil
}

// Health verifies warehouse connectivity.
func (p *Postgres) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// insertStatement builds a parameterized INSERT for the given columns.
func insertStatement(schema, table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{schema, table}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
}

// sortedColumns returns the row's column names in a deterministic order.
func sortedColumns(row Row) []string {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

// isRowError reports whether a Postgres error condemns the row itself rather
// than the transport. SQLSTATE classes: 22 data exception, 23 integrity
// constraint violation, 42 syntax/column mismatch.
func isRowError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "22"),
		strings.HasPrefix(pgErr.Code, "23"),
		strings.HasPrefix(pgErr.Code, "42"):
		return true
	}
	return false
}
