package target

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// Store is the set of target-database primitives the engine consumes.
//
// predicate and assignment arguments are opaque expressions in the store's
// query language and are used verbatim.
type Store interface {
	DescribeSchema(ctx context.Context, table string) ([]ir.Column, error)
	SelectRows(ctx context.Context, table string, columns []string, predicate string) ([][]any, error)
	InsertRow(ctx context.Context, table string, columns []string, values []any) (int64, error)
	UpdateRows(ctx context.Context, table, assignment, predicate string) (int64, error)
	UpdateColumns(ctx context.Context, table string, columns []string, values []any, predicate string) (int64, error)
	DeleteRows(ctx context.Context, table, predicate string) (int64, error)
	TimestampLiteral(t time.Time) string
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to a target database.
//
// SQLite connections are limited to a single open connection and get
// foreign-key enforcement and a busy timeout, so that referential integrity
// holds while disguises and recoveries run.
func Open(driver, dsn string) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to target database: %w", err)
	}

	if dialect == SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
			}
		}
	}

	return New(db, dialect), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's dialect.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// TimestampLiteral renders t for use in predicates against this store.
func (s *SQLStore) TimestampLiteral(t time.Time) string {
	return s.dialect.TimestampLiteral(t)
}

// DescribeSchema returns the table's columns in ordinal order.
// An unknown table yields an InvalidInput error.
func (s *SQLStore) DescribeSchema(ctx context.Context, table string) ([]ir.Column, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.columnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("describe schema %s: %w", table, err)
	}
	defer rows.Close()

	var columns []ir.Column
	for rows.Next() {
		var col ir.Column
		if err := rows.Scan(&col.Name, &col.DeclaredType, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		col.Type = s.dialect.ClassifyType(col.DeclaredType)
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", table, err)
	}

	if len(columns) == 0 {
		return nil, &ir.Error{Code: ir.ErrCodeInvalidInput, Message: "unknown table", Table: table}
	}
	return columns, nil
}

// SelectRows returns the raw driver values of the selected columns.
func (s *SQLStore) SelectRows(ctx context.Context, table string, columns []string, predicate string) ([][]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", columnList(columns), table, predicate)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select rows from %s: %w", table, err)
	}
	defer rows.Close()

	result := [][]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row of %s: %w", table, err)
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %s: %w", table, err)
	}
	return result, nil
}

// InsertRow inserts one row and returns its generated integer key.
// On PostgreSQL the key is read back with RETURNING when the table has an
// integer primary key; otherwise 0 is returned.
func (s *SQLStore) InsertRow(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	if len(columns) != len(values) {
		return 0, ir.NewInvalidInput(fmt.Sprintf("insert into %s: %d columns but %d values", table, len(columns), len(values)))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, columnList(columns), placeholders(len(values)))

	if s.dialect.returnsGeneratedKey() {
		pk, err := s.integerPrimaryKey(ctx, table)
		if err != nil {
			return 0, err
		}
		if pk == "" {
			if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), values...); err != nil {
				return 0, fmt.Errorf("insert into %s: %w", table, err)
			}
			return 0, nil
		}
		var id int64
		query += " RETURNING " + quoteIdent(pk)
		if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(query), values...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), values...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get inserted id: %w", err)
	}
	return id, nil
}

// UpdateRows applies an assignment expression to the rows matching predicate.
func (s *SQLStore) UpdateRows(ctx context.Context, table, assignment, predicate string) (int64, error) {
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, assignment, predicate)
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return rowsAffected(res)
}

// UpdateColumns sets each column to the bound value on the rows matching predicate.
func (s *SQLStore) UpdateColumns(ctx context.Context, table string, columns []string, values []any, predicate string) (int64, error) {
	if len(columns) != len(values) {
		return 0, ir.NewInvalidInput(fmt.Sprintf("update %s: %d columns but %d values", table, len(columns), len(values)))
	}
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = quoteIdent(c) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), predicate)
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), values...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return rowsAffected(res)
}

// DeleteRows deletes the rows matching predicate.
func (s *SQLStore) DeleteRows(ctx context.Context, table, predicate string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, predicate)
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return rowsAffected(res)
}

func (s *SQLStore) integerPrimaryKey(ctx context.Context, table string) (string, error) {
	columns, err := s.DescribeSchema(ctx, table)
	if err != nil {
		return "", err
	}
	for _, c := range columns {
		if c.PrimaryKey && c.Type == ir.Integer {
			return c.Name, nil
		}
	}
	return "", nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
