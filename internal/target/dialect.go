package target

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// Dialect captures the differences between supported target databases.
type Dialect interface {
	// DriverName is the database/sql driver name.
	DriverName() string

	// Rebind converts ?-style placeholders to the dialect's bind syntax.
	Rebind(query string) string

	// ClassifyType maps a reported column type name to a semantic type.
	ClassifyType(declared string) ir.SemanticType

	// TimestampLiteral renders t as a literal comparable with timestamp columns.
	TimestampLiteral(t time.Time) string

	// columnsQuery returns (name, declared type, is primary key) rows in ordinal order.
	columnsQuery() string

	// returnsGeneratedKey reports whether inserts need a RETURNING clause
	// instead of LastInsertId.
	returnsGeneratedKey() bool
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "postgres", "pq":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

var (
	// SQLite is the dialect for github.com/mattn/go-sqlite3.
	SQLite Dialect = sqliteDialect{}

	// Postgres is the dialect for github.com/lib/pq.
	Postgres Dialect = postgresDialect{}
)

const timestampLiteralLayout = "2006-01-02 15:04:05"

type sqliteDialect struct{}

func (sqliteDialect) DriverName() string { return "sqlite3" }

func (sqliteDialect) Rebind(query string) string { return sqlx.Rebind(sqlx.QUESTION, query) }

// ClassifyType follows SQLite's affinity rules, restricted to the types
// the driver hands back as time.Time for timestamps.
func (sqliteDialect) ClassifyType(declared string) ir.SemanticType {
	t := strings.ToUpper(strings.TrimSpace(declared))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "DATE", "DATETIME", "TIMESTAMP":
		return ir.Timestamp
	}
	switch {
	case strings.Contains(t, "INT"):
		return ir.Integer
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return ir.Text
	default:
		return ir.Unsupported
	}
}

func (sqliteDialect) TimestampLiteral(t time.Time) string {
	return "'" + t.UTC().Format(timestampLiteralLayout) + "'"
}

func (sqliteDialect) columnsQuery() string {
	return `SELECT name, type, pk > 0 FROM pragma_table_info(?) ORDER BY cid`
}

func (sqliteDialect) returnsGeneratedKey() bool { return false }

type postgresDialect struct{}

func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) Rebind(query string) string { return sqlx.Rebind(sqlx.DOLLAR, query) }

func (postgresDialect) ClassifyType(declared string) ir.SemanticType {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "smallint", "integer", "bigint":
		return ir.Integer
	case "text", "character varying", "character", "citext":
		return ir.Text
	case "timestamp without time zone", "timestamp with time zone", "date":
		return ir.Timestamp
	default:
		return ir.Unsupported
	}
}

func (postgresDialect) TimestampLiteral(t time.Time) string {
	return "'" + t.UTC().Format(timestampLiteralLayout) + "'"
}

func (postgresDialect) columnsQuery() string {
	return `
		SELECT c.column_name, c.data_type,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
					ON tc.constraint_name = k.constraint_name
					AND tc.table_schema = k.table_schema
					AND tc.table_name = k.table_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND k.column_name = c.column_name
			)
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema() AND c.table_name = $1
		ORDER BY c.ordinal_position`
}

func (postgresDialect) returnsGeneratedKey() bool { return true }
