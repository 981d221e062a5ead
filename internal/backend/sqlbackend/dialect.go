package sqlbackend

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/metagrid-platform/metagrid/internal/meta"
)

// Dialect abstracts the differences between the supported SQL engines
type Dialect interface {
	// Name returns the dialect name
	Name() string
	// Placeholder returns the bind placeholder for the i-th parameter,
	// starting at 1
	Placeholder(i int) string
	// QuoteIdentifier quotes a table or column name
	QuoteIdentifier(name string) string
	// ColumnType maps an attribute type to a column type
	ColumnType(t meta.AttributeType) string
}

// PostgresDialect targets PostgreSQL through the pgx stdlib driver
type PostgresDialect struct{}

// Name returns "postgres"
func (PostgresDialect) Name() string { return "postgres" }

// Placeholder returns $i
func (PostgresDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

// QuoteIdentifier quotes a table or column name
func (PostgresDialect) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }

// ColumnType maps an attribute type to a PostgreSQL column type
func (PostgresDialect) ColumnType(t meta.AttributeType) string {
	switch t {
	case meta.TypeBool:
		return "boolean"
	case meta.TypeInt:
		return "integer"
	case meta.TypeLong:
		return "bigint"
	case meta.TypeDecimal:
		return "double precision"
	case meta.TypeDate:
		return "date"
	case meta.TypeDateTime:
		return "timestamp with time zone"
	case meta.TypeText, meta.TypeHTML, meta.TypeScript:
		return "text"
	default:
		return "character varying(255)"
	}
}

// SQLiteDialect targets SQLite through the mattn driver
type SQLiteDialect struct{}

// Name returns "sqlite"
func (SQLiteDialect) Name() string { return "sqlite" }

// Placeholder returns ?
func (SQLiteDialect) Placeholder(int) string { return "?" }

// QuoteIdentifier quotes a table or column name. SQLite accepts the same
// double quoted form as PostgreSQL.
func (SQLiteDialect) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }

// ColumnType maps an attribute type to a SQLite column type
func (SQLiteDialect) ColumnType(t meta.AttributeType) string {
	switch t {
	case meta.TypeBool, meta.TypeInt, meta.TypeLong:
		return "integer"
	case meta.TypeDecimal:
		return "real"
	default:
		return "text"
	}
}

// DialectFor returns the dialect matching a driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return PostgresDialect{}, nil
	case "sqlite3", "sqlite":
		return SQLiteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}
