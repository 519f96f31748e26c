package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/go-sql-driver/mysql" // MySQL
	_ "github.com/lib/pq"              // PostgreSQL

	"github.com/systmms/securekv/pkg/securekv"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "securekv_items"

// Dialect selects the SQL flavour used for the upsert and schema.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type sqlQueries struct {
	create string
	upsert string
	get    string
	remove string
}

func queriesFor(d Dialect, table string) (sqlQueries, error) {
	switch d {
	case Postgres:
		return sqlQueries{
			create: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (item_key TEXT PRIMARY KEY, item_value TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL DEFAULT now())`, table),
			upsert: fmt.Sprintf(`INSERT INTO %s (item_key, item_value) VALUES ($1, $2) ON CONFLICT (item_key) DO UPDATE SET item_value = EXCLUDED.item_value, updated_at = now()`, table),
			get:    fmt.Sprintf(`SELECT item_value FROM %s WHERE item_key = $1`, table),
			remove: fmt.Sprintf(`DELETE FROM %s WHERE item_key = $1`, table),
		}, nil
	case MySQL:
		return sqlQueries{
			create: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (item_key VARCHAR(512) NOT NULL PRIMARY KEY, item_value LONGTEXT NOT NULL, updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP)", table),
			upsert: fmt.Sprintf("INSERT INTO %s (item_key, item_value) VALUES (?, ?) ON DUPLICATE KEY UPDATE item_value = VALUES(item_value)", table),
			get:    fmt.Sprintf("SELECT item_value FROM %s WHERE item_key = ?", table),
			remove: fmt.Sprintf("DELETE FROM %s WHERE item_key = ?", table),
		}, nil
	default:
		return sqlQueries{}, fmt.Errorf("unsupported SQL dialect %q", d)
	}
}

// SQL keeps entries in a two-column table on PostgreSQL or MySQL.
type SQL struct {
	db      *sql.DB
	q       sqlQueries
	ownsDB  bool
	dialect Dialect
}

// OpenSQL connects with the dialect's driver, creates the table if missing
// and returns a map that owns the connection pool.
func OpenSQL(ctx context.Context, dialect Dialect, dsn, table string) (*SQL, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	m, err := NewSQL(db, dialect, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	m.ownsDB = true

	if err := m.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// NewSQL wraps an existing pool. The caller keeps ownership of db.
func NewSQL(db *sql.DB, dialect Dialect, table string) (*SQL, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	q, err := queriesFor(dialect, table)
	if err != nil {
		return nil, err
	}
	return &SQL{db: db, q: q, dialect: dialect}, nil
}

// Dialect returns the SQL flavour in use.
func (m *SQL) Dialect() Dialect {
	return m.dialect
}

// EnsureSchema creates the backing table if it does not exist.
func (m *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, m.q.create); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (m *SQL) SetItem(ctx context.Context, key, value string) error {
	if _, err := m.db.ExecContext(ctx, m.q.upsert, key, value); err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

func (m *SQL) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx, m.q.get, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read entry: %w", err)
	}
	return value, true, nil
}

func (m *SQL) RemoveItem(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, m.q.remove, key); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// Close closes the pool if OpenSQL created it.
func (m *SQL) Close() error {
	if !m.ownsDB {
		return nil
	}
	return m.db.Close()
}

var _ securekv.PersistentMap = (*SQL)(nil)
