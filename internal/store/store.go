package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported values for the database.driver setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Store is the persistence handle for user identities and weather records.
// It is safe for concurrent use; every method is a single scoped statement
// or transaction against the pooled connection.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the configured database and applies migrations. For
// sqlite the dsn is a file path (parent directories are created).
func Open(driver, dsn string) (*Store, error) {
	var (
		sqlDriver string
		conn      string
	)
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		sqlDriver = "sqlite"
		conn = dsn
		if conn != ":memory:" && !strings.HasPrefix(conn, "file:") {
			if err := os.MkdirAll(filepath.Dir(conn), 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		if !strings.Contains(conn, "?") {
			conn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		sqlDriver = "pgx"
		conn = dsn
	case DriverMySQL:
		sqlDriver = "mysql"
		conn = dsn
		// clientFoundRows makes RowsAffected count matched rows, so an
		// update that rewrites identical values is not mistaken for a miss.
		for _, opt := range []string{"parseTime=true", "clientFoundRows=true"} {
			key, _, _ := strings.Cut(opt, "=")
			if strings.Contains(conn, key+"=") {
				continue
			}
			sep := "?"
			if strings.Contains(conn, "?") {
				sep = "&"
			}
			conn += sep + opt
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(sqlDriver, conn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// NewMemory returns a migrated store backed by an in-memory SQLite database.
func NewMemory() (*Store, error) {
	return Open(DriverSQLite, ":memory:")
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// classify maps driver-specific constraint errors onto the store's sentinel
// errors so callers never depend on a particular database.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return fmt.Errorf("%w: %s", ErrDuplicate, myErr.Message)
	}

	if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
