package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/authengine/store/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// Dialect names a supported SQL engine. The value doubles as the
// database/sql driver name and the goose dialect.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "pgx"
)

// SQL stores values in the kv_entries table, partitioned by namespace so
// several logical stores can share one database.
type SQL struct {
	db        *sql.DB
	dialect   Dialect
	namespace string

	getQuery    string
	putQuery    string
	deleteQuery string
}

// OpenSQL opens a connection pool for dialect. SQLite connections are
// limited to one writer.
func OpenSQL(dialect Dialect, dsn string) (*sql.DB, error) {
	if err := dialect.validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// gooseUp is a seam for testing goose.UpContext.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	if err := dialect.validate(); err != nil {
		return err
	}
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// NewSQL returns a store over db scoped to namespace. The schema must
// already be migrated.
func NewSQL(db *sql.DB, dialect Dialect, namespace string) (*SQL, error) {
	if db == nil {
		return nil, errors.New("sql store: nil db")
	}
	if err := dialect.validate(); err != nil {
		return nil, err
	}
	if namespace == "" {
		return nil, errors.New("sql store: namespace required")
	}

	return &SQL{
		db:        db,
		dialect:   dialect,
		namespace: namespace,
		getQuery: dialect.rebind(
			`SELECT value FROM kv_entries WHERE namespace = ? AND entry_key = ?`),
		putQuery: dialect.rebind(
			`INSERT INTO kv_entries (namespace, entry_key, value, updated_at)
			 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT (namespace, entry_key)
			 DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`),
		deleteQuery: dialect.rebind(
			`DELETE FROM kv_entries WHERE namespace = ? AND entry_key = ?`),
	}, nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.getQuery, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sql store: get %q: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQL) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.putQuery, s.namespace, key, string(value)); err != nil {
		return fmt.Errorf("sql store: put %q: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQuery, s.namespace, key); err != nil {
		return fmt.Errorf("sql store: delete %q: %w", key, err)
	}
	return nil
}

func (d Dialect) validate() error {
	switch d {
	case DialectSQLite, DialectPostgres:
		return nil
	default:
		return fmt.Errorf("unsupported sql dialect %q", string(d))
	}
}

// rebind rewrites ? placeholders into $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
