// Package sqlstore implements the matrix storage contract on database/sql via sqlx.
// The same queries run on PostgreSQL (lib/pq) and on SQLite (modernc.org/sqlite).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"matrix/internal/repository"
	"matrix/migrations"
	"matrix/pkg/config"
	pkgerrors "matrix/pkg/errors"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type Store struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

// New wraps an open connection. Cascades run at the driver's default isolation;
// slot and balance writes are conditional updates, so read committed is enough.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects with driverName ("postgres" or "sqlite").
func Open(driverName, url string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driverName, url)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to database")
	}
	if driverName == "sqlite" {
		// one writer; a cascade holds the connection for its whole transaction
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Connect opens the configured database and returns a ready store. SQLite
// databases get the embedded schema applied on open.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Store, *sqlx.DB, error) {
	db, err := Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	store := New(db)
	if cfg.Driver == "sqlite" {
		if err := store.ApplySchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db, nil
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return store, db, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, s.opts)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// ApplySchema executes the embedded up migrations in order. It is meant for
// SQLite deployments and tests; PostgreSQL is migrated with cmd/migrate.
func (s *Store) ApplySchema(ctx context.Context) error {
	names, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
		}
	}
	return nil
}

// txRepo implements repository.Tx on one sqlx transaction.
type txRepo struct {
	tx *sqlx.Tx
}

func (r *txRepo) q(query string) string {
	return r.tx.Rebind(query)
}

func expectOneRow(res sql.Result, miss error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return miss
	}
	return nil
}
