// Package store implements the Persistence Port: opaque CRUD over the
// durable entities from the data model, used by every other component.
// Grounded on the teacher's internal/database package: a *sqlx.DB wrapper,
// golang-migrate schema management, and one file per entity family holding
// db.Get/db.Select/db.Exec query bodies.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/apperrors"
)

// DB wraps a *sqlx.DB with the connection-pool tuning the teacher applies.
type DB struct {
	*sqlx.DB
}

// New opens a Postgres connection pool, mirroring the teacher's
// database.New pool-tuning values.
func New(databaseURL string) (*DB, error) {
	conn, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)
	return &DB{DB: conn}, nil
}

// Migrate runs all pending migrations from migrationsPath, tolerating a
// dirty-but-already-applied state the same way the teacher does.
func Migrate(databaseURL, migrationsPath string) error {
	driverConn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("store: migrate open: %w", err)
	}
	defer driverConn.Close()

	driver, err := postgres.WithInstance(driverConn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic, matching the teacher's db_sessions.go pattern.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return err
}
