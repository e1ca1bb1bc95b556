package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

const (
	driverPQ  = "postgres"
	driverPGX = "pgx"
)

// connection settings, the password is never part of this struct so it can be logged
type DBSettings struct {
	Driver  string
	Host    string
	Port    int
	Name    string
	User    string
	SSLMode string
}

// DSN builds a postgres:// url understood by both lib/pq and pgx
func (s DBSettings) DSN(password string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.User, password),
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:   "/" + s.Name,
	}
	if s.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {s.SSLMode}}.Encode()
	}
	return u.String()
}

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx is the write handle the driver loop owns for a whole run
type Tx interface {
	Execer
	Commit() error
	Rollback() error
}

type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

type Database struct {
	db *sql.DB
}

func OpenDatabase(ctx context.Context, settings DBSettings, password string) (*Database, error) {
	switch settings.Driver {
	case driverPQ, driverPGX:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", settings.Driver)
	}

	db, err := sql.Open(settings.Driver, settings.DSN(password))
	if err != nil {
		return nil, err
	}
	// single writer, the loop never runs statements concurrently
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database at %s:%d: %w", settings.Host, settings.Port, err)
	}

	return NewDatabase(db), nil
}

func NewDatabase(db *sql.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Begin(ctx context.Context) (Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistenceErrorf("failed to begin transaction: %v", err)
	}
	return tx, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// sqlState extracts the SQLSTATE code from a lib/pq or pgx error
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
