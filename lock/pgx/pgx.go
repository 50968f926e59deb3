// Package pgx implements lock.Provider with PostgreSQL advisory locks.
//
// Session scoped advisory locks belong to the database session that took
// them, so lock, unlock and unlock-all must run on one connection. Build the
// provider on a pinned connection (Acquire, AcquireStdLib, *pgx.Conn or
// *sql.Conn) when using session locks. Transaction scoped locks need the
// provider to run inside the transaction (pgx.Tx or *sql.Tx); outside one
// they are released as soon as the statement completes.
package pgx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/enverbisevac/pglock/lock"
	"github.com/enverbisevac/pglock/sqlutil"
	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

var _ lock.Provider = (*Provider)(nil)

var errNoConnection = errors.New("pgx: provider has no connection")

// Querier is implemented by *pgx.Conn, pgx.Tx, *pgxpool.Conn and
// *pgxpool.Pool. A pool runs every statement on whichever connection it
// hands out, so it only serves transaction scoped locks and the registry
// queries.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StdQuerier is implemented by *sql.DB, *sql.Conn and *sql.Tx. Like a pgx
// pool, *sql.DB does not keep session locks on one connection.
type StdQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Provider runs lock statements on PostgreSQL.
type Provider struct {
	config  Config
	queries map[lock.Statement]string

	conn Querier
	db   StdQuerier

	pid     uint32
	release func() error
}

// New creates a provider using a pgx connection, transaction or pool.
//
// Session locks taken through a *pgxpool.Pool land on an arbitrary pooled
// connection, and a later unlock may run on another backend where it
// silently releases nothing. Use Acquire or a single connection for them.
func New(conn Querier, options ...Option) *Provider {
	p := newProvider(options)
	p.conn = conn
	return p
}

// NewStdLib creates a provider using database/sql. The database must be
// opened with the pgx driver or another PostgreSQL driver.
//
// As with New, a *sql.DB spreads session lock statements over its
// connections; use AcquireStdLib or a *sql.Conn for session locks.
func NewStdLib(db StdQuerier, options ...Option) *Provider {
	p := newProvider(options)
	p.db = db
	return p
}

func newProvider(options []Option) *Provider {
	config := Config{
		AllDatabases: false,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Provider{
		config:  config,
		queries: statements(config),
	}
}

// Acquire pins one connection of pool for the provider. Close releases the
// session locks still held and gives the connection back.
func Acquire(ctx context.Context, pool *pgxpool.Pool, options ...Option) (*Provider, error) {
	poolConn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgx: acquire connection: %w", err)
	}

	p := New(poolConn, options...)
	p.pid = poolConn.Conn().PgConn().PID()

	log := logr.FromContextOrDiscard(ctx)
	unlockAll := p.queries[lock.StatementUnlockAll]
	pid := p.pid
	p.release = func() error {
		ctx := context.Background()
		if _, err := poolConn.Exec(ctx, unlockAll); err != nil {
			// the backend may still hold locks, never hand it to another borrower
			log.Error(err, "pgx: release session locks, dropping connection", "pid", pid)
			return poolConn.Hijack().Close(ctx)
		}
		poolConn.Release()
		return nil
	}

	log.V(1).Info("pgx: pinned lock session", "pid", p.pid)
	return p, nil
}

// AcquireStdLib pins one connection of db for the provider. db must be
// opened with the pgx stdlib driver.
func AcquireStdLib(ctx context.Context, db *sql.DB, options ...Option) (*Provider, error) {
	dbConn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgx: acquire connection: %w", err)
	}

	var pid uint32
	err = dbConn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("pgx: unexpected driver connection %T", driverConn)
		}
		pid = c.Conn().PgConn().PID()
		return nil
	})
	if err != nil {
		dbConn.Close()
		return nil, err
	}

	p := NewStdLib(dbConn, options...)
	p.pid = pid

	log := logr.FromContextOrDiscard(ctx)
	unlockAll := p.queries[lock.StatementUnlockAll]
	p.release = func() error {
		if _, err := dbConn.ExecContext(context.Background(), unlockAll); err != nil {
			log.Error(err, "pgx: release session locks, dropping connection", "pid", pid)
			// database/sql discards a connection reported as bad
			_ = dbConn.Raw(func(any) error { return driver.ErrBadConn })
			return nil
		}
		return dbConn.Close()
	}

	log.V(1).Info("pgx: pinned lock session", "pid", p.pid)
	return p, nil
}

// PID returns the backend process id of a pinned connection, or 0.
// It matches the pid column of pg_locks.
func (p *Provider) PID() uint32 {
	return p.pid
}

// Close releases every session lock of a pinned connection and returns the
// connection to its pool. When the locks cannot be released the connection
// is closed instead, and the failure is logged with the logger of the
// context given to Acquire. Close is a no-op for providers created with New
// or NewStdLib.
func (p *Provider) Close() error {
	if p.release == nil {
		return nil
	}
	release := p.release
	p.release = nil
	return release()
}

func (p *Provider) query(stmt lock.Statement) (string, error) {
	q, ok := p.queries[stmt]
	if !ok {
		return "", fmt.Errorf("pgx: %w: %s", lock.ErrUnsupported, stmt)
	}
	if p.conn == nil && p.db == nil {
		return "", errNoConnection
	}
	return q, nil
}

// Exec implements lock.Provider.
func (p *Provider) Exec(ctx context.Context, stmt lock.Statement, args ...int64) error {
	q, err := p.query(stmt)
	if err != nil {
		return err
	}

	params := make([]any, len(args))
	for i, arg := range args {
		params[i] = arg
	}

	if p.conn != nil {
		_, err = p.conn.Exec(ctx, q, params...)
	} else {
		_, err = p.db.ExecContext(ctx, q, params...)
	}
	return err
}

// QueryBool implements lock.Provider.
func (p *Provider) QueryBool(ctx context.Context, stmt lock.Statement, key int64) (bool, error) {
	q, err := p.query(stmt)
	if err != nil {
		return false, err
	}

	var result bool
	if p.conn != nil {
		err = p.conn.QueryRow(ctx, q, key).Scan(&result)
	} else {
		err = p.db.QueryRowContext(ctx, q, key).Scan(&result)
	}
	if err != nil {
		return false, err
	}
	return result, nil
}

// QueryKeys implements lock.Provider.
func (p *Provider) QueryKeys(ctx context.Context, stmt lock.Statement) ([]int64, error) {
	q, err := p.query(stmt)
	if err != nil {
		return nil, err
	}

	if p.conn != nil {
		rows, err := p.conn.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowTo[int64])
	}

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return sqlutil.ScanInt64s(rows)
}
