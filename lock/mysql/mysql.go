// Package mysql implements lock.Provider with MySQL user level locks
// (GET_LOCK and friends).
//
// MySQL user locks are exclusive and session scoped only; shared and
// transaction scoped statements fail with lock.ErrUnsupported. Like the
// PostgreSQL provider, session locks need a pinned connection, see Acquire.
package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/enverbisevac/pglock/lock"
	"github.com/enverbisevac/pglock/sqlutil"
	"github.com/go-logr/logr"
	"github.com/go-sql-driver/mysql"
)

var _ lock.Provider = (*Provider)(nil)

// ErrDeadlock is returned when MySQL aborts GET_LOCK to break a deadlock
// between user locks.
var ErrDeadlock = errors.New("mysql: user lock deadlock")

// errUserLockDeadlock is ER_USER_LOCK_DEADLOCK.
const errUserLockDeadlock = 3058

const releaseAllQuery = "SELECT RELEASE_ALL_LOCKS()"

const heldLocksQuery = `SELECT OBJECT_NAME FROM performance_schema.metadata_locks
WHERE OBJECT_TYPE = 'USER LEVEL LOCK' AND LOCK_STATUS = 'GRANTED' AND OBJECT_NAME LIKE ?`

// StdQuerier is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type StdQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Provider runs lock statements on MySQL.
type Provider struct {
	config  Config
	db      StdQuerier
	release func() error
}

// New creates a provider using database/sql.
func New(db StdQuerier, options ...Option) *Provider {
	config := Config{
		Prefix: "lock:",
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Provider{
		config: config,
		db:     db,
	}
}

// Acquire pins one connection of db for the provider. Close releases the
// user locks still held and gives the connection back.
func Acquire(ctx context.Context, db *sql.DB, options ...Option) (*Provider, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("mysql: acquire connection: %w", err)
	}

	p := New(conn, options...)

	log := logr.FromContextOrDiscard(ctx)
	p.release = func() error {
		if _, err := conn.ExecContext(context.Background(), releaseAllQuery); err != nil {
			log.Error(err, "mysql: release user locks, dropping connection")
			// database/sql discards a connection reported as bad
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			return nil
		}
		return conn.Close()
	}
	return p, nil
}

// Close releases every user lock of a pinned connection and returns the
// connection to its pool. When the locks cannot be released the connection
// is closed instead, and the failure is logged with the logger of the
// context given to Acquire. Close is a no-op for providers created with New.
func (p *Provider) Close() error {
	if p.release == nil {
		return nil
	}
	release := p.release
	p.release = nil
	return release()
}

func (p *Provider) name(key int64) string {
	return p.config.Prefix + strconv.FormatInt(key, 10)
}

func (p *Provider) parseName(name string) (int64, bool) {
	s, ok := strings.CutPrefix(name, p.config.Prefix)
	if !ok {
		return 0, false
	}
	key, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return key, true
}

func unsupported(stmt lock.Statement) error {
	return fmt.Errorf("mysql: %w: %s", lock.ErrUnsupported, stmt)
}

// Exec implements lock.Provider.
func (p *Provider) Exec(ctx context.Context, stmt lock.Statement, args ...int64) error {
	if stmt == lock.StatementUnlockAll {
		if len(args) != 0 {
			return fmt.Errorf("mysql: %s takes no arguments, got %d", stmt, len(args))
		}
		_, err := p.db.ExecContext(ctx, releaseAllQuery)
		return err
	}

	if len(args) != 1 {
		return fmt.Errorf("mysql: %s takes one key, got %d arguments", stmt, len(args))
	}
	key := args[0]

	switch stmt {
	case lock.StatementSessionExclusiveLock:
		// negative timeout waits forever
		acquired, err := p.getLock(ctx, key, -1)
		if err != nil {
			return err
		}
		if !acquired {
			return fmt.Errorf("mysql: GET_LOCK(%q) was not granted", p.name(key))
		}
		return nil
	case lock.StatementSessionExclusiveUnlock:
		_, err := p.releaseLock(ctx, key)
		return err
	}

	_, err := p.QueryBool(ctx, stmt, key)
	return err
}

// QueryBool implements lock.Provider. The unlock statement reports whether
// the session held the lock.
func (p *Provider) QueryBool(ctx context.Context, stmt lock.Statement, key int64) (bool, error) {
	switch stmt {
	case lock.StatementSessionExclusiveLock:
		return p.getLock(ctx, key, -1)
	case lock.StatementSessionExclusiveTryLock:
		return p.getLock(ctx, key, 0)
	case lock.StatementSessionExclusiveUnlock:
		return p.releaseLock(ctx, key)
	case lock.StatementIsLocked:
		var locked bool
		err := p.db.QueryRowContext(ctx, "SELECT IS_USED_LOCK(?) IS NOT NULL", p.name(key)).Scan(&locked)
		return locked, err
	}
	return false, unsupported(stmt)
}

// QueryKeys implements lock.Provider. Only locks named with the provider's
// prefix are listed; reading them needs access to performance_schema.
func (p *Provider) QueryKeys(ctx context.Context, stmt lock.Statement) ([]int64, error) {
	if stmt != lock.StatementHeldKeys {
		return nil, unsupported(stmt)
	}

	rows, err := p.db.QueryContext(ctx, heldLocksQuery, escapeLike(p.config.Prefix)+"%")
	if err != nil {
		return nil, err
	}
	names, err := sqlutil.ScanAll[string](rows)
	if err != nil {
		return nil, err
	}

	keys := make([]int64, 0, len(names))
	for _, name := range names {
		if key, ok := p.parseName(name); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// getLock runs GET_LOCK; a NULL result is reported as an error.
func (p *Provider) getLock(ctx context.Context, key int64, timeout int) (bool, error) {
	var res sql.NullInt64
	err := p.db.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", p.name(key), timeout).Scan(&res)
	if err != nil {
		return false, mapError(err)
	}
	if !res.Valid {
		return false, fmt.Errorf("mysql: GET_LOCK(%q) failed", p.name(key))
	}
	return res.Int64 == 1, nil
}

// releaseLock runs RELEASE_LOCK and reports whether this session held it.
func (p *Provider) releaseLock(ctx context.Context, key int64) (bool, error) {
	var res sql.NullInt64
	err := p.db.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", p.name(key)).Scan(&res)
	if err != nil {
		return false, err
	}
	return res.Valid && res.Int64 == 1, nil
}

func mapError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errUserLockDeadlock {
		return fmt.Errorf("%w: %w", ErrDeadlock, err)
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
