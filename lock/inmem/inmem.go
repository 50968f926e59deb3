package inmem

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/enverbisevac/pglock/lock"
)

var (
	// ErrClosed is returned by every call on a closed session.
	ErrClosed = errors.New("inmem: session closed")
	// ErrTxDone is returned when a finished transaction is used.
	ErrTxDone = errors.New("inmem: transaction has already been committed or rolled back")
	// ErrTxInProgress is returned by Begin while a transaction is open.
	ErrTxInProgress = errors.New("inmem: transaction already in progress")
	// ErrDeadlock is returned to the blocking request that closes a cycle of
	// sessions waiting on each other.
	ErrDeadlock = errors.New("inmem: deadlock detected")
)

var (
	_ lock.Provider = (*Session)(nil)
	_ lock.Provider = (*Tx)(nil)
)

// Server is an in-memory advisory lock table shared by its sessions.
//
// Locks follow PostgreSQL rules: holds of the same session never conflict,
// shared holds of different sessions are compatible, and session holds
// stack so a lock taken twice is released by two unlocks. A blocking request
// that would wait on a session already waiting for it fails with
// ErrDeadlock right away.
type Server struct {
	mu      sync.Mutex
	holds   map[int64]map[holder]int
	waits   map[*Session]waiter
	changed chan struct{}
}

type waiter struct {
	key int64
	h   holder
}

type holder struct {
	session *Session
	shared  bool
	xact    bool
}

type request struct {
	shared bool
	xact   bool
	wait   bool
}

var lockRequests = map[lock.Statement]request{
	lock.StatementSessionExclusiveLock:        {wait: true},
	lock.StatementSessionExclusiveTryLock:     {},
	lock.StatementSessionSharedLock:           {shared: true, wait: true},
	lock.StatementSessionSharedTryLock:        {shared: true},
	lock.StatementTransactionExclusiveLock:    {xact: true, wait: true},
	lock.StatementTransactionExclusiveTryLock: {xact: true},
	lock.StatementTransactionSharedLock:       {xact: true, shared: true, wait: true},
	lock.StatementTransactionSharedTryLock:    {xact: true, shared: true},
}

// New creates an empty lock table.
func New() *Server {
	return &Server{
		holds:   make(map[int64]map[holder]int),
		waits:   make(map[*Session]waiter),
		changed: make(chan struct{}),
	}
}

// Session opens a session on the server. Closing the session releases
// everything it holds.
func (s *Server) Session() *Session {
	return &Session{server: s}
}

// acquire grants h on key, waiting for conflicting holders to leave when
// wait is set.
func (s *Server) acquire(ctx context.Context, key int64, h holder, wait bool) (bool, error) {
	if wait {
		defer func() {
			s.mu.Lock()
			delete(s.waits, h.session)
			s.mu.Unlock()
		}()
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		s.mu.Lock()
		if h.session.closed {
			s.mu.Unlock()
			return false, ErrClosed
		}
		if s.grantable(key, h) {
			// Outside a transaction the implicit one ends with the statement.
			if h.xact && h.session.tx == nil {
				s.mu.Unlock()
				return true, nil
			}
			if s.holds[key] == nil {
				s.holds[key] = make(map[holder]int)
			}
			s.holds[key][h]++
			s.mu.Unlock()
			return true, nil
		}
		if !wait {
			s.mu.Unlock()
			return false, nil
		}
		if s.waitsOnLocked(key, h, h.session) {
			s.mu.Unlock()
			return false, ErrDeadlock
		}
		s.waits[h.session] = waiter{key: key, h: h}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-changed:
		}
	}
}

func (s *Server) grantable(key int64, h holder) bool {
	for other := range s.holds[key] {
		if other.session == h.session {
			continue
		}
		if !h.shared || !other.shared {
			return false
		}
	}
	return true
}

// waitsOnLocked reports whether h waiting on key would, through the holders
// of key and the requests they wait on, end up waiting on target.
func (s *Server) waitsOnLocked(key int64, h holder, target *Session) bool {
	seen := make(map[*Session]bool)

	var blocked func(key int64, h holder) bool
	blocked = func(key int64, h holder) bool {
		for other := range s.holds[key] {
			if other.session == h.session || (h.shared && other.shared) {
				continue
			}
			if other.session == target {
				return true
			}
			if seen[other.session] {
				continue
			}
			seen[other.session] = true
			if w, ok := s.waits[other.session]; ok && blocked(w.key, w.h) {
				return true
			}
		}
		return false
	}
	return blocked(key, h)
}

// release drops one hold of h on key and reports whether there was one.
func (s *Server) release(key int64, h holder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.releaseLocked(key, h)
}

func (s *Server) releaseLocked(key int64, h holder) bool {
	holders := s.holds[key]
	if holders[h] == 0 {
		return false
	}

	holders[h]--
	if holders[h] == 0 {
		delete(holders, h)
	}
	if len(holders) == 0 {
		delete(s.holds, key)
	}
	s.broadcastLocked()
	return true
}

// releaseWhere drops every hold matching match.
func (s *Server) releaseWhere(match func(holder) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseWhereLocked(match)
}

func (s *Server) releaseWhereLocked(match func(holder) bool) {
	released := false
	for key, holders := range s.holds {
		for h := range holders {
			if match(h) {
				delete(holders, h)
				released = true
			}
		}
		if len(holders) == 0 {
			delete(s.holds, key)
		}
	}
	if released {
		s.broadcastLocked()
	}
}

func (s *Server) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Server) isLocked(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.holds[key]) > 0
}

// heldKeys returns each key once per session and mode holding it, in
// ascending key order. Session and transaction holds of one mode share an
// entry.
func (s *Server) heldKeys() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		session *Session
		shared  bool
	}

	keys := make([]int64, 0, len(s.holds))
	for key, holders := range s.holds {
		seen := make(map[entry]bool, len(holders))
		for h := range holders {
			e := entry{session: h.session, shared: h.shared}
			if !seen[e] {
				seen[e] = true
				keys = append(keys, key)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

// Session is a connection to a Server. It implements lock.Provider.
//
// Outside a transaction every statement runs in its own implicit
// transaction, so transaction scoped locks are released as soon as they are
// granted.
type Session struct {
	server *Server

	// guarded by server.mu
	closed bool
	tx     *Tx
}

// Begin starts a transaction. Transaction scoped locks taken on the session
// until Commit or Rollback are held until then.
func (s *Session) Begin() (*Tx, error) {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.tx != nil {
		return nil, ErrTxInProgress
	}
	s.tx = &Tx{session: s}
	return s.tx, nil
}

// Close ends the session and releases all of its locks. Close is
// idempotent.
func (s *Session) Close() error {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx != nil {
		s.tx.done = true
		s.tx = nil
	}
	s.server.releaseWhereLocked(func(h holder) bool {
		return h.session == s
	})
	// wake waiters of this session so they observe ErrClosed
	s.server.broadcastLocked()
	return nil
}

func (s *Session) check() error {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

// Exec implements lock.Provider.
func (s *Session) Exec(ctx context.Context, stmt lock.Statement, args ...int64) error {
	if err := s.check(); err != nil {
		return err
	}

	if stmt == lock.StatementUnlockAll {
		if len(args) != 0 {
			return fmt.Errorf("inmem: %s takes no arguments, got %d", stmt, len(args))
		}
		s.server.releaseWhere(func(h holder) bool {
			return h.session == s && !h.xact
		})
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("inmem: %s takes one key, got %d arguments", stmt, len(args))
	}
	_, err := s.QueryBool(ctx, stmt, args[0])
	return err
}

// QueryBool implements lock.Provider. Unlock statements report whether the
// session held the lock.
func (s *Session) QueryBool(ctx context.Context, stmt lock.Statement, key int64) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}

	if req, ok := lockRequests[stmt]; ok {
		return s.lock(ctx, key, req)
	}

	switch stmt {
	case lock.StatementSessionExclusiveUnlock:
		return s.server.release(key, holder{session: s}), nil
	case lock.StatementSessionSharedUnlock:
		return s.server.release(key, holder{session: s, shared: true}), nil
	case lock.StatementIsLocked:
		return s.server.isLocked(key), nil
	}
	return false, fmt.Errorf("inmem: %w: %s", lock.ErrUnsupported, stmt)
}

// QueryKeys implements lock.Provider.
func (s *Session) QueryKeys(_ context.Context, stmt lock.Statement) ([]int64, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	if stmt != lock.StatementHeldKeys {
		return nil, fmt.Errorf("inmem: %w: %s", lock.ErrUnsupported, stmt)
	}
	return s.server.heldKeys(), nil
}

func (s *Session) lock(ctx context.Context, key int64, req request) (bool, error) {
	h := holder{session: s, shared: req.shared, xact: req.xact}
	return s.server.acquire(ctx, key, h, req.wait)
}

// Tx is a transaction on a Session. It implements lock.Provider; its
// statements run on the session.
type Tx struct {
	session *Session

	// guarded by session.server.mu
	done bool
}

func (tx *Tx) check() error {
	tx.session.server.mu.Lock()
	defer tx.session.server.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}
	return nil
}

// Exec implements lock.Provider.
func (tx *Tx) Exec(ctx context.Context, stmt lock.Statement, args ...int64) error {
	if err := tx.check(); err != nil {
		return err
	}
	return tx.session.Exec(ctx, stmt, args...)
}

// QueryBool implements lock.Provider.
func (tx *Tx) QueryBool(ctx context.Context, stmt lock.Statement, key int64) (bool, error) {
	if err := tx.check(); err != nil {
		return false, err
	}
	return tx.session.QueryBool(ctx, stmt, key)
}

// QueryKeys implements lock.Provider.
func (tx *Tx) QueryKeys(ctx context.Context, stmt lock.Statement) ([]int64, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.session.QueryKeys(ctx, stmt)
}

// Commit ends the transaction and releases its transaction scoped locks.
func (tx *Tx) Commit() error {
	return tx.end()
}

// Rollback ends the transaction and releases its transaction scoped locks.
func (tx *Tx) Rollback() error {
	return tx.end()
}

func (tx *Tx) end() error {
	s := tx.session
	s.server.mu.Lock()
	defer s.server.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	s.tx = nil
	s.server.releaseWhereLocked(func(h holder) bool {
		return h.session == s && h.xact
	})
	return nil
}
