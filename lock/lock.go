// Package lock provides handles over database advisory locks.
//
// A Handle names a lock by key, scope and mode and forwards requests to a
// Provider, which owns the connection and the locking algorithm. A Registry
// answers questions about every lock the provider knows of.
package lock

import (
	"context"
	"strconv"
)

// Locker represents a distributed lock that can be acquired and released.
type Locker interface {
	// Lock acquires the lock, blocking until it's available or context is cancelled.
	Lock(ctx context.Context) error

	// TryLock attempts to acquire the lock without blocking.
	// Returns true if the lock was acquired, false otherwise.
	TryLock(ctx context.Context) (bool, error)

	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Provider executes named lock statements against a lock backend.
//
// Statements are opaque to the core; each provider maps them to its own
// requests. A provider reports statements it cannot serve with an error
// wrapping ErrUnsupported.
type Provider interface {
	// Exec runs stmt and discards its result. Most statements bind exactly
	// one key; StatementUnlockAll binds none.
	Exec(ctx context.Context, stmt Statement, args ...int64) error

	// QueryBool runs stmt bound to key and returns its single boolean result.
	QueryBool(ctx context.Context, stmt Statement, key int64) (bool, error)

	// QueryKeys runs stmt and returns one key per result row.
	QueryKeys(ctx context.Context, stmt Statement) ([]int64, error)
}

// Scope tells how long a granted lock lives.
type Scope uint8

const (
	// SessionScope locks live until unlocked or the session ends.
	SessionScope Scope = iota
	// TransactionScope locks are released when the transaction ends.
	TransactionScope
)

func (s Scope) String() string {
	switch s {
	case SessionScope:
		return "session"
	case TransactionScope:
		return "transaction"
	}
	return "scope(" + strconv.Itoa(int(s)) + ")"
}

// Mode tells whether a lock can be shared with other holders.
type Mode uint8

const (
	// Exclusive locks have exactly one holder.
	Exclusive Mode = iota
	// Shared locks may be held by many holders at once.
	Shared
)

func (m Mode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}
