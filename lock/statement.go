package lock

import "fmt"

// Statement names a provider operation.
type Statement string

// Session scoped acquire statements. Blocking ones run with Exec and wait
// for the lock; non-blocking ones run with QueryBool and report whether the
// lock was granted.
const (
	// StatementSessionExclusiveLock waits for an exclusive session lock.
	StatementSessionExclusiveLock Statement = "session-exclusive-blocking-lock"
	// StatementSessionExclusiveTryLock tries an exclusive session lock.
	StatementSessionExclusiveTryLock Statement = "session-exclusive-nonblocking-lock"
	// StatementSessionSharedLock waits for a shared session lock.
	StatementSessionSharedLock Statement = "session-shared-blocking-lock"
	// StatementSessionSharedTryLock tries a shared session lock.
	StatementSessionSharedTryLock Statement = "session-shared-nonblocking-lock"
)

// Transaction scoped acquire statements. The lock lasts until the enclosing
// transaction ends.
const (
	// StatementTransactionExclusiveLock waits for an exclusive transaction lock.
	StatementTransactionExclusiveLock Statement = "transaction-exclusive-blocking-lock"
	// StatementTransactionExclusiveTryLock tries an exclusive transaction lock.
	StatementTransactionExclusiveTryLock Statement = "transaction-exclusive-nonblocking-lock"
	// StatementTransactionSharedLock waits for a shared transaction lock.
	StatementTransactionSharedLock Statement = "transaction-shared-blocking-lock"
	// StatementTransactionSharedTryLock tries a shared transaction lock.
	StatementTransactionSharedTryLock Statement = "transaction-shared-nonblocking-lock"
)

const (
	// StatementSessionExclusiveUnlock releases one exclusive session hold.
	StatementSessionExclusiveUnlock Statement = "session-exclusive-unlock"
	// StatementSessionSharedUnlock releases one shared session hold.
	StatementSessionSharedUnlock Statement = "session-shared-unlock"
)

const (
	// StatementIsLocked reports whether any session holds the key.
	StatementIsLocked Statement = "is-locked"
	// StatementHeldKeys lists the keys held on the database.
	StatementHeldKeys Statement = "list-held-keys"
	// StatementUnlockAll releases every session lock of the connection.
	StatementUnlockAll Statement = "unlock-all"
)

// Statements lists every statement a complete provider serves.
func Statements() []Statement {
	return []Statement{
		StatementSessionExclusiveLock,
		StatementSessionExclusiveTryLock,
		StatementSessionSharedLock,
		StatementSessionSharedTryLock,
		StatementTransactionExclusiveLock,
		StatementTransactionExclusiveTryLock,
		StatementTransactionSharedLock,
		StatementTransactionSharedTryLock,
		StatementSessionExclusiveUnlock,
		StatementSessionSharedUnlock,
		StatementIsLocked,
		StatementHeldKeys,
		StatementUnlockAll,
	}
}

// LockStatement returns the acquire statement for the given scope, mode and
// blocking behaviour. It panics on a scope or mode outside the declared
// constants.
func LockStatement(scope Scope, mode Mode, blocking bool) Statement {
	switch scope {
	case SessionScope:
		switch mode {
		case Exclusive:
			if blocking {
				return StatementSessionExclusiveLock
			}
			return StatementSessionExclusiveTryLock
		case Shared:
			if blocking {
				return StatementSessionSharedLock
			}
			return StatementSessionSharedTryLock
		}
	case TransactionScope:
		switch mode {
		case Exclusive:
			if blocking {
				return StatementTransactionExclusiveLock
			}
			return StatementTransactionExclusiveTryLock
		case Shared:
			if blocking {
				return StatementTransactionSharedLock
			}
			return StatementTransactionSharedTryLock
		}
	}
	panic(fmt.Sprintf("lock: no lock statement for %s/%s (blocking=%t)", scope, mode, blocking))
}

// UnlockStatement returns the session unlock statement for mode. It panics
// on a mode outside the declared constants.
func UnlockStatement(mode Mode) Statement {
	switch mode {
	case Exclusive:
		return StatementSessionExclusiveUnlock
	case Shared:
		return StatementSessionSharedUnlock
	}
	panic(fmt.Sprintf("lock: no unlock statement for %s", mode))
}
