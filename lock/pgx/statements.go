package pgx

import "github.com/enverbisevac/pglock/lock"

// A bigint advisory key is stored in pg_locks as classid (high 32 bits) and
// objid (low 32 bits) with objsubid = 1.
const heldLocks = `FROM pg_locks
WHERE locktype = 'advisory' AND objsubid = 1 AND granted`

const currentDatabase = `
	AND database = (SELECT oid FROM pg_database WHERE datname = current_database())`

const lockKey = `((classid::bigint << 32) | objid::bigint)`

func statements(config Config) map[lock.Statement]string {
	where := heldLocks
	if !config.AllDatabases {
		where += currentDatabase
	}

	return map[lock.Statement]string{
		lock.StatementSessionExclusiveLock:        "SELECT pg_advisory_lock($1)",
		lock.StatementSessionExclusiveTryLock:     "SELECT pg_try_advisory_lock($1)",
		lock.StatementSessionSharedLock:           "SELECT pg_advisory_lock_shared($1)",
		lock.StatementSessionSharedTryLock:        "SELECT pg_try_advisory_lock_shared($1)",
		lock.StatementTransactionExclusiveLock:    "SELECT pg_advisory_xact_lock($1)",
		lock.StatementTransactionExclusiveTryLock: "SELECT pg_try_advisory_xact_lock($1)",
		lock.StatementTransactionSharedLock:       "SELECT pg_advisory_xact_lock_shared($1)",
		lock.StatementTransactionSharedTryLock:    "SELECT pg_try_advisory_xact_lock_shared($1)",
		lock.StatementSessionExclusiveUnlock:      "SELECT pg_advisory_unlock($1)",
		lock.StatementSessionSharedUnlock:         "SELECT pg_advisory_unlock_shared($1)",
		lock.StatementUnlockAll:                   "SELECT pg_advisory_unlock_all()",
		lock.StatementIsLocked:                    "SELECT EXISTS (SELECT 1 " + where + " AND " + lockKey + " = $1)",
		lock.StatementHeldKeys:                    "SELECT " + lockKey + " " + where,
	}
}
