package mysql

import (
	"context"
	"database/sql"
	"github.com/pkg/errors"
	"github.com/strataops/strata/internal/database"
)

const DefaultLockKey = "strata_migrations"
const DefaultLockSeconds = 3

var ErrLockNotAcquired = errors.New("mysql advisory lock was not acquired")

// Locker takes a MySQL advisory lock for the lifetime of one plan
// execution, so two operators cannot run plans against the same
// target at once.
type Locker struct {
	lockKey string
	lockFor int
	noLock  bool
}

func NewLocker(lockKey string, lockFor int, noLock bool) *Locker {
	if lockKey == "" {
		lockKey = DefaultLockKey
	}

	if lockFor == 0 {
		lockFor = DefaultLockSeconds
	}

	return &Locker{lockKey: lockKey, lockFor: lockFor, noLock: noLock}
}

func (l *Locker) Lock(ctx context.Context, conn database.CtxConn) error {
	if l.noLock {
		return nil
	}

	// GET_LOCK reports timeout as 0 and errors as NULL, never through
	// the driver error
	var acquired sql.NullInt64
	row := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.lockKey, l.lockFor)
	if err := row.Scan(&acquired); err != nil {
		return errors.Wrapf(err, "could not obtain [%s] exclusive MySQL DB lock for [%d] seconds", l.lockKey, l.lockFor)
	}

	if !acquired.Valid || acquired.Int64 != 1 {
		return errors.Wrapf(ErrLockNotAcquired, "[%s] after [%d] seconds", l.lockKey, l.lockFor)
	}

	return nil
}

func (l *Locker) Unlock(ctx context.Context, conn database.CtxConn) error {
	if l.noLock {
		return nil
	}

	if _, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%s] exclusive MySQL DB lock", l.lockKey)
	}

	return nil
}
