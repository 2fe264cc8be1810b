package database

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/pkg/errors"
	"github.com/strataops/strata/internal/logger"
	"github.com/strataops/strata/migration"
	"time"
)

type CtxExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CtxConn can both execute and query on a live connection. *sql.Conn
// satisfies it; lockers need it because advisory locks report their
// outcome as a result row, not as an error.
type CtxConn interface {
	CtxExecutor
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var ErrLedgerUnavailable = errors.New("migration ledger storage is unavailable")
var ErrMigrationVersionNotSpecified = errors.New("migration version not specified")

const DefaultLedgerTable = "migrations"

// Direction of a plan. A single plan is either a pure upgrade or
// a pure downgrade, never both.
type Direction int

const (
	Up Direction = iota + 1
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}

	return "up"
}

// Plan - the ordered steps one invocation will run. It is computed
// once from ledger plus registry and never persisted.
type Plan struct {
	Direction Direction
	Steps     migration.Migrations
}

// State of a single version in a status report.
type State int

const (
	StateApplied State = iota + 1
	StatePending
	StateOrphaned
)

func (s State) String() string {
	switch s {
	case StateApplied:
		return "applied"
	case StatePending:
		return "pending"
	case StateOrphaned:
		return "orphaned"
	}

	return "unknown"
}

// StatusEntry - one line of the status report. Orphaned entries come
// from the ledger only and have no registry definition behind them.
type StatusEntry struct {
	Version   migration.Version
	Name      string
	State     State
	AppliedAt time.Time
}

// StepError - a forward or backward statement batch failed. All
// schema and ledger effects of the failing step have been rolled
// back; steps committed before it are permanent.
type StepError struct {
	Version   migration.Version
	Name      string
	Direction Direction
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf(
		"migration [%s_%s] failed going %s: %s",
		e.Version, e.Name, e.Direction, e.Err,
	)
}

func (e *StepError) Cause() error { return e.Err }

func (e *StepError) Unwrap() error { return e.Err }

type ConnCloser func() error

// DB - what the engine requires from a target database: a ledger
// that bootstraps itself, a per step transactional executor and the
// service operations behind status and reset.
type DB interface {
	SetLogger(logger.Logger)
	Connect(ctx context.Context) error

	// Apply runs plan steps strictly in order, each inside its own
	// transaction together with the matching ledger write. It stops
	// at the first failure and returns the migrations that were
	// committed before it.
	Apply(ctx context.Context, p Plan) (migration.Migrations, error)

	// Records returns all ledger entries ordered by version
	// ascending, creating the ledger table when it does not exist.
	Records(ctx context.Context) ([]migration.Record, error)

	ShowTables(ctx context.Context) ([]string, error)

	// DropAll removes every table the target database holds,
	// the ledger included. Backs the reset command.
	DropAll(ctx context.Context) error

	CreateLedgerTable(ctx context.Context) error
	DropLedgerTable(ctx context.Context) error
}
