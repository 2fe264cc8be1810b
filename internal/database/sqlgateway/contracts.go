package sqlgateway

import (
	"context"
	"github.com/strataops/strata/internal/database"
	"github.com/strataops/strata/migration"
)

// Dialect renders the ledger and service queries for one database
// engine. The engine executes migration statement batches verbatim;
// only the ledger bookkeeping differs per engine.
type Dialect interface {
	// InitQuery must be idempotent: the ledger bootstraps itself
	// on every operation.
	InitQuery() string
	InsertQuery(r migration.Record) (string, []interface{})
	RemoveQuery(v migration.Version) (string, []interface{})
	ReadQuery() string
	DropLedgerQuery() string
	ShowTablesQuery() string
	DropTableQuery(table string) string
	DisableForeignKeysQuery() string
	EnableForeignKeysQuery() string
}

// Locker guards one whole plan execution against a second operator
// process running concurrently against the same target.
type Locker interface {
	Lock(ctx context.Context, conn database.CtxConn) error
	Unlock(ctx context.Context, conn database.CtxConn) error
}

type nullLocker struct{}

func (nullLocker) Lock(context.Context, database.CtxConn) error { return nil }

func (nullLocker) Unlock(context.Context, database.CtxConn) error { return nil }
