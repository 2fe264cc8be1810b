package sqlgateway

import (
	"context"
	"database/sql"
	"github.com/pkg/errors"
	"github.com/strataops/strata/internal/database"
	"github.com/strataops/strata/internal/database/sqlgateway/mysql"
	"github.com/strataops/strata/internal/database/sqlgateway/sqlite"
	"github.com/strataops/strata/internal/logger"
	"github.com/strataops/strata/migration"
	"strings"
	"time"
)

// SQLGateway implements the executor and the history ledger over a
// single *sql.Conn. Every plan step runs in its own transaction
// together with the matching ledger write, so a failed step leaves
// neither schema effects nor a ledger row behind.
type SQLGateway struct {
	lg        logger.Logger
	connector *RetryingConnector
	conn      *sql.Conn
	dialect   Dialect
	locker    Locker
}

var _ database.DB = (*SQLGateway)(nil)

type MySQLOptions struct {
	LedgerTable string
	Charset     string
	LockKey     string
	LockFor     int
	NoLock      bool
}

type SqliteOptions struct {
	LedgerTable string
}

func NewMySQLGateway(connector *RetryingConnector, opts *MySQLOptions) (*SQLGateway, database.ConnCloser) {
	table := opts.LedgerTable
	if table == "" {
		table = database.DefaultLedgerTable
	}

	g := &SQLGateway{
		lg:        &logger.NullLogger{},
		connector: connector,
		dialect:   mysql.NewDialect(table, opts.Charset),
		locker:    mysql.NewLocker(opts.LockKey, opts.LockFor, opts.NoLock),
	}

	return g, connector.Close
}

func NewSqliteGateway(connector *RetryingConnector, opts *SqliteOptions) (*SQLGateway, database.ConnCloser) {
	table := opts.LedgerTable
	if table == "" {
		table = database.DefaultLedgerTable
	}

	g := &SQLGateway{
		lg:        &logger.NullLogger{},
		connector: connector,
		dialect:   sqlite.NewDialect(table),
		locker:    nullLocker{},
	}

	return g, connector.Close
}

func (g *SQLGateway) SetLogger(lg logger.Logger) {
	g.lg = lg
}

func (g *SQLGateway) Connect(ctx context.Context) error {
	if g.conn != nil {
		return nil
	}

	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return errors.Wrapf(database.ErrLedgerUnavailable, "%s", err)
	}

	g.conn = conn
	return nil
}

// Apply runs the plan steps strictly in the given order under an
// advisory lock held for the whole run. It stops at the first
// failing step, returning every migration committed before it; the
// failing step and everything after it were not applied.
func (g *SQLGateway) Apply(ctx context.Context, p database.Plan) (completed migration.Migrations, err error) {
	if len(p.Steps) == 0 {
		return nil, nil
	}

	if err := g.Connect(ctx); err != nil {
		return nil, err
	}

	if err := g.locker.Lock(ctx, g.conn); err != nil {
		return nil, errors.Wrap(err, "database lock failed")
	}

	defer func() {
		if uErr := g.locker.Unlock(ctx, g.conn); uErr != nil && err == nil {
			err = uErr
		}
	}()

	if err := g.CreateLedgerTable(ctx); err != nil {
		return nil, err
	}

	for _, m := range p.Steps {
		if stepErr := g.applyOne(ctx, m, p.Direction); stepErr != nil {
			return completed, stepErr
		}

		completed = append(completed, m)

		if p.Direction == database.Up {
			g.lg.Successf("migrated version %s name %s", m.Version, m.Name)
		} else {
			g.lg.Successf("rolled back version %s name %s", m.Version, m.Name)
		}
	}

	return completed, nil
}

// applyOne executes one step and its ledger write inside a single
// transaction. Either both survive or neither does.
func (g *SQLGateway) applyOne(ctx context.Context, m *migration.Migration, d database.Direction) error {
	if m.Version == migration.Base {
		return database.ErrMigrationVersionNotSpecified
	}

	tx, err := g.conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrapf(err, "could not start transaction for migration [%s]", m.Key())
	}

	stepFailed := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			cause = errors.Wrapf(cause, "transaction rollback also failed: %s", rbErr)
		}

		return &database.StepError{
			Version:   m.Version,
			Name:      m.Name,
			Direction: d,
			Err:       cause,
		}
	}

	var scripts []string
	if d == database.Up {
		scripts = m.Migrate
		g.lg.Debugf("%s batch for %s:\n%s", d, m.Key(), m.MigrateScripts())
	} else {
		scripts = m.Rollback
		g.lg.Debugf("%s batch for %s:\n%s", d, m.Key(), m.RollbackScripts())
	}

	for _, script := range scripts {
		g.lg.SQL(script)
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return stepFailed(errors.Wrapf(err, "statement [%s]", script))
		}
	}

	var q string
	var args []interface{}
	if d == database.Up {
		q, args = g.dialect.InsertQuery(migration.Record{
			Version:   m.Version,
			Name:      m.Name,
			AppliedAt: time.Now(),
		})
	} else {
		q, args = g.dialect.RemoveQuery(m.Version)
	}

	g.lg.SQL(q, args...)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return stepFailed(errors.Wrap(err, "ledger write failed"))
	}

	if err := tx.Commit(); err != nil {
		return stepFailed(errors.Wrap(err, "commit failed"))
	}

	return nil
}

// Records returns the full applied set ordered by version,
// bootstrapping the ledger table when it is missing.
func (g *SQLGateway) Records(ctx context.Context) ([]migration.Record, error) {
	if err := g.Connect(ctx); err != nil {
		return nil, err
	}

	if err := g.CreateLedgerTable(ctx); err != nil {
		return nil, err
	}

	q := g.dialect.ReadQuery()
	g.lg.SQL(q)

	rows, err := g.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(database.ErrLedgerUnavailable, "could not read ledger: %s", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			g.lg.Error(closeErr)
		}
	}()

	var result []migration.Record
	for rows.Next() {
		var version uint64
		var name string
		var appliedAt time.Time

		if err := rows.Scan(&version, &name, &appliedAt); err != nil {
			return result, errors.Wrap(err, "could not scan ledger entry")
		}

		result = append(result, migration.Record{
			Version:   migration.Version(version),
			Name:      name,
			AppliedAt: appliedAt,
		})
	}

	if err := rows.Err(); err != nil {
		return result, errors.Wrap(err, "ledger iteration error")
	}

	return result, nil
}

func (g *SQLGateway) CreateLedgerTable(ctx context.Context) error {
	if err := g.Connect(ctx); err != nil {
		return err
	}

	if _, err := g.conn.ExecContext(ctx, g.dialect.InitQuery()); err != nil {
		return errors.Wrapf(database.ErrLedgerUnavailable, "could not initialize ledger table: %s", err)
	}

	return nil
}

func (g *SQLGateway) DropLedgerTable(ctx context.Context) error {
	if err := g.Connect(ctx); err != nil {
		return err
	}

	if _, err := g.conn.ExecContext(ctx, g.dialect.DropLedgerQuery()); err != nil {
		return errors.Wrap(err, "could not drop ledger table")
	}

	return nil
}

func (g *SQLGateway) ShowTables(ctx context.Context) ([]string, error) {
	if err := g.Connect(ctx); err != nil {
		return nil, err
	}

	rows, err := g.conn.QueryContext(ctx, g.dialect.ShowTablesQuery())
	if err != nil {
		return nil, errors.Wrap(err, "could not list tables")
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			g.lg.Error(closeErr)
		}
	}()

	var result []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return result, err
		}

		result = append(result, table)
	}

	if err := rows.Err(); err != nil {
		return result, errors.Wrap(err, "tables iteration error")
	}

	return result, nil
}

// DropAll removes every table in the target database, the ledger
// included. It is the irreversible path behind the reset command
// and must only run after the operator confirmed.
func (g *SQLGateway) DropAll(ctx context.Context) (err error) {
	if err := g.Connect(ctx); err != nil {
		return err
	}

	if err := g.locker.Lock(ctx, g.conn); err != nil {
		return errors.Wrap(err, "database lock failed")
	}

	defer func() {
		if uErr := g.locker.Unlock(ctx, g.conn); uErr != nil && err == nil {
			err = uErr
		}
	}()

	tables, err := g.ShowTables(ctx)
	if err != nil {
		return err
	}

	if q := g.dialect.DisableForeignKeysQuery(); q != "" {
		if _, err := g.conn.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "could not disable foreign key checks")
		}
	}

	for _, table := range tables {
		if strings.HasPrefix(table, "sqlite_") {
			continue
		}

		q := g.dialect.DropTableQuery(table)
		g.lg.SQL(q)
		if _, err := g.conn.ExecContext(ctx, q); err != nil {
			return errors.Wrapf(err, "could not drop table [%s]", table)
		}
	}

	if q := g.dialect.EnableForeignKeysQuery(); q != "" {
		if _, err := g.conn.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "could not re-enable foreign key checks")
		}
	}

	return nil
}
