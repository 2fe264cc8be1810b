package strata

import (
	"context"
	"github.com/pkg/errors"
	"github.com/strataops/strata/internal/database"
	"github.com/strataops/strata/internal/logger"
	"github.com/strataops/strata/internal/planner"
	"github.com/strataops/strata/internal/registry"
	"github.com/strataops/strata/internal/source"
	"github.com/strataops/strata/migration"
	"sort"
)

var ErrDatabaseNotInitialized = errors.New("database gateway has not been initialized")
var ErrCreateNotSupported = errors.New("the configured migration source cannot create migrations")
var ErrSourceInvalid = errors.New("the migration source folder is invalid or unreachable")
var ErrTargetBelowCurrent = errors.New("an upgrade target cannot be below the current version")
var ErrTargetAboveCurrent = errors.New("a downgrade target cannot be above the current version")

// Error identities re-exported for callers embedding the engine;
// match with errors.Is.
var (
	ErrDuplicateVersion  = registry.ErrDuplicateVersion
	ErrNotFound          = registry.ErrNotFound
	ErrUnknownTarget     = planner.ErrUnknownTarget
	ErrIrreversible      = planner.ErrIrreversible
	ErrOrphanedVersion   = planner.ErrOrphanedVersion
	ErrLedgerUnavailable = database.ErrLedgerUnavailable
)

type (
	// StepError reports the single failing step of a halted run.
	StepError = database.StepError

	StatusEntry = database.StatusEntry
	State       = database.State

	CloserFunc func() error
)

const (
	StateApplied  = database.StateApplied
	StatePending  = database.StatePending
	StateOrphaned = database.StateOrphaned
)

// Migrator evolves a relational database schema through an ordered
// sequence of reversible steps, tracking what was applied in a
// ledger table inside the same target database.
type Migrator struct {
	lg        logger.Logger
	db        database.DB
	selector  source.Selector
	closerFns []CloserFunc
}

// NewMigrator creates a migrator from option callbacks. A database
// gateway option is mandatory; the migration source defaults to the
// local ./migrations folder.
func NewMigrator(opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := new(Migrator)
	m.lg = &logger.NullLogger{}

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			return nil, nil, err
		}
	}

	if m.db == nil {
		return nil, nil, ErrDatabaseNotInitialized
	}

	if m.selector == nil {
		m.selector = source.NewLocalFSSource(source.DefaultMigrationsFolder, m.lg)
	}

	m.db.SetLogger(m.lg)

	return m, m.close, nil
}

// Up migrates towards the target version, or to the latest known
// version when no target was configured. It returns the migrations
// committed before any halt; on a halted run the error is a
// *StepError naming the failing version, and everything returned is
// durably applied.
func (m *Migrator) Up(ctx context.Context, cfs ...ActionConfigurator) (migration.Migrations, error) {
	act := newAction(migration.Latest, cfs)

	reg, records, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	current := migration.CurrentVersion(records)
	if act.target != migration.Latest && act.target < current {
		return nil, errors.Wrapf(ErrTargetBelowCurrent, "current [%s] target [%s]", current, act.target)
	}

	p, err := planner.Plan(current, act.target, reg, records)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	applied, err := m.db.Apply(ctx, p)
	if err != nil {
		m.lg.Error(err)
	}

	return applied, err
}

// Down rolls back towards the target version; migration.Base
// reverts everything. Irreversible or orphaned steps in range fail
// the plan before anything runs.
func (m *Migrator) Down(ctx context.Context, cfs ...ActionConfigurator) (migration.Migrations, error) {
	act := newAction(migration.Base, cfs)

	reg, records, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	current := migration.CurrentVersion(records)
	if act.target > current {
		return nil, errors.Wrapf(ErrTargetAboveCurrent, "current [%s] target [%s]", current, act.target)
	}

	p, err := planner.Plan(current, act.target, reg, records)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	reverted, err := m.db.Apply(ctx, p)
	if err != nil {
		m.lg.Error(err)
	}

	return reverted, err
}

// Status reports every registry version as applied or pending, and
// every ledger entry without a registry definition as orphaned.
// Orphans are a divergence report, never coerced into pending.
func (m *Migrator) Status(ctx context.Context) ([]StatusEntry, error) {
	reg, records, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	recordIndex := make(map[migration.Version]migration.Record, len(records))
	for _, r := range records {
		recordIndex[r.Version] = r
	}

	var entries []StatusEntry
	for _, def := range reg.List() {
		entry := StatusEntry{Version: def.Version, Name: def.Name, State: StatePending}
		if r, ok := recordIndex[def.Version]; ok {
			entry.State = StateApplied
			entry.AppliedAt = r.AppliedAt
		}

		entries = append(entries, entry)
	}

	for _, r := range records {
		if !reg.Contains(r.Version) {
			entries = append(entries, StatusEntry{
				Version:   r.Version,
				Name:      r.Name,
				State:     StateOrphaned,
				AppliedAt: r.AppliedAt,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Version < entries[j].Version
	})

	return entries, nil
}

// Version - the highest applied version, migration.Base when the
// ledger is empty.
func (m *Migrator) Version(ctx context.Context) (migration.Version, error) {
	if err := m.db.Connect(ctx); err != nil {
		return migration.Base, err
	}

	records, err := m.db.Records(ctx)
	if err != nil {
		return migration.Base, err
	}

	return migration.CurrentVersion(records), nil
}

// Create allocates the next unused version and materializes empty
// forward and rollback templates in the configured source.
func (m *Migrator) Create(ctx context.Context, name string) (*migration.Migration, error) {
	src, ok := m.selector.(source.Source)
	if !ok {
		return nil, ErrCreateNotSupported
	}

	if !src.IsValid() {
		return nil, ErrSourceInvalid
	}

	migrations, err := m.selector.Select(ctx)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(migrations)
	if err != nil {
		return nil, err
	}

	next := reg.NextVersion()
	if src.AlreadyExists(next, name) {
		return nil, errors.Wrapf(ErrDuplicateVersion, "[%s_%s]", next, name)
	}

	created, err := src.Create(next, name, true)
	if err != nil {
		return nil, err
	}

	m.lg.Successf("created migration %s", created.Key())

	return created, nil
}

// Reset irreversibly drops every table the target database holds,
// the ledger included. Confirmation is the caller's duty.
func (m *Migrator) Reset(ctx context.Context) error {
	if err := m.db.Connect(ctx); err != nil {
		return err
	}

	if err := m.db.DropAll(ctx); err != nil {
		m.lg.Error(err)
		return err
	}

	m.lg.Successf("database reset, all tables dropped")

	return nil
}

// Source - the configured selector when it supports the full
// source contract, nil otherwise.
func (m *Migrator) Source() source.Source {
	if s, ok := m.selector.(source.Source); ok {
		return s
	}

	return nil
}

func (m *Migrator) load(ctx context.Context) (*registry.Registry, []migration.Record, error) {
	migrations, err := m.selector.Select(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, nil, err
	}

	reg, err := registry.New(migrations)
	if err != nil {
		m.lg.Error(err)
		return nil, nil, err
	}

	if err := m.db.Connect(ctx); err != nil {
		m.lg.Error(err)
		return nil, nil, err
	}

	records, err := m.db.Records(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, nil, err
	}

	return reg, records, nil
}

func (m *Migrator) close() error {
	var firstErr error
	for _, closer := range m.closerFns {
		if err := closer(); err != nil {
			m.lg.Error(err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
