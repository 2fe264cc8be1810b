package sqlgateway

import (
	"context"
	"database/sql"
	"github.com/pkg/errors"
	"github.com/strataops/strata/internal/database"
	"github.com/strataops/strata/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newSqliteGateway(t *testing.T) (*SQLGateway, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}

	connector := MakeRetryingConnector(db, &ConnectOptions{
		MaxAttempts: 3,
		MaxTimeout:  2 * time.Second,
		RetryStep:   10 * time.Millisecond,
	})

	g, closer := NewSqliteGateway(connector, &SqliteOptions{})

	return g, func() {
		if err := closer(); err != nil {
			t.Error(err)
		}

		if err := db.Close(); err != nil {
			t.Error(err)
		}
	}
}

func createTable(v migration.Version, name, table string) *migration.Migration {
	return &migration.Migration{
		Version:  v,
		Name:     name,
		Migrate:  []string{"CREATE TABLE " + table + " (id INTEGER PRIMARY KEY)"},
		Rollback: []string{"DROP TABLE " + table},
	}
}

func Test_LedgerBootstrapsItself(t *testing.T) {
	g, closer := newSqliteGateway(t)
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// fresh database, no ledger table yet
	records, err := g.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	// bootstrapping again must be a no-op
	require.NoError(t, g.CreateLedgerTable(ctx))
	require.NoError(t, g.CreateLedgerTable(ctx))

	tables, err := g.ShowTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{database.DefaultLedgerTable}, tables)
}

func Test_ApplyUpgradePlan(t *testing.T) {
	g, closer := newSqliteGateway(t)
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := database.Plan{
		Direction: database.Up,
		Steps: migration.Migrations{
			createTable(1, "create_foo", "foo"),
			createTable(2, "create_bar", "bar"),
			createTable(3, "create_baz", "baz"),
		},
	}

	completed, err := g.Apply(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []migration.Version{1, 2, 3}, completed.Versions())

	records, err := g.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, migration.Version(1), records[0].Version)
	assert.Equal(t, "create_foo", records[0].Name)
	assert.False(t, records[0].AppliedAt.IsZero())

	tables, err := g.ShowTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar", "baz", "foo", database.DefaultLedgerTable}, tables)
}

func Test_ApplyDowngradePlanRemovesLedgerRows(t *testing.T) {
	g, closer := newSqliteGateway(t)
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	up := database.Plan{
		Direction: database.Up,
		Steps: migration.Migrations{
			createTable(1, "create_foo", "foo"),
			createTable(2, "create_bar", "bar"),
		},
	}

	_, err := g.Apply(ctx, up)
	require.NoError(t, err)

	down := database.Plan{
		Direction: database.Down,
		Steps: migration.Migrations{
			createTable(2, "create_bar", "bar"),
			createTable(1, "create_foo", "foo"),
		},
	}

	reverted, err := g.Apply(ctx, down)
	require.NoError(t, err)
	assert.Equal(t, []migration.Version{2, 1}, reverted.Versions())

	records, err := g.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	tables, err := g.ShowTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{database.DefaultLedgerTable}, tables)
}

func Test_FailingStepLeavesNoPartialEffects(t *testing.T) {
	g, closer := newSqliteGateway(t)
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := database.Plan{
		Direction: database.Up,
		Steps: migration.Migrations{
			{
				Version: 1,
				Name:    "broken",
				Migrate: []string{
					"CREATE TABLE half_done (id INTEGER PRIMARY KEY)",
					"THIS IS NOT SQL",
				},
			},
		},
	}

	completed, err := g.Apply(ctx, p)
	require.Error(t, err)
	assert.Empty(t, completed)

	var stepErr *database.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, migration.Version(1), stepErr.Version)
	assert.Equal(t, database.Up, stepErr.Direction)

	// the transaction rolled back: neither the table nor the
	// ledger row survived
	records, err := g.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	tables, err := g.ShowTables(ctx)
	require.NoError(t, err)
	assert.NotContains(t, tables, "half_done")
}

func Test_RunHaltsAtFirstFailureKeepingCommittedSteps(t *testing.T) {
	g, closer := newSqliteGateway(t)
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// 1-5 are already applied; 6,7,8 are pending and 7 is broken
	base := database.Plan{Direction: database.Up}
	for v := migration.Version(1); v <= 5; v++ {
		base.Steps = append(base.Steps, createTable(v, "m", "t"+v.String()))
	}

	_, err := g.Apply(ctx, base)
	require.NoError(t, err)

	run := database.Plan{
		Direction: database.Up,
		Steps: migration.Migrations{
			createTable(6, "create_t6", "t6"),
			{Version: 7, Name: "broken", Migrate: []string{"THIS IS NOT SQL"}},
			createTable(8, "create_t8", "t8"),
		},
	}

	completed, err := g.Apply(ctx, run)
	require.Error(t, err)

	// everything before the halt is durable, the failing step and
	// all later steps were not applied
	assert.Equal(t, []migration.Version{6}, completed.Versions())

	var stepErr *database.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, migration.Version(7), stepErr.Version)

	records, err := g.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, []migration.Version{1, 2, 3, 4, 5, 6}, recordVersions(records))

	tables, err := g.ShowTables(ctx)
	require.NoError(t, err)
	assert.NotContains(t, tables, "t8")
}

func Test_EmptyPlanIsANoOp(t *testing.T) {
	g, closer := newSqliteGateway(t)
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	completed, err := g.Apply(ctx, database.Plan{Direction: database.Up})
	assert.NoError(t, err)
	assert.Empty(t, completed)
}

func Test_DropAllClearsEverythingIncludingTheLedger(t *testing.T) {
	g, closer := newSqliteGateway(t)
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := database.Plan{
		Direction: database.Up,
		Steps: migration.Migrations{
			createTable(1, "create_foo", "foo"),
			createTable(2, "create_bar", "bar"),
		},
	}

	_, err := g.Apply(ctx, p)
	require.NoError(t, err)

	require.NoError(t, g.DropAll(ctx))

	tables, err := g.ShowTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func recordVersions(records []migration.Record) []migration.Version {
	var result []migration.Version
	for i := range records {
		result = append(result, records[i].Version)
	}

	return result
}
