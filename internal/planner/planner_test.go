package planner

import (
	"github.com/pkg/errors"
	"github.com/strataops/strata/internal/database"
	"github.com/strataops/strata/internal/registry"
	"github.com/strataops/strata/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func reversible(v migration.Version) *migration.Migration {
	return &migration.Migration{
		Version:  v,
		Name:     "m",
		Migrate:  []string{"SELECT 1"},
		Rollback: []string{"SELECT 1"},
	}
}

func irreversible(v migration.Version) *migration.Migration {
	return &migration.Migration{
		Version: v,
		Name:    "m",
		Migrate: []string{"SELECT 1"},
	}
}

func newRegistry(t *testing.T, migrations ...*migration.Migration) *registry.Registry {
	t.Helper()

	r, err := registry.New(migrations)
	require.NoError(t, err)
	return r
}

func records(versions ...migration.Version) []migration.Record {
	var result []migration.Record
	for _, v := range versions {
		result = append(result, migration.Record{Version: v, Name: "m"})
	}

	return result
}

func Test_NoOpPlanIsIdempotent(t *testing.T) {
	reg := newRegistry(t, reversible(1), reversible(2), reversible(3))

	for _, v := range []migration.Version{migration.Base, 1, 2, 3} {
		p, err := Plan(v, v, reg, nil)
		require.NoError(t, err)
		assert.Empty(t, p.Steps)
	}
}

func Test_NoOpPlanWhenCurrentVersionIsOrphaned(t *testing.T) {
	// version 3 is applied but its definition is gone from the registry;
	// staying put must still yield an empty plan
	reg := newRegistry(t, reversible(1), reversible(2))

	p, err := Plan(3, 3, reg, records(1, 2, 3))
	require.NoError(t, err)
	assert.Empty(t, p.Steps)
}

func Test_UpgradeToLatest(t *testing.T) {
	reg := newRegistry(t, reversible(1), reversible(2), reversible(3), reversible(4))

	t.Run("from base everything is scheduled ascending", func(t *testing.T) {
		p, err := Plan(migration.Base, migration.Latest, reg, nil)
		require.NoError(t, err)

		assert.Equal(t, database.Up, p.Direction)
		assert.Equal(t, []migration.Version{1, 2, 3, 4}, p.Steps.Versions())
	})

	t.Run("only versions above current are scheduled", func(t *testing.T) {
		p, err := Plan(2, migration.Latest, reg, records(1, 2))
		require.NoError(t, err)

		assert.Equal(t, []migration.Version{3, 4}, p.Steps.Versions())
	})

	t.Run("fully migrated yields empty plan", func(t *testing.T) {
		p, err := Plan(4, migration.Latest, reg, records(1, 2, 3, 4))
		require.NoError(t, err)

		assert.Empty(t, p.Steps)
	})
}

func Test_UpgradeToExplicitTarget(t *testing.T) {
	reg := newRegistry(t, reversible(1), reversible(2), reversible(3), reversible(4))

	p, err := Plan(1, 3, reg, records(1))
	require.NoError(t, err)

	assert.Equal(t, database.Up, p.Direction)
	assert.Equal(t, []migration.Version{2, 3}, p.Steps.Versions())
}

func Test_UnknownTargetFailsBeforeAnythingRuns(t *testing.T) {
	reg := newRegistry(t, reversible(1), reversible(2))

	_, err := Plan(1, 9, reg, records(1))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTarget))
	assert.Contains(t, err.Error(), "0009")
}

func Test_DowngradeRevertsInReverseApplicationOrder(t *testing.T) {
	reg := newRegistry(t, reversible(1), reversible(2), reversible(3), reversible(4), reversible(5))

	t.Run("down to explicit target", func(t *testing.T) {
		p, err := Plan(5, 2, reg, records(1, 2, 3, 4, 5))
		require.NoError(t, err)

		assert.Equal(t, database.Down, p.Direction)
		assert.Equal(t, []migration.Version{5, 4, 3}, p.Steps.Versions())
	})

	t.Run("down to base reverts everything", func(t *testing.T) {
		p, err := Plan(5, migration.Base, reg, records(1, 2, 3, 4, 5))
		require.NoError(t, err)

		assert.Equal(t, []migration.Version{5, 4, 3, 2, 1}, p.Steps.Versions())
	})

	t.Run("pending versions above current never participate", func(t *testing.T) {
		p, err := Plan(3, 1, reg, records(1, 2, 3))
		require.NoError(t, err)

		assert.Equal(t, []migration.Version{3, 2}, p.Steps.Versions())
	})
}

func Test_IrreversibleStepHaltsPlanningNamingTheVersion(t *testing.T) {
	// registry has 1-5 applied; version 5 declares no rollback
	reg := newRegistry(t,
		reversible(1), reversible(2), reversible(3), reversible(4), irreversible(5),
		reversible(6), reversible(7), reversible(8),
	)

	_, err := Plan(5, 3, reg, records(1, 2, 3, 4, 5))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIrreversible))
	assert.Contains(t, err.Error(), "0005")
}

func Test_OrphanedLedgerEntryBlocksDowngradeThroughIt(t *testing.T) {
	// version 3 was applied once but its definition is gone
	reg := newRegistry(t, reversible(1), reversible(2), reversible(4))

	_, err := Plan(4, 1, reg, records(1, 2, 3, 4))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrphanedVersion))
	assert.Contains(t, err.Error(), "0003")
}

func Test_OrphanBelowRangeDoesNotBlockDowngrade(t *testing.T) {
	reg := newRegistry(t, reversible(2), reversible(3), reversible(4))

	// orphaned version 1 sits below the target and is untouched
	p, err := Plan(4, 3, reg, records(1, 2, 3, 4))
	require.NoError(t, err)

	assert.Equal(t, []migration.Version{4}, p.Steps.Versions())
}

func Test_PlanningIsDeterministicUnderShuffledDiscovery(t *testing.T) {
	shuffles := []migration.Migrations{
		{reversible(1), reversible(2), reversible(3)},
		{reversible(3), reversible(1), reversible(2)},
		{reversible(2), reversible(3), reversible(1)},
	}

	for _, input := range shuffles {
		reg, err := registry.New(input)
		require.NoError(t, err)

		p, err := Plan(migration.Base, migration.Latest, reg, nil)
		require.NoError(t, err)

		assert.Equal(t, []migration.Version{1, 2, 3}, p.Steps.Versions())
	}
}
