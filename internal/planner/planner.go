package planner

import (
	"github.com/pkg/errors"
	"github.com/strataops/strata/internal/database"
	"github.com/strataops/strata/internal/registry"
	"github.com/strataops/strata/migration"
)

var ErrUnknownTarget = errors.New("target version is not present in the registry")
var ErrIrreversible = errors.New("migration declares no rollback and cannot be downgraded past")
var ErrOrphanedVersion = errors.New("ledger references a version the registry no longer defines")

// Plan computes the ordered steps required to move the database
// from current to target. It is a pure function of the registry and
// the ledger state: it owns no persistent state and is recomputed
// on every invocation. All planning errors are detected here,
// before anything runs.
//
// migration.Latest as target means "upgrade to everything known".
// migration.Base as target means "downgrade everything applied".
// target == current yields an empty upgrade plan, a no-op success.
func Plan(
	current migration.Version,
	target migration.Version,
	reg *registry.Registry,
	applied []migration.Record,
) (database.Plan, error) {
	if target == migration.Latest {
		return upgradePlan(current, reg.Latest(), reg, applied)
	}

	// the no-op comes first: plan(v, v) is an empty plan for any v,
	// even when v is an orphaned current version
	if target == current {
		return database.Plan{Direction: database.Up}, nil
	}

	if target != migration.Base && !reg.Contains(target) {
		return database.Plan{}, errors.Wrapf(ErrUnknownTarget, "[%s]", target)
	}

	if target > current {
		return upgradePlan(current, target, reg, applied)
	}

	return downgradePlan(current, target, reg, applied)
}

func upgradePlan(
	current, target migration.Version,
	reg *registry.Registry,
	applied []migration.Record,
) (database.Plan, error) {
	p := database.Plan{Direction: database.Up}

	appliedVersions := recordVersions(applied)
	for _, m := range reg.List() {
		if m.Version <= current || m.Version > target {
			continue
		}

		// an applied version above current would be a ledger
		// divergence; never schedule it twice
		if migration.InVersions(m.Version, appliedVersions) {
			continue
		}

		p.Steps = append(p.Steps, m)
	}

	return p, nil
}

// downgradePlan reverts applied versions above target in reverse
// application order. It fails fast when any step in range is
// irreversible or has lost its registry definition, so that an
// unrunnable downgrade never starts.
func downgradePlan(
	current, target migration.Version,
	reg *registry.Registry,
	applied []migration.Record,
) (database.Plan, error) {
	p := database.Plan{Direction: database.Down}

	for i := len(applied) - 1; i >= 0; i-- {
		v := applied[i].Version
		if v <= target || v > current {
			continue
		}

		m, err := reg.Get(v)
		if err != nil {
			return database.Plan{}, errors.Wrapf(ErrOrphanedVersion, "[%s_%s]", v, applied[i].Name)
		}

		if !m.Reversible() {
			return database.Plan{}, errors.Wrapf(ErrIrreversible, "[%s]", m.Key())
		}

		p.Steps = append(p.Steps, m)
	}

	return p, nil
}

func recordVersions(records []migration.Record) []migration.Version {
	result := make([]migration.Version, len(records))
	for i := range records {
		result[i] = records[i].Version
	}

	return result
}
