package strata

import (
	"github.com/strataops/strata/migration"
)

type action struct {
	target migration.Version
}

// ActionConfigurator customizes a single Up or Down invocation.
type ActionConfigurator func(a *action)

func newAction(defaultTarget migration.Version, cfs []ActionConfigurator) *action {
	act := &action{target: defaultTarget}
	for _, f := range cfs {
		f(act)
	}

	return act
}

// WithTarget sets the version the plan should stop at. Up defaults
// to migration.Latest, Down to migration.Base.
func WithTarget(v migration.Version) ActionConfigurator {
	return func(a *action) {
		a.target = v
	}
}
