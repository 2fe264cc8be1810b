package registry

import (
	"github.com/pkg/errors"
	"github.com/strataops/strata/migration"
	"sort"
)

var ErrDuplicateVersion = errors.New("duplicate migration version")
var ErrNotFound = errors.New("migration version not found in the registry")

// Registry holds every known migration definition in its total
// order. It is the single source of truth for what can happen and
// in what sequence; discovery order never matters because ordering
// is solely a function of version.
type Registry struct {
	migrations migration.Migrations
	index      map[migration.Version]*migration.Migration
}

// New validates and orders the given definitions. Two definitions
// sharing a version are a conflict, typically two engineers
// allocating the same number on parallel branches.
func New(migrations migration.Migrations) (*Registry, error) {
	sorted := make(migration.Migrations, len(migrations))
	copy(sorted, migrations)
	sort.Sort(sorted)

	index := make(map[migration.Version]*migration.Migration, len(sorted))
	for i := range sorted {
		if sorted[i].Version == migration.Base {
			return nil, errors.Wrapf(migration.ErrInvalidVersion, "[%s]", sorted[i].Key())
		}

		if _, ok := index[sorted[i].Version]; ok {
			return nil, errors.Wrapf(ErrDuplicateVersion, "[%s]", sorted[i].Key())
		}

		index[sorted[i].Version] = sorted[i]
	}

	return &Registry{migrations: sorted, index: index}, nil
}

// List - all definitions sorted ascending by version.
func (r *Registry) List() migration.Migrations {
	return r.migrations
}

func (r *Registry) Get(v migration.Version) (*migration.Migration, error) {
	m, ok := r.index[v]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "[%s]", v)
	}

	return m, nil
}

func (r *Registry) Contains(v migration.Version) bool {
	_, ok := r.index[v]
	return ok
}

// Latest - the highest known version, or Base on an empty registry.
func (r *Registry) Latest() migration.Version {
	if len(r.migrations) == 0 {
		return migration.Base
	}

	return r.migrations[len(r.migrations)-1].Version
}

// NextVersion allocates the next unused version for a freshly
// created migration.
func (r *Registry) NextVersion() migration.Version {
	return r.Latest() + 1
}
