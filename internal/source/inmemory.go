package source

import (
	"context"
	"github.com/pkg/errors"
	"github.com/strataops/strata/migration"
)

var ErrNoMigrations = errors.New("no migrations")

// InMemorySource is the static registration table variant: every
// definition is an explicit entry populated once at process
// initialization, no path scanning involved.
type InMemorySource struct {
	migrations migration.Migrations
}

var _ Selector = (*InMemorySource)(nil)

func NewInMemorySource(factories ...migration.Factory) (*InMemorySource, error) {
	m, err := migration.NewMigrations(factories...)
	if err != nil {
		return nil, err
	}

	return &InMemorySource{migrations: m}, nil
}

func (c *InMemorySource) Select(ctx context.Context) (migration.Migrations, error) {
	if c.migrations == nil {
		return nil, ErrNoMigrations
	}

	return c.migrations, nil
}
