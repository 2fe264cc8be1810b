package source

import (
	"context"
	"github.com/pkg/errors"
	"github.com/strataops/strata/migration"
)

var ErrTooManyFilesForKey = errors.New("too many files for one migration key")
var ErrUnparseableFileName = errors.New("file name is not a valid migration name")

// Selector loads every known migration definition. Discovery order
// is irrelevant: the registry re-sorts by version.
type Selector interface {
	Select(ctx context.Context) (migration.Migrations, error)
}

// Source is a selector that can also materialize new migration
// templates, backing the create command.
type Source interface {
	Selector

	IsValid() bool
	AlreadyExists(v migration.Version, name string) bool
	Create(v migration.Version, name string, withRollback bool) (*migration.Migration, error)
}
