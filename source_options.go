package strata

import (
	"github.com/strataops/strata/internal/source"
	"github.com/strataops/strata/migration"
)

// UseLocalFolderSource discovers migrations in a folder of
// <version>_<name>.migrate.sql / .rollback.sql files.
func UseLocalFolderSource(folder string) OptionFunc {
	return func(m *Migrator) error {
		m.selector = source.NewLocalFSSource(folder, m.lg)
		return nil
	}
}

// UseInMemorySource registers migrations statically, one explicit
// entry per version, populated once at process initialization.
func UseInMemorySource(factories ...migration.Factory) OptionFunc {
	return func(m *Migrator) error {
		s, err := source.NewInMemorySource(factories...)
		if err != nil {
			return err
		}

		m.selector = s
		return nil
	}
}
