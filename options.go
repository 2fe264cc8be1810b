package strata

// OptionFunc configures a Migrator during construction.
type OptionFunc func(*Migrator) error
