package migration

import (
	"bytes"
	"fmt"
	"github.com/pkg/errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidVersion = errors.New("invalid migration version")
var ErrInvalidName = errors.New("invalid migration name")

// Version is a totally ordered migration identifier. Zero is the
// distinguished "base" version, meaning no migration has been applied.
type Version uint64

const (
	// Base - the state before any migration has been applied.
	Base Version = 0

	// Latest - the distinguished target marker for "everything the
	// registry knows about".
	Latest Version = 1<<63 - 1

	// VersionPadding - width versions are zero padded to in keys
	// and file names.
	VersionPadding = 4
)

func (v Version) String() string {
	return fmt.Sprintf("%0*d", VersionPadding, uint64(v))
}

// ParseVersion converts the numeric, possibly zero padded, version
// segment of a migration key or a raw user supplied string into a
// Version.
func ParseVersion(s string) (Version, error) {
	n, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return Base, errors.Wrapf(ErrInvalidVersion, "[%s]", s)
	}

	return Version(n), nil
}

type (
	// Migration - a single versioned, reversible unit of schema or
	// data change. Migrate holds the forward statement batch,
	// Rollback the inverse one. An empty Rollback marks the
	// migration as irreversible.
	Migration struct {
		Version  Version
		Name     string
		Migrate  []string
		Rollback []string
	}

	// Record - one history ledger entry.
	Record struct {
		Version   Version
		Name      string
		AppliedAt time.Time
	}

	Factory func() (*Migration, error)
)

var nameFormat = regexp.MustCompile(`^[a-zA-Z][\w-]*$`)

// New creates a migration factory from raw parts, validating
// version and name eagerly so that a registry built from it never
// carries an unparseable definition.
func New(version Version, name string, migrate, rollback []string) Factory {
	return func() (*Migration, error) {
		if version == Base {
			return nil, errors.Wrap(ErrInvalidVersion, "version must be positive")
		}

		name = strings.Replace(strings.ToLower(strings.TrimSpace(name)), " ", "_", -1)
		if !nameFormat.MatchString(name) {
			return nil, errors.Wrapf(ErrInvalidName, "[%s]", name)
		}

		return &Migration{
			Version:  version,
			Name:     name,
			Migrate:  migrate,
			Rollback: rollback,
		}, nil
	}
}

// Key - the stable identifier used for file names and labels,
// e.g. 0042_create_users_table.
func (m *Migration) Key() string {
	return CreateKeyFromVersionAndName(m.Version, m.Name)
}

// Reversible reports whether the migration declares a rollback
// batch. Downgrade planning past an irreversible migration is a
// hard stop.
func (m *Migration) Reversible() bool {
	return len(m.Rollback) > 0
}

func (m *Migration) MigrateScripts() string {
	return joinScripts(m.Migrate)
}

func (m *Migration) RollbackScripts() string {
	return joinScripts(m.Rollback)
}

func joinScripts(scripts []string) string {
	var buf bytes.Buffer

	for i := range scripts {
		buf.WriteString(scripts[i])

		if !strings.HasSuffix(scripts[i], ";") {
			buf.WriteString(";")
		}

		if i < len(scripts)-1 {
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

type Migrations []*Migration

func NewMigrations(factories ...Factory) (Migrations, error) {
	migrations := make(Migrations, len(factories))

	for i := range factories {
		m, err := factories[i]()
		if err != nil {
			return nil, err
		}

		migrations[i] = m
	}

	return migrations, nil
}

func (m Migrations) Keys() (result []string) {
	for i := range m {
		result = append(result, m[i].Key())
	}
	return result
}

func (m Migrations) Versions() (result []Version) {
	for i := range m {
		result = append(result, m[i].Version)
	}
	return result
}

func (m Migrations) Len() int {
	return len(m)
}

func (m Migrations) Less(i, j int) bool {
	return m[i].Version < m[j].Version
}

func (m Migrations) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

func CreateKeyFromVersionAndName(v Version, name string) string {
	var result bytes.Buffer
	result.WriteString(v.String())
	result.WriteString("_")
	result.WriteString(strings.Replace(strings.ToLower(name), " ", "_", -1))
	return result.String()
}

// CurrentVersion - the highest version among ledger records, or
// Base when nothing has been applied.
func CurrentVersion(records []Record) Version {
	current := Base
	for i := range records {
		if records[i].Version > current {
			current = records[i].Version
		}
	}

	return current
}

func InVersions(version Version, versions []Version) bool {
	for _, v := range versions {
		if v == version {
			return true
		}
	}

	return false
}
