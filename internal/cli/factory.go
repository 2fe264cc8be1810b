package cli

import (
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/strataops/strata"
	"github.com/xo/dburl"
	"io/ioutil"
	"log"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v2"
)

type (
	migratorFactory    func(cfg Config) (*strata.Migrator, strata.CloserFunc, error)
	migratorFactoryMap map[string]migratorFactory

	migrations struct {
		LocalFolder string `yaml:"local_folder"`
		DatabaseURL string `yaml:"database_url"`
		LedgerTable string `yaml:"ledger_table"`
	}

	configFile struct {
		Version    string     `yaml:"version"`
		Migrations migrations `yaml:"migrations"`
	}
)

const configFileStub = `version: "1"
migrations:
  local_folder: ./migrations
  database_url: "%%DATABASE_URL%%"
  ledger_table: migrations
`

func createConfigFromYaml(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not open strata configuration file")
	}

	defer func() {
		if errClose := f.Close(); errClose != nil {
			panic(errClose)
		}
	}()

	b, err := ioutil.ReadAll(f)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read strata configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return cfg, errors.Wrap(err, "could not parse strata configuration file")
	}

	cfg.DatabaseURL = expandEnv(cfgFile.Migrations.DatabaseURL)
	cfg.MigrationsFolder = expandEnv(cfgFile.Migrations.LocalFolder)
	cfg.LedgerTable = expandEnv(cfgFile.Migrations.LedgerTable)

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("database url was not defined")
	}

	if cfg.MigrationsFolder == "" {
		return cfg, errors.New("migrations folder was not defined")
	}

	return cfg, nil
}

// expandEnv resolves %%VAR%% placeholders against the environment.
func expandEnv(v string) string {
	if strings.HasPrefix(v, "%%") && strings.HasSuffix(v, "%%") {
		return os.Getenv(strings.ReplaceAll(v, "%%", ""))
	}

	return v
}

// mysqlDSNWithParseTime forces parseTime=true on the DSN so that the
// ledger's applied_at column scans into time.Time.
func mysqlDSNWithParseTime(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse mysql DSN [%s]", dsn)
	}

	c.ParseTime = true

	return c.FormatDSN(), nil
}

func createMySQLMigrator(cfg Config) (*strata.Migrator, strata.CloserFunc, error) {
	dsn, err := mysqlDSNWithParseTime(cfg.dsn)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}

	var mysqlOpts []strata.MySQLOptionFunc
	if cfg.LedgerTable != "" {
		mysqlOpts = append(mysqlOpts, strata.WithMySQLLedgerTable(cfg.LedgerTable))
	}

	opts := []strata.OptionFunc{
		strata.UseColorLogger(log.New(os.Stdout, "", 0), cfg.PrintSQL, cfg.Debug),
		strata.UseMySQL(db.DB, mysqlOpts...),
		strata.UseLocalFolderSource(cfg.MigrationsFolder),
	}

	return strata.NewMigrator(opts...)
}

func createSqliteMigrator(cfg Config) (*strata.Migrator, strata.CloserFunc, error) {
	db, err := sqlx.Open("sqlite3", cfg.dsn)
	if err != nil {
		return nil, nil, err
	}

	var sqliteOpts []strata.SqliteOptionFunc
	if cfg.LedgerTable != "" {
		sqliteOpts = append(sqliteOpts, strata.WithSqliteLedgerTable(cfg.LedgerTable))
	}

	opts := []strata.OptionFunc{
		strata.UseColorLogger(log.New(os.Stdout, "", 0), cfg.PrintSQL, cfg.Debug),
		strata.UseSqlite(db.DB, sqliteOpts...),
		strata.UseLocalFolderSource(cfg.MigrationsFolder),
	}

	return strata.NewMigrator(opts...)
}

func createMigrator(cfg Config) (*strata.Migrator, strata.CloserFunc, error) {
	factoryMap := migratorFactoryMap{
		"mysql":   createMySQLMigrator,
		"sqlite3": createSqliteMigrator,
	}

	u, err := dburl.Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not parse database url [%s]", cfg.DatabaseURL)
	}

	cfg.dsn = u.DSN

	return createMigratorFrom(u.Driver, factoryMap, cfg)
}

func createMigratorFrom(
	driver string,
	factoryMap migratorFactoryMap,
	cfg Config,
) (*strata.Migrator, strata.CloserFunc, error) {
	factory, ok := factoryMap[driver]
	if !ok {
		return nil, nil, errors.Errorf("unsupported database driver [%s]", driver)
	}

	return factory(cfg)
}
