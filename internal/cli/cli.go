package cli

import (
	"bufio"
	"context"
	"fmt"
	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"
	"github.com/strataops/strata"
	"github.com/strataops/strata/migration"
	"io"
	"os"
	"strings"
)

var ErrConfirmationDeclined = errors.New("reset was not confirmed")
var ErrTargetRequired = errors.New("a target version is required")

type (
	CloserFunc func() error

	Config struct {
		DatabaseURL      string
		MigrationsFolder string
		LedgerTable      string
		PrintSQL         bool
		Debug            bool

		dsn string
	}

	App struct {
		migrator *strata.Migrator
		out      io.Writer
	}
)

func NewFromYaml(path string) (*App, CloserFunc, error) {
	cfg, err := createConfigFromYaml(path)
	if err != nil {
		return nil, nil, err
	}

	return New(cfg)
}

func New(cfg Config) (*App, CloserFunc, error) {
	m, closer, err := createMigrator(cfg)
	if err != nil {
		return nil, nil, err
	}

	return &App{migrator: m, out: os.Stdout}, CloserFunc(closer), nil
}

// Status prints one line per known or ledger referenced version.
// It is informational and never fails on divergence: orphans are
// printed, not raised.
func (app *App) Status(ctx context.Context) error {
	entries, err := app.migrator.Status(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(app.out, "no migrations found")
		return nil
	}

	for _, e := range entries {
		var state aurora.Value
		switch e.State {
		case strata.StateApplied:
			state = aurora.Green(e.State.String())
		case strata.StatePending:
			state = aurora.Yellow(e.State.String())
		default:
			state = aurora.Red(e.State.String())
		}

		line := fmt.Sprintf("%s  %-40s %s", e.Version, e.Name, state)
		if e.State == strata.StateApplied {
			line += fmt.Sprintf("  %s", e.AppliedAt.Format("2006-01-02 15:04:05"))
		}

		fmt.Fprintln(app.out, line)
	}

	return nil
}

// Up migrates to the given target, or to the latest version when
// target is empty.
func (app *App) Up(ctx context.Context, target string) error {
	var cfs []strata.ActionConfigurator

	if target != "" {
		v, err := migration.ParseVersion(target)
		if err != nil {
			return err
		}

		cfs = append(cfs, strata.WithTarget(v))
	}

	applied, err := app.migrator.Up(ctx, cfs...)

	for _, m := range applied {
		fmt.Fprintln(app.out, aurora.Green(fmt.Sprintf("applied %s", m.Key())))
	}

	if err != nil {
		return err
	}

	if len(applied) == 0 {
		fmt.Fprintln(app.out, "nothing to migrate")
	}

	return nil
}

// Down rolls back to the given target. The target is mandatory;
// "0" reverts everything.
func (app *App) Down(ctx context.Context, target string) error {
	if target == "" {
		return ErrTargetRequired
	}

	v, err := migration.ParseVersion(target)
	if err != nil {
		return err
	}

	reverted, err := app.migrator.Down(ctx, strata.WithTarget(v))

	for _, m := range reverted {
		fmt.Fprintln(app.out, aurora.Green(fmt.Sprintf("rolled back %s", m.Key())))
	}

	if err != nil {
		return err
	}

	if len(reverted) == 0 {
		fmt.Fprintln(app.out, "nothing to roll back")
	}

	return nil
}

func (app *App) Create(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("a migration description is required")
	}

	created, err := app.migrator.Create(ctx, name)
	if err != nil {
		return err
	}

	fmt.Fprintln(app.out, aurora.Green(fmt.Sprintf("created %s", created.Key())))

	return nil
}

// Reset drops everything the engine manages. Unless force is set
// the operator must type yes on the given reader.
func (app *App) Reset(ctx context.Context, in io.Reader, force bool) error {
	if !force {
		fmt.Fprint(app.out, aurora.Red("this will drop ALL tables and empty the ledger, type 'yes' to continue: "))

		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}

		if strings.TrimSpace(answer) != "yes" {
			return ErrConfirmationDeclined
		}
	}

	return app.migrator.Reset(ctx)
}

// InitCfg writes a starter strata.yaml to the given path.
func InitCfg(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create config file")
	}

	defer func() {
		if err := f.Close(); err != nil {
			panic(err)
		}
	}()

	r := strings.NewReader(configFileStub)

	if _, err := io.Copy(f, r); err != nil {
		return err
	}

	return nil
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
