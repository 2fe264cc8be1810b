package source

import (
	"context"
	"github.com/pkg/errors"
	"github.com/strataops/strata/internal/logger"
	"github.com/strataops/strata/migration"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const DefaultMigrationsFolder = "./migrations"

const (
	defaultMigrateFileFullExtension  = ".migrate.sql"
	defaultRollbackFileFullExtension = ".rollback.sql"

	keyFormat = `^(?P<version>\d{1,10})_(?P<name>[a-zA-Z][\w-]*)$`
)

var keyRegexp = regexp.MustCompile(keyFormat)

// LocalFSSource discovers migrations in a folder of files named
// <version>_<name>.migrate.sql with an optional sibling
// <version>_<name>.rollback.sql. A migration without a rollback
// file is irreversible.
type LocalFSSource struct {
	folder string
	lg     logger.Logger
}

var _ Source = (*LocalFSSource)(nil)

func NewLocalFSSource(folder string, lg logger.Logger) *LocalFSSource {
	return &LocalFSSource{folder: folder, lg: lg}
}

func (lfs *LocalFSSource) IsValid() bool {
	info, err := os.Stat(lfs.folder)
	if os.IsNotExist(err) {
		return false
	}

	return info.IsDir()
}

func (lfs *LocalFSSource) AlreadyExists(v migration.Version, name string) bool {
	key := migration.CreateKeyFromVersionAndName(v, name)
	filename := filepath.Join(lfs.folder, key+defaultMigrateFileFullExtension)
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}

// Create materializes empty forward and, optionally, rollback
// templates for a freshly allocated version.
func (lfs *LocalFSSource) Create(
	v migration.Version,
	name string,
	withRollback bool,
) (*migration.Migration, error) {
	key := migration.CreateKeyFromVersionAndName(v, name)

	migrateFilename := filepath.Join(lfs.folder, key+defaultMigrateFileFullExtension)
	mf, err := os.Create(migrateFilename)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create file [%s]", migrateFilename)
	}

	if cErr := mf.Close(); cErr != nil {
		return nil, errors.Wrapf(cErr, "could not close file [%s]", migrateFilename)
	}

	if withRollback {
		rollbackFilename := filepath.Join(lfs.folder, key+defaultRollbackFileFullExtension)
		rf, err := os.Create(rollbackFilename)
		if err != nil {
			return nil, errors.Wrapf(err, "could not create file [%s]", rollbackFilename)
		}

		if cErr := rf.Close(); cErr != nil {
			return nil, errors.Wrapf(cErr, "could not close file [%s]", rollbackFilename)
		}
	}

	return &migration.Migration{
		Version: v,
		Name:    name,
	}, nil
}

func (lfs *LocalFSSource) Select(ctx context.Context) (migration.Migrations, error) {
	keys, err := lfs.getAllKeysFromFolder()
	if err != nil {
		return nil, err
	}

	// buffered so every reader can finish even after an early error
	// return abandons the receive loop
	migrationsCh := make(chan *migration.Migration, len(keys))
	errorsCh := make(chan error, len(keys))
	var wg sync.WaitGroup

	for k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			m, err := lfs.readOne(key)
			if err != nil {
				errorsCh <- errors.Wrapf(err, "with key [%s]", key)
				return
			}

			migrationsCh <- m
		}(k)
	}

	go func() {
		wg.Wait()
		close(migrationsCh)
		close(errorsCh)
	}()

	var result migration.Migrations

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case m, ok := <-migrationsCh:
			if ok {
				result = append(result, m)
			} else {
				sort.Sort(result)
				return result, nil
			}
		case err, ok := <-errorsCh:
			if ok {
				lfs.lg.Error(err)
				return nil, err
			}
		}
	}
}

func (lfs *LocalFSSource) getAllKeysFromFolder() (map[string]int, error) {
	files, err := ioutil.ReadDir(lfs.folder)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read keys from folder [%s]", lfs.folder)
	}

	keys := make(map[string]int)

	for i := range files {
		if files[i].IsDir() {
			continue
		}

		key, err := convertLocalFilePathToKey(files[i].Name())
		if err != nil {
			return nil, errors.Wrapf(err, "file [%s]", files[i].Name())
		}

		keys[key]++
		if keys[key] > 2 {
			return nil, errors.Wrapf(ErrTooManyFilesForKey, "[%s]", key)
		}
	}

	return keys, nil
}

func (lfs *LocalFSSource) readOne(key string) (*migration.Migration, error) {
	matches := keyRegexp.FindStringSubmatch(key)
	if len(matches) < 3 {
		return nil, errors.Wrapf(ErrUnparseableFileName, "[%s]", key)
	}

	version, err := migration.ParseVersion(matches[1])
	if err != nil {
		return nil, err
	}

	up, err := ioutil.ReadFile(filepath.Join(lfs.folder, key+defaultMigrateFileFullExtension))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read migrate file for key [%s]", key)
	}

	m := &migration.Migration{
		Version: version,
		Name:    matches[2],
		Migrate: splitScripts(string(up)),
	}

	downPath := filepath.Join(lfs.folder, key+defaultRollbackFileFullExtension)
	if _, err := os.Stat(downPath); err == nil {
		down, err := ioutil.ReadFile(downPath)
		if err != nil {
			return nil, errors.Wrapf(err, "could not read rollback file for key [%s]", key)
		}

		m.Rollback = splitScripts(string(down))
	}

	return m, nil
}

func convertLocalFilePathToKey(path string) (string, error) {
	base := filepath.Base(path)

	switch {
	case strings.HasSuffix(base, defaultMigrateFileFullExtension):
		return strings.TrimSuffix(base, defaultMigrateFileFullExtension), nil
	case strings.HasSuffix(base, defaultRollbackFileFullExtension):
		return strings.TrimSuffix(base, defaultRollbackFileFullExtension), nil
	}

	return "", ErrUnparseableFileName
}

func splitScripts(contents string) []string {
	var scripts []string

	for _, s := range strings.Split(contents, ";") {
		s = strings.TrimSpace(s)
		if s != "" {
			scripts = append(scripts, s)
		}
	}

	return scripts
}
