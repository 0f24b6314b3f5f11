// Package eventlog resolves and opens the storage backend that "particle
// listen" records events into and "particle events" reads them from.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/saamerm/particle/pkg/dotdir"
	"github.com/saamerm/particle/pkg/storage"
	"github.com/saamerm/particle/pkg/storage/postgres"
	"github.com/saamerm/particle/pkg/storage/sqlite"
)

// DefaultFileName is the SQLite event log looked up in the .particle/ directory.
const DefaultFileName = "events.db"

// ErrNotFound is returned when no event log is configured or found.
var ErrNotFound = errors.New("could not find a particle event log; pass --sqlite or --postgres")

// ResolveSQLitePath returns override when set, otherwise the first existing
// events.db among the resolved .particle/ directory, ./.particle and
// ~/.particle.
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		return override, nil
	}

	for _, candidate := range candidates(configDir) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", ErrNotFound
}

// DefaultSQLitePath is where "particle listen --record" keeps its log when no
// path is configured.
func DefaultSQLitePath(configDir string) (string, error) {
	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultFileName), nil
}

func candidates(configDir string) []string {
	var out []string

	if dir, err := DefaultSQLitePath(configDir); err == nil {
		out = append(out, dir)
	}

	out = append(out, filepath.Join(dotdir.DirName, DefaultFileName))

	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, dotdir.DirName, DefaultFileName))
	}

	return out
}

// Open opens the Postgres log when postgresDSN is set, otherwise the SQLite
// log at sqlitePath. It returns a nil driver when neither is set.
func Open(ctx context.Context, sqlitePath, postgresDSN string) (storage.Driver, error) {
	switch {
	case postgresDSN != "" && sqlitePath != "":
		return nil, errors.New("--sqlite and --postgres are mutually exclusive")

	case postgresDSN != "":
		driver, err := postgres.NewDriver(ctx, postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres event log: %w", err)
		}
		return driver, nil

	case sqlitePath != "":
		driver, err := sqlite.NewSQLiteDriver(sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite event log %s: %w", sqlitePath, err)
		}
		return driver, nil

	default:
		return nil, nil
	}
}
