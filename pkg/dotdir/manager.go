// Package dotdir resolves the .particle/ directory that holds the CLI's
// config and credentials.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the name of the particle directory.
	DirName = ".particle"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .particle/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.particle/ dir
//  3. Home ~/.particle/ dir, created when missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, DirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, DirName)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating particle directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, DirName))
	return err == nil && info.IsDir()
}
