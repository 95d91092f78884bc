// Package testutil provides synthetic shape images and filesystem helpers for tests.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// GetProjectRoot walks up from this source file to the directory holding go.mod.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}

	for dir := filepath.Dir(filename); ; {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find go.mod file starting from %s", filepath.Dir(filename))
		}
		dir = parent
	}
}

// TestDataDir returns <project root>/testdata/<sub...>.
func TestDataDir(sub ...string) (string, error) {
	root, err := GetProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{root, "testdata"}, sub...)...), nil
}

// WriteScenes renders every scene into a fresh temp directory and returns it.
func WriteScenes(t *testing.T, scenes ...Scene) string {
	t.Helper()

	dir := t.TempDir()
	for _, s := range scenes {
		s.Write(t, dir)
	}
	return dir
}

// WriteFile writes raw bytes under dir, creating parents as needed.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether anything exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
