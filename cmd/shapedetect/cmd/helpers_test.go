package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "shapedetect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
