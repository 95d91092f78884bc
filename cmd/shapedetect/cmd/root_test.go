package cmd

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/shapedetect/internal/config"
)

// executeCommand runs a fresh command tree and captures stdout and stderr
// separately.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCommand()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "shapedetect", root.Use)
	assert.NotEmpty(t, root.Short)
	assert.NotEmpty(t, root.Long)
	assert.True(t, root.HasSubCommands())
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestRootCommandHelp(t *testing.T) {
	stdout, _, err := executeCommand(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "circle, triangle, rectangle, pentagon or star")
	assert.Contains(t, stdout, "Available Commands:")
	assert.Contains(t, stdout, "Usage:")
}

func TestRootCommandNoArgs(t *testing.T) {
	stdout, _, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	stdout, _, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "shapedetect dev")
}

func TestRootCommandSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range NewRootCommand().Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"image", "batch", "pdf", "serve", "benchmark", "config", "version"} {
		assert.Contains(t, names, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, stderr, err := executeCommand(t, "--invalid-flag")
	require.Error(t, err)
	assert.Contains(t, stderr, "unknown flag")
}

func TestRootCommandUnknownCommand(t *testing.T) {
	_, stderr, err := executeCommand(t, "circles")
	require.Error(t, err)
	assert.Contains(t, stderr, "unknown command")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "shapedetect version dev")
	assert.Contains(t, stdout, "Commit:")
	assert.Contains(t, stdout, "Built:")
}

func TestFreshStatePerExecution(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "detection:\n  threshold: 77\n")

	stdout, _, err := executeCommand(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "threshold: 77")

	stdout, _, err = executeCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "threshold: 128", "the previous --config must not leak")
}

func TestInvalidConfigFile(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "log_level: loud\n")
	_, _, err := executeCommand(t, "config", "show", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, _, err = executeCommand(t, "config", "show", "--config", "/non/existent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file does not exist")
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"info", false, slog.LevelInfo},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"error", true, slog.LevelDebug},
		{"", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.LogLevel = tt.level
			cfg.Verbose = tt.verbose
			assert.Equal(t, tt.want, logLevel(&cfg))
		})
	}
}

func TestLogsGoToStderr(t *testing.T) {
	stdout, stderr, err := executeCommand(t, "config", "show", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"Configuration loaded"`)
	assert.NotContains(t, stdout, `"msg"`)
}

func TestGetConfigDefaults(t *testing.T) {
	NewRootCommand()
	cfg := GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, 128, cfg.Detection.Threshold)
	assert.NotNil(t, GetConfigLoader())
}
