package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxevent"

	"xray/internal/app/cli"
	"xray/internal/config"
)

func writeConfigFile(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, config.FileName)
	body := "store:\n  path: " + filepath.Join(dir, "xray.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	return path
}

func Test_LoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir)

	cfg, err := loadConfig(&cli.Options{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "xray.db"), cfg.Store.Path)
	assert.Equal(t, config.ServerPort, cfg.Server.Port)
}

func Test_LoadConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir)

	opts := &cli.Options{
		ConfigPath: path,
		StorePath:  filepath.Join(dir, "other.db"),
		Port:       9000,
	}

	cfg, err := loadConfig(opts)
	require.NoError(t, err)

	assert.Equal(t, opts.StorePath, cfg.Store.Path)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func Test_LoadConfig_InvalidOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir)

	_, err := loadConfig(&cli.Options{ConfigPath: path, Port: -1})
	assert.Error(t, err)
}

func Test_CreateApp(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{name: "Creates app with info level logging", level: "info"},
		{name: "Creates app with debug level logging", level: "debug"},
		{name: "Creates app with error level logging", level: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Logging.Level = tt.level
			cfg.Store.Path = filepath.Join(t.TempDir(), "xray.db")

			app := createApp(cfg)
			assert.NotNil(t, app)
		})
	}
}

func Test_CreateFxLogger(t *testing.T) {
	tests := []struct {
		name           string
		level          string
		expectedType   interface{}
		expectedLogger interface{}
	}{
		{name: "Debug level returns console logger", level: "debug", expectedType: &fxevent.ConsoleLogger{}},
		{name: "Info level returns nop logger", level: "info", expectedLogger: fxevent.NopLogger},
		{name: "Warn level returns nop logger", level: "warn", expectedLogger: fxevent.NopLogger},
		{name: "Error level returns nop logger", level: "error", expectedLogger: fxevent.NopLogger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Logging.Level = tt.level

			result := createFxLogger(cfg)()
			assert.NotNil(t, result)

			if tt.expectedType != nil {
				assert.IsType(t, tt.expectedType, result)
			}

			if tt.expectedLogger != nil {
				assert.Equal(t, tt.expectedLogger, result)
			}
		})
	}
}

func Test_RunApp_Version(t *testing.T) {
	assert.Equal(t, 0, runApp([]string{"version"}))
}

func Test_RunApp_BadFlag(t *testing.T) {
	assert.Equal(t, 1, runApp([]string{"--bogus"}))
}
