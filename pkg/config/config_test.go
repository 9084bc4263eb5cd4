package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"LEDGER_FILE", "LEDGER_RULES_FILE", "LEDGER_DB_PATH", "LEDGER_DEFAULT_ACCOUNT",
	"SYNC_MIN_INTERVAL", "STATEMENT_SOURCE", "STATEMENT_FILES", "STATEMENT_ACCOUNTS_FILE",
	"STATEMENT_API_URL", "STATEMENT_API_TOKEN", "STATEMENT_API_CLIENT_ID", "STATEMENT_API_CLIENT_SECRET", "STATEMENT_API_TIMEOUT", "LISTEN_ADDR", "DEBUG",
}

// clearEnv unsets every variable Load reads. godotenv never overrides a set
// variable, even an empty one, so they must be unset rather than emptied.
// t.Setenv restores the original values afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./ledger.journal", cfg.Ledger.File)
	assert.Equal(t, "./ledger.rules", cfg.Ledger.RulesFile)
	assert.Equal(t, "expenses:uncategorized", cfg.Ledger.DefaultAccount)
	assert.Equal(t, 10*time.Second, cfg.Ledger.MinInterval)
	assert.Equal(t, SourceFile, cfg.Source.Type)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.False(t, cfg.Debug)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	content := "LEDGER_FILE=/data/main.journal\n" +
		"SYNC_MIN_INTERVAL=1m\n" +
		"STATEMENT_SOURCE=api\n" +
		"STATEMENT_API_TOKEN=secret\n" +
		"STATEMENT_FILES= a.yaml, ,b.yaml \n" +
		"DEBUG=true\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0644))

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "/data/main.journal", cfg.Ledger.File)
	assert.Equal(t, time.Minute, cfg.Ledger.MinInterval)
	assert.Equal(t, SourceAPI, cfg.Source.Type)
	assert.Equal(t, "secret", cfg.Source.APIToken)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.Source.Files)
	assert.True(t, cfg.Debug)
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		debugEnv bool
		flag     bool
		expected slog.Level
	}{
		{"default", false, false, slog.LevelInfo},
		{"DEBUG set", true, false, slog.LevelDebug},
		{"flag set", false, true, slog.LevelDebug},
		{"both", true, true, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Debug: tt.debugEnv}
			assert.Equal(t, tt.expected, cfg.LogLevel(tt.flag))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad interval", "SYNC_MIN_INTERVAL", "soon"},
		{"negative interval", "SYNC_MIN_INTERVAL", "-5s"},
		{"bad source", "STATEMENT_SOURCE", "ftp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}

	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Ledger: LedgerConfig{File: "ledger.journal"},
		Source: SourceConfig{Type: SourceAPI, APIURL: "http://localhost"},
	}

	require.NoError(t, cfg.Validate([]string{"ledger", "file"}))

	err := cfg.Validate(cfg.SourceRequirements()...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.apiToken")
	assert.NotContains(t, err.Error(), "source.apiUrl")

	cfg.Source.ClientID = "app"
	err = cfg.Validate(cfg.SourceRequirements()...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.clientSecret")
	assert.NotContains(t, err.Error(), "source.apiToken")

	cfg.Source.ClientSecret = "shh"
	require.NoError(t, cfg.Validate(cfg.SourceRequirements()...))

	cfg.Source.Type = SourceFile
	err = cfg.Validate(cfg.SourceRequirements()...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.files")
}
