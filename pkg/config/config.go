// Package config provides configuration management for ledger-sync.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Statement source types.
const (
	SourceFile = "file"
	SourceAPI  = "api"
)

// Config represents the application configuration.
type Config struct {
	Ledger LedgerConfig
	Source SourceConfig
	Server ServerConfig
	Debug  bool
}

// LedgerConfig represents the ledger files and sync behaviour.
type LedgerConfig struct {
	File           string
	RulesFile      string
	DBPath         string
	DefaultAccount string
	MinInterval    time.Duration
}

// SourceConfig represents where bank statements come from.
type SourceConfig struct {
	Type         string
	Files        []string
	AccountsFile string
	APIURL       string
	APIToken     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// ServerConfig represents the HTTP server configuration.
type ServerConfig struct {
	ListenAddr string
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	minInterval, err := parseDurationEnv("SYNC_MIN_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDurationEnv("STATEMENT_API_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	sourceType := strings.ToLower(getEnvOrDefault("STATEMENT_SOURCE", SourceFile))
	if sourceType != SourceFile && sourceType != SourceAPI {
		return nil, fmt.Errorf("invalid STATEMENT_SOURCE %q: must be %q or %q", sourceType, SourceFile, SourceAPI)
	}

	config := &Config{
		Ledger: LedgerConfig{
			File:           getEnvOrDefault("LEDGER_FILE", "./ledger.journal"),
			RulesFile:      getEnvOrDefault("LEDGER_RULES_FILE", "./ledger.rules"),
			DBPath:         os.Getenv("LEDGER_DB_PATH"),
			DefaultAccount: getEnvOrDefault("LEDGER_DEFAULT_ACCOUNT", "expenses:uncategorized"),
			MinInterval:    minInterval,
		},
		Source: SourceConfig{
			Type:         sourceType,
			Files:        splitList(os.Getenv("STATEMENT_FILES")),
			AccountsFile: getEnvOrDefault("STATEMENT_ACCOUNTS_FILE", "./accounts.yaml"),
			APIURL:       getEnvOrDefault("STATEMENT_API_URL", "http://localhost:8080"),
			APIToken:     os.Getenv("STATEMENT_API_TOKEN"),
			ClientID:     os.Getenv("STATEMENT_API_CLIENT_ID"),
			ClientSecret: os.Getenv("STATEMENT_API_CLIENT_SECRET"),
			Timeout:      timeout,
		},
		Server: ServerConfig{
			ListenAddr: getEnvOrDefault("LISTEN_ADDR", ":8080"),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// LogLevel returns the log level the configuration asks for. A debug flag
// given on the command line overrides DEBUG=false.
func (c *Config) LogLevel(debugFlag bool) slog.Level {
	if debugFlag || c.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Validate validates the configuration.
// It checks if all required fields are set.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "ledger":
			switch path[1] {
			case "file":
				value = c.Ledger.File
			case "rulesFile":
				value = c.Ledger.RulesFile
			case "dbPath":
				value = c.Ledger.DBPath
			case "defaultAccount":
				value = c.Ledger.DefaultAccount
			}
		case "source":
			switch path[1] {
			case "files":
				value = strings.Join(c.Source.Files, ",")
			case "accountsFile":
				value = c.Source.AccountsFile
			case "apiUrl":
				value = c.Source.APIURL
			case "apiToken":
				value = c.Source.APIToken
			case "clientId":
				value = c.Source.ClientID
			case "clientSecret":
				value = c.Source.ClientSecret
			}
		case "server":
			switch path[1] {
			case "listenAddr":
				value = c.Server.ListenAddr
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// SourceRequirements returns the settings the configured statement source
// needs, for use with Validate. The API source takes either a static token or
// a client id and secret.
func (c *Config) SourceRequirements() [][]string {
	if c.Source.Type == SourceAPI {
		if c.Source.ClientID != "" || c.Source.ClientSecret != "" {
			return [][]string{{"source", "apiUrl"}, {"source", "clientId"}, {"source", "clientSecret"}}
		}
		return [][]string{{"source", "apiUrl"}, {"source", "apiToken"}}
	}
	return [][]string{{"source", "files"}}
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv parses a duration such as "10s" from an environment variable.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative: %s", key, value)
	}
	return parsed, nil
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
