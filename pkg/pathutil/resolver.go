// Package pathutil provides centralized path management for the ledger, its
// rules file, and the sync database.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver manages paths for the ledger file and its companions.
type PathResolver struct {
	ledgerFile   string
	rulesFile    string
	databasePath string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// LedgerFile is the ledger text file (e.g., ~/accounting/main.journal)
	LedgerFile string
	// RulesFile is the rules file applied to incoming transactions
	RulesFile string
	// DatabasePath is the path to the SQLite database file for sync history
	DatabasePath string
}

// New creates a new PathResolver with the given configuration.
// A leading "~/" is expanded to the home directory.
// If DatabasePath is empty, it defaults to {dir of LedgerFile}/.sync/sync.db
func New(config Config) *PathResolver {
	ledgerFile := ExpandHome(config.LedgerFile)

	dbPath := ExpandHome(config.DatabasePath)
	if dbPath == "" {
		dbPath = filepath.Join(filepath.Dir(ledgerFile), ".sync", "sync.db")
	}

	return &PathResolver{
		ledgerFile:   ledgerFile,
		rulesFile:    ExpandHome(config.RulesFile),
		databasePath: dbPath,
	}
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GetLedgerFile returns the ledger file path.
func (p *PathResolver) GetLedgerFile() string {
	return p.ledgerFile
}

// GetRulesFile returns the rules file path.
func (p *PathResolver) GetRulesFile() string {
	return p.rulesFile
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	return p.EnsureDir(filepath.Dir(filePath))
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
