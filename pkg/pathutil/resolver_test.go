package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		wantDB string
	}{
		{"default database next to ledger", Config{LedgerFile: "/data/main.journal"}, "/data/.sync/sync.db"},
		{"explicit database", Config{LedgerFile: "/data/main.journal", DatabasePath: "/var/lib/sync.db"}, "/var/lib/sync.db"},
		{"relative ledger", Config{LedgerFile: "main.journal"}, ".sync/sync.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.config)
			if got := p.GetDatabasePath(); got != tt.wantDB {
				t.Errorf("GetDatabasePath() = %q, expected %q", got, tt.wantDB)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in       string
		expected string
	}{
		{"~/ledger.journal", filepath.Join(home, "ledger.journal")},
		{"~", home},
		{"/abs/ledger.journal", "/abs/ledger.journal"},
		{"~user/ledger", "~user/ledger"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ExpandHome(tt.in); got != tt.expected {
				t.Errorf("ExpandHome(%q) = %q, expected %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestEnsureParentDir(t *testing.T) {
	dir := t.TempDir()
	p := New(Config{LedgerFile: filepath.Join(dir, "ledger.journal")})

	file := filepath.Join(dir, "a", "b", "sync.db")
	if err := p.EnsureParentDir(file); err != nil {
		t.Fatalf("EnsureParentDir() error = %v", err)
	}
	if !p.FileExists(filepath.Dir(file)) {
		t.Errorf("expected %s to exist", filepath.Dir(file))
	}
	if p.FileExists(file) {
		t.Errorf("did not expect %s to exist", file)
	}
}
