package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/config"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/db"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/syncer"
)

const statementYAML = `institution_id: "1001"
institution: First Bank
accounts:
  - id: "42"
    kind: bank
    description: Checking
    balance: "500.00"
    balance_date: 2024-01-10
    transactions:
      - id: t1
        date: 2024-01-02
        payee: Coffee Shop
        amount: "-4.50"
      - id: t2
        date: 2024-01-08
        payee: Payroll
        amount: "1200.00"
`

const rulesText = `if Coffee Shop
  account2 expenses:dining
`

var syncTime = time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	stmt := filepath.Join(dir, "statement.yaml")
	require.NoError(t, os.WriteFile(stmt, []byte(statementYAML), 0644))
	rulesFile := filepath.Join(dir, "ledger.rules")
	require.NoError(t, os.WriteFile(rulesFile, []byte(rulesText), 0644))

	return &config.Config{
		Ledger: config.LedgerConfig{
			File:           filepath.Join(dir, "ledger.journal"),
			RulesFile:      rulesFile,
			DefaultAccount: "expenses:uncategorized",
		},
		Source: config.SourceConfig{
			Type:         config.SourceFile,
			Files:        []string{stmt},
			AccountsFile: filepath.Join(dir, "accounts.yaml"),
		},
	}
}

func loadSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	s := New(cfg, nil)
	require.NoError(t, s.Load())
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestNotLoaded(t *testing.T) {
	ctx := context.Background()
	s := New(testConfig(t), nil)

	_, err := s.Ledger()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = s.Rules()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = s.History()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, _, err = s.LastSync(ctx)
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = s.Sync(ctx, syncTime, syncer.Options{})
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = s.Format()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = s.VerifyHistory(ctx, false)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.NoError(t, s.Close())
}

func TestLoadIsMemoized(t *testing.T) {
	cfg := testConfig(t)
	s := loadSession(t, cfg)

	r, err := s.Rules()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	// A second Load must not re-read files.
	require.NoError(t, os.WriteFile(cfg.Ledger.RulesFile, []byte("bogus\n"), 0644))
	require.NoError(t, s.Load())

	again, err := s.Rules()
	require.NoError(t, err)
	assert.Same(t, r, again)
}

func TestLoadFailsOnBadRules(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Ledger.RulesFile, []byte("bogus directive\n"), 0644))

	s := New(cfg, nil)
	err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load rules")

	_, err = s.Ledger()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s := loadSession(t, cfg)

	result, err := s.Sync(ctx, syncTime, syncer.Options{})
	require.NoError(t, err)
	require.Len(t, result.Appended, 2)

	l, err := s.Ledger()
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Contains("1001-42-t1"))

	data, err := os.ReadFile(cfg.Ledger.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "expenses:dining")
	assert.Contains(t, string(data), "expenses:uncategorized")
	assert.Equal(t, l.String(), string(data))

	last, ok, err := s.LastSync(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(syncTime))

	history, err := s.History()
	require.NoError(t, err)
	stats, err := history.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTransactions)
}

func TestSyncDryRunLeavesLedger(t *testing.T) {
	s := loadSession(t, testConfig(t))

	result, err := s.Sync(context.Background(), syncTime, syncer.Options{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, result.Appended, 2)

	l, err := s.Ledger()
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestFormat(t *testing.T) {
	cfg := testConfig(t)
	messy := "2024/01/02 Coffee Shop\n" +
		"    assets:Checking   $ -4.50\n" +
		"    expenses:dining  \n"
	require.NoError(t, os.WriteFile(cfg.Ledger.File, []byte(messy), 0644))

	s := loadSession(t, cfg)
	n, err := s.Format()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(cfg.Ledger.File)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "2024/01/02 Coffee Shop\n    assets:Checking  $ -4.50\n"))
}

func TestVerifyHistory(t *testing.T) {
	ctx := context.Background()
	s := loadSession(t, testConfig(t))

	_, err := s.Sync(ctx, syncTime, syncer.Options{})
	require.NoError(t, err)

	v, err := s.VerifyHistory(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Checked)
	assert.True(t, v.OK())

	history, err := s.History()
	require.NoError(t, err)
	deleted, err := history.DeleteSyncRecord(ctx, "1001-42-t1")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, history.RecordBatch(ctx, []db.SyncRecord{
		{TransactionID: "1001-42-gone", Account: "assets:Checking", Date: "2024-01-01", Amount: "1", LedgerFile: s.LedgerPath()},
		{TransactionID: "1001-42-other", Account: "assets:Checking", Date: "2024-01-01", Amount: "1", LedgerFile: "other.journal"},
	}))

	v, err = s.VerifyHistory(ctx, false)
	require.NoError(t, err)
	assert.False(t, v.OK())
	assert.False(t, v.Repaired)
	require.Len(t, v.Missing, 1)
	assert.Equal(t, "1001-42-t1", v.Missing[0].TransactionID)
	require.Len(t, v.Stale, 1)
	assert.Equal(t, "1001-42-gone", v.Stale[0].TransactionID)

	v, err = s.VerifyHistory(ctx, true)
	require.NoError(t, err)
	assert.True(t, v.Repaired)

	synced, err := history.IsSynced(ctx, "1001-42-t1")
	require.NoError(t, err)
	assert.True(t, synced)
	synced, err = history.IsSynced(ctx, "1001-42-gone")
	require.NoError(t, err)
	assert.False(t, synced)
	synced, err = history.IsSynced(ctx, "1001-42-other")
	require.NoError(t, err)
	assert.True(t, synced)

	v, err = s.VerifyHistory(ctx, false)
	require.NoError(t, err)
	assert.True(t, v.OK())
}
