// Package syncer merges bank statements into the ledger: it decides how far
// back to refetch, runs statements through the balance propagator and the
// rules, drops transactions the ledger already has, and appends the rest
// under the ledger's exclusive lock.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/db"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/rules"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/statement"
)

// Source supplies accounts and their statements.
type Source interface {
	Accounts(ctx context.Context) ([]statement.Account, error)
	Statement(ctx context.Context, account statement.Account, days int) (statement.Statement, error)
	DisplayName(ctx context.Context, account statement.Account) (string, error)
}

// History persists sync bookkeeping. *db.SyncHistory implements it.
type History interface {
	LastSync(ctx context.Context) (time.Time, bool, error)
	SetLastSync(ctx context.Context, t time.Time) error
	RecordBatch(ctx context.Context, records []db.SyncRecord) error
	RecordRun(ctx context.Context, run db.RunRecord) error
}

// Config holds settings that apply to every run.
type Config struct {
	// DefaultAccount replaces null accounts before transactions are written.
	// It defaults to ledger.UnassignedAccount.
	DefaultAccount string
	// MinInterval skips a sync that follows the last one too closely.
	MinInterval time.Duration
}

// Options adjust a single run.
type Options struct {
	// DryRun computes the new transactions without writing anything.
	DryRun bool
	// OpeningBalances prepends an opening balance entry for every account.
	OpeningBalances bool
	// Sort orders the fetched transactions by date before appending.
	Sort bool
	// IgnoreInterval runs even within MinInterval of the last sync.
	IgnoreInterval bool
	// KeepLastSync leaves the recorded last sync time alone. Imports of
	// statement files set it so they do not shrink the next sync's window.
	KeepLastSync bool
}

// Result describes one run.
type Result struct {
	// Appended holds the transactions newly added to the ledger, in order.
	Appended   []ledger.Transaction
	WindowDays int
	Fetched    int
	Duplicates int
	// Skipped is set when the run was within MinInterval of the last sync.
	Skipped bool
}

// Syncer merges statement sources into one ledger file.
type Syncer struct {
	file    *ledger.File
	rules   *rules.Rules
	history History
	config  Config
}

// New creates a Syncer. history may be nil, in which case nothing is
// remembered between runs.
func New(file *ledger.File, r *rules.Rules, history History, config Config) *Syncer {
	if r == nil {
		r = &rules.Rules{}
	}
	if config.DefaultAccount == "" {
		config.DefaultAccount = ledger.UnassignedAccount
	}
	return &Syncer{file: file, rules: r, history: history, config: config}
}

// Run performs one sync against src as of now. The whole run holds the
// ledger lock; a concurrent run waits for it.
//
// Failures of individual accounts do not stop the others: their
// transactions are still appended and the failures are returned together as
// SourceErrors alongside the result.
func (s *Syncer) Run(ctx context.Context, src Source, now time.Time, opts Options) (*Result, error) {
	result := &Result{}
	err := s.file.WithLock(func() error {
		return s.run(ctx, src, now, opts, result)
	})
	return result, err
}

func (s *Syncer) run(ctx context.Context, src Source, now time.Time, opts Options, result *Result) error {
	lastSync, hasLastSync, err := s.lastSync(ctx)
	if err != nil {
		return err
	}

	if hasLastSync && !opts.IgnoreInterval {
		if since := now.Sub(lastSync); since >= 0 && since < s.config.MinInterval {
			slog.Info("Skipping sync, last sync was too recent", "last_sync", lastSync, "min_interval", s.config.MinInterval)
			result.Skipped = true
			return nil
		}
	}

	l, err := s.file.Load()
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	latest, _ := l.LatestDate()
	days, err := Window(now, lastSync, latest)
	if err != nil {
		s.recordRun(ctx, now, result, 0, err)
		return err
	}
	result.WindowDays = days
	slog.Info("Starting sync", "ledger", s.file.Path(), "window_days", days, "dry_run", opts.DryRun)

	perAccount, srcErrs, err := s.fetch(ctx, src, days)
	if err != nil {
		s.recordRun(ctx, now, result, 0, err)
		return err
	}

	var batch []ledger.Transaction
	if opts.OpeningBalances {
		if l.Contains(OpeningBalanceID) {
			return &DuplicateOpeningBalanceError{ID: OpeningBalanceID}
		}
		opening, err := OpeningBalance(perAccount)
		if err != nil {
			return err
		}
		batch = append(batch, opening)
	}

	var fetched []ledger.Transaction
	for _, txns := range perAccount {
		fetched = append(fetched, txns...)
	}
	if opts.Sort {
		ledger.SortByDate(fetched)
	}
	result.Fetched = len(fetched)
	batch = append(batch, fetched...)

	fresh, err := s.merge(l, batch)
	if err != nil {
		return err
	}
	result.Duplicates = len(batch) - len(fresh)
	result.Appended = fresh

	slog.Info("New transactions to append",
		"fetched", result.Fetched,
		"new", len(fresh),
		"duplicates", result.Duplicates,
		"failed_accounts", len(srcErrs),
	)

	if opts.DryRun {
		return srcErrs.orNil()
	}

	if err := s.file.Append(fresh); err != nil {
		result.Appended = nil
		s.recordRun(ctx, now, result, len(srcErrs), err)
		return fmt.Errorf("failed to append to ledger: %w", err)
	}

	s.record(ctx, fresh)
	if len(srcErrs) == 0 && !opts.KeepLastSync && s.history != nil {
		if err := s.history.SetLastSync(ctx, now); err != nil {
			slog.Error("Failed to store last sync time", "error", err)
		}
	}
	s.recordRun(ctx, now, result, len(srcErrs), srcErrs.orNil())

	return srcErrs.orNil()
}

func (s *Syncer) lastSync(ctx context.Context) (time.Time, bool, error) {
	if s.history == nil {
		return time.Time{}, false, nil
	}
	t, ok, err := s.history.LastSync(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last sync time: %w", err)
	}
	return t, ok, nil
}

// fetch reads every account's statement and turns it into rule-transformed
// transactions. The outer error is fatal; per-account failures are
// collected.
func (s *Syncer) fetch(ctx context.Context, src Source, days int) ([][]ledger.Transaction, SourceErrors, error) {
	accounts, err := src.Accounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var (
		perAccount [][]ledger.Transaction
		srcErrs    SourceErrors
	)
	for _, account := range accounts {
		txns, err := s.fetchAccount(ctx, src, account, days)
		if err != nil {
			var se *SourceError
			if !errors.As(err, &se) {
				se = &SourceError{Account: account, Op: "fetch", Err: err}
			}
			slog.Error("Failed to fetch account", "account", account.String(), "error", se.Err)
			srcErrs = append(srcErrs, se)
			continue
		}
		perAccount = append(perAccount, txns)
	}
	return perAccount, srcErrs, nil
}

func (s *Syncer) fetchAccount(ctx context.Context, src Source, account statement.Account, days int) ([]ledger.Transaction, error) {
	name, err := src.DisplayName(ctx, account)
	if err != nil {
		return nil, &SourceError{Account: account, Op: "resolve display name", Err: err}
	}

	st, err := src.Statement(ctx, account, days)
	if err != nil {
		return nil, &SourceError{Account: account, Op: "fetch statement", Err: err}
	}
	slog.Debug("Fetched statement", "account", account.String(), "name", name, "transactions", len(st.Transactions))

	as := statement.AccountStatement{Account: account, Name: name, Statement: st}
	return s.rules.ApplyAll(as.Transactions()), nil
}

// merge resolves null accounts, validates, and returns the transactions of
// batch that l does not already contain, adding them to l as it goes so that
// repeats inside batch are dropped too.
func (s *Syncer) merge(l *ledger.Ledger, batch []ledger.Transaction) ([]ledger.Transaction, error) {
	var fresh []ledger.Transaction
	for _, t := range batch {
		if l.ContainsTransaction(t) {
			continue
		}
		t = s.resolveAccounts(t)
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("invalid transaction %s %q: %w", t.DateString(), t.Payee, err)
		}
		l.Append(t)
		fresh = append(fresh, t)
	}
	return fresh, nil
}

func (s *Syncer) resolveAccounts(t ledger.Transaction) ledger.Transaction {
	for i := range t.Postings {
		if t.Postings[i].Account == "" {
			t.Postings[i].Account = s.config.DefaultAccount
		}
	}
	return t
}

func (s *Syncer) record(ctx context.Context, txns []ledger.Transaction) {
	if s.history == nil || len(txns) == 0 {
		return
	}

	records := make([]db.SyncRecord, 0, len(txns))
	for _, t := range txns {
		if rec, ok := HistoryRecord(t, s.file.Path()); ok {
			records = append(records, rec)
		}
	}

	if err := s.history.RecordBatch(ctx, records); err != nil {
		slog.Error("Failed to record sync history", "error", err)
	}
}

// HistoryRecord describes t as it is kept in the sync history: keyed by the
// id of its first posting, or of the transaction itself. Transactions
// without an id are not kept.
func HistoryRecord(t ledger.Transaction, ledgerFile string) (db.SyncRecord, bool) {
	if len(t.Postings) == 0 {
		return db.SyncRecord{}, false
	}
	p := t.Postings[0]
	id := p.ID()
	if id == "" {
		id = t.ID()
	}
	if id == "" {
		return db.SyncRecord{}, false
	}

	amount := ""
	if p.Amount != nil {
		amount = ledger.FormatDecimal(*p.Amount)
	}
	return db.SyncRecord{
		TransactionID: id,
		Account:       p.Account,
		Date:          t.Date.Format(time.DateOnly),
		Amount:        amount,
		LedgerFile:    ledgerFile,
	}, true
}

func (s *Syncer) recordRun(ctx context.Context, now time.Time, result *Result, failed int, runErr error) {
	if s.history == nil {
		return
	}
	run := db.RunRecord{
		StartedAt:      now,
		WindowDays:     result.WindowDays,
		Fetched:        result.Fetched,
		Appended:       len(result.Appended),
		FailedAccounts: failed,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.history.RecordRun(ctx, run); err != nil {
		slog.Error("Failed to record sync run", "error", err)
	}
}

func (e SourceErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
