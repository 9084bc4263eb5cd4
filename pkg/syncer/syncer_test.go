package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/db"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/rules"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/statement"
)

type fakeSource struct {
	accounts   []statement.Account
	statements map[string]statement.Statement
	errs       map[string]error
	calls      int
	days       []int
}

func (f *fakeSource) Accounts(ctx context.Context) ([]statement.Account, error) {
	f.calls++
	return f.accounts, nil
}

func (f *fakeSource) Statement(ctx context.Context, account statement.Account, days int) (statement.Statement, error) {
	f.days = append(f.days, days)
	if err := f.errs[account.ID]; err != nil {
		return statement.Statement{}, err
	}
	return f.statements[account.ID], nil
}

func (f *fakeSource) DisplayName(ctx context.Context, account statement.Account) (string, error) {
	return statement.DisplayName(account)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	checking = statement.Account{InstitutionID: "1001", Institution: "First Bank", ID: "42", Kind: statement.Bank, Description: "Checking"}
	card     = statement.Account{InstitutionID: "2002", Institution: "Card Co", ID: "7", Kind: statement.CreditCard, Description: "Visa"}

	checkingStatement = statement.Statement{
		Balance:     dec("500.00"),
		BalanceDate: date(2024, 1, 10),
		Transactions: []statement.RawTransaction{
			{ID: "t1", Date: date(2024, 1, 2), Payee: "Grocer", Amount: dec("-30.00")},
			{ID: "t2", Date: date(2024, 1, 8), Payee: "Coffee", Amount: dec("-4.50")},
		},
	}
	cardStatement = statement.Statement{
		Balance:     dec("-80.00"),
		BalanceDate: date(2024, 1, 10),
		Transactions: []statement.RawTransaction{
			{ID: "c1", Date: date(2024, 1, 5), Payee: "Bookstore", Amount: dec("-80.00")},
		},
	}

	syncTime = time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
)

func newSource() *fakeSource {
	return &fakeSource{
		accounts: []statement.Account{checking},
		statements: map[string]statement.Statement{
			checking.ID: checkingStatement,
			card.ID:     cardStatement,
		},
	}
}

type fixture struct {
	path    string
	file    *ledger.File
	history *db.SyncHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	conn, err := db.Open(filepath.Join(dir, ".sync", "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	path := filepath.Join(dir, "main.journal")
	return &fixture{path: path, file: ledger.NewFile(path), history: db.NewSyncHistory(conn)}
}

func (f *fixture) syncer(r *rules.Rules, config Config) *Syncer {
	return New(f.file, r, f.history, config)
}

func (f *fixture) load(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Load(f.path)
	require.NoError(t, err)
	return l
}

func TestRunAppendsPropagatedTransactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := newSource()

	r, err := rules.Parse("if Grocer\n  account2 expenses:food\n")
	require.NoError(t, err)

	res, err := f.syncer(r, Config{DefaultAccount: "expenses:uncategorized"}).Run(ctx, src, syncTime, Options{})
	require.NoError(t, err)

	assert.Equal(t, MaxWindowDays, res.WindowDays)
	assert.Equal(t, []int{MaxWindowDays}, src.days)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 0, res.Duplicates)
	require.Len(t, res.Appended, 2)

	l := f.load(t)
	require.Equal(t, 2, l.Len())
	assert.True(t, l.Contains("1001-42-t1"))
	assert.True(t, l.Contains("1001-42-t2"))

	txns := l.Transactions()
	assert.Equal(t, "Grocer", txns[0].Payee)
	assert.Equal(t, "assets:Checking", txns[0].Postings[0].Account)
	assert.Equal(t, "504.50", ledger.FormatDecimal(*txns[0].Postings[0].Balance))
	assert.Equal(t, "expenses:food", txns[0].Postings[1].Account)
	assert.Equal(t, "30.00", ledger.FormatDecimal(*txns[0].Postings[1].Amount))
	assert.Equal(t, "500.00", ledger.FormatDecimal(*txns[1].Postings[0].Balance))
	assert.Equal(t, "expenses:uncategorized", txns[1].Postings[1].Account)

	last, ok, err := f.history.LastSync(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(syncTime))

	rec, err := f.history.GetSyncRecord(ctx, "1001-42-t1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "assets:Checking", rec.Account)
	assert.Equal(t, "-30.00", rec.Amount)
	assert.Equal(t, "2024-01-02", rec.Date)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.syncer(nil, Config{})

	_, err := s.Run(ctx, newSource(), syncTime, Options{})
	require.NoError(t, err)
	before, err := os.ReadFile(f.path)
	require.NoError(t, err)

	res, err := s.Run(ctx, newSource(), syncTime.Add(time.Hour), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Appended)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 1, res.WindowDays)

	after, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRunResolvesNullAccountsToUnassigned(t *testing.T) {
	f := newFixture(t)

	_, err := f.syncer(nil, Config{}).Run(context.Background(), newSource(), syncTime, Options{})
	require.NoError(t, err)

	txns := f.load(t).Transactions()
	require.Len(t, txns, 2)
	assert.Equal(t, ledger.UnassignedAccount, txns[0].Postings[1].Account)
}

func TestRunPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := newSource()
	src.accounts = []statement.Account{checking, card}
	src.errs = map[string]error{card.ID: errors.New("connection reset")}

	res, err := f.syncer(nil, Config{}).Run(ctx, src, syncTime, Options{})
	require.Error(t, err)

	var srcErrs SourceErrors
	require.True(t, errors.As(err, &srcErrs))
	require.Len(t, srcErrs, 1)
	assert.Equal(t, card, srcErrs[0].Account)

	var srcErr *SourceError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, "fetch statement", srcErr.Op)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Len(t, res.Appended, 2)
	assert.Equal(t, 2, f.load(t).Len())

	_, ok, err := f.history.LastSync(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "last sync must not advance when an account failed")

	stats, err := f.history.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailedRuns)
}

func TestRunSkipsWithinMinInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.syncer(nil, Config{MinInterval: time.Hour})

	_, err := s.Run(ctx, newSource(), syncTime, Options{})
	require.NoError(t, err)

	src := newSource()
	res, err := s.Run(ctx, src, syncTime.Add(10*time.Minute), Options{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, src.calls)

	res, err = s.Run(ctx, src, syncTime.Add(10*time.Minute), Options{IgnoreInterval: true})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, src.calls)
}

func TestRunClockSkewHaltsBeforeFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.history.SetLastSync(ctx, syncTime.Add(2*time.Hour)))

	src := newSource()
	_, err := f.syncer(nil, Config{}).Run(ctx, src, syncTime, Options{})

	var skew *ClockSkewError
	require.True(t, errors.As(err, &skew))
	assert.Equal(t, -2*time.Hour, skew.Delta())
	assert.Equal(t, 0, src.calls)

	_, statErr := os.Stat(f.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunDryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.syncer(nil, Config{}).Run(ctx, newSource(), syncTime, Options{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, res.Appended, 2)

	_, statErr := os.Stat(f.path)
	assert.True(t, os.IsNotExist(statErr))

	_, ok, err := f.history.LastSync(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunOpeningBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.syncer(nil, Config{})
	src := newSource()
	src.accounts = []statement.Account{checking, card}

	res, err := s.Run(ctx, src, syncTime, Options{OpeningBalances: true})
	require.NoError(t, err)
	require.Len(t, res.Appended, 4)

	opening := res.Appended[0]
	assert.Equal(t, OpeningBalancePayee, opening.Payee)
	assert.Equal(t, date(2024, 1, 2), opening.Date)
	require.Len(t, opening.Postings, 3)
	assert.Equal(t, "assets:Checking", opening.Postings[0].Account)
	assert.Equal(t, "534.50", ledger.FormatDecimal(*opening.Postings[0].Amount))
	assert.Equal(t, "liabilities:Visa", opening.Postings[1].Account)
	assert.Equal(t, "0.00", ledger.FormatDecimal(*opening.Postings[1].Amount))
	assert.Equal(t, OpeningBalanceAccount, opening.Postings[2].Account)
	assert.Nil(t, opening.Postings[2].Amount)
	assert.Equal(t, OpeningBalanceID, opening.Postings[2].ID())

	before, err := os.ReadFile(f.path)
	require.NoError(t, err)

	_, err = s.Run(ctx, src, syncTime.Add(time.Hour), Options{OpeningBalances: true})
	var dup *DuplicateOpeningBalanceError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, OpeningBalanceID, dup.ID)

	after, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRunOpeningBalancesWithoutTransactions(t *testing.T) {
	f := newFixture(t)
	src := newSource()
	src.statements[checking.ID] = statement.Statement{Balance: dec("10.00"), BalanceDate: date(2024, 1, 10)}

	_, err := f.syncer(nil, Config{}).Run(context.Background(), src, syncTime, Options{OpeningBalances: true})
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestRunSort(t *testing.T) {
	tests := []struct {
		name     string
		sort     bool
		expected []string
	}{
		{"account order", false, []string{"Grocer", "Coffee", "Bookstore"}},
		{"date order", true, []string{"Grocer", "Bookstore", "Coffee"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			src := newSource()
			src.accounts = []statement.Account{checking, card}

			res, err := f.syncer(nil, Config{}).Run(context.Background(), src, syncTime, Options{Sort: tt.sort, DryRun: true})
			require.NoError(t, err)

			var payees []string
			for _, txn := range res.Appended {
				payees = append(payees, txn.Payee)
			}
			assert.Equal(t, tt.expected, payees)
		})
	}
}

func TestRunWindowFollowsLedger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.path, []byte("2024/01/09 Earlier\n    assets:Checking  $ 1.00\n    income:misc  \n"), 0644))

	src := newSource()
	res, err := f.syncer(nil, Config{}).Run(context.Background(), src, syncTime, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.WindowDays)
	assert.Equal(t, []int{3}, src.days)
}

func TestRunKeepLastSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	previous := syncTime.Add(-20 * 24 * time.Hour)
	require.NoError(t, f.history.SetLastSync(ctx, previous))

	s := f.syncer(nil, Config{MinInterval: time.Hour})
	res, err := s.Run(ctx, newSource(), syncTime, Options{IgnoreInterval: true, KeepLastSync: true})
	require.NoError(t, err)
	assert.Len(t, res.Appended, 2)

	last, ok, err := f.history.LastSync(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(previous), "last sync moved to %s", last)

	src := newSource()
	res, err = s.Run(ctx, src, syncTime.Add(time.Hour), Options{})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 21, res.WindowDays)
	assert.Equal(t, []int{21}, src.days)
}
