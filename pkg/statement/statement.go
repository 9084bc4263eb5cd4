// Package statement turns raw bank statements into ledger transactions with
// running balance assertions.
package statement

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
)

// Account identifies one account at one institution.
type Account struct {
	InstitutionID string
	Institution   string
	ID            string
	Kind          Kind
	Description   string
}

// String returns a short identity for log and error messages.
func (a Account) String() string {
	return a.InstitutionID + "-" + a.ID
}

// RawTransaction is a transaction as reported by the statement source.
type RawTransaction struct {
	ID     string
	Date   time.Time
	Payee  string
	Amount decimal.Decimal
}

// Statement is a set of raw transactions plus the balance the institution
// declares as of BalanceDate.
type Statement struct {
	Transactions []RawTransaction
	Balance      decimal.Decimal
	BalanceDate  time.Time
}

// AccountStatement pairs a statement with the account it belongs to and the
// ledger account name its postings are booked to.
type AccountStatement struct {
	Account   Account
	Name      string
	Statement Statement
}

var idReplacer = strings.NewReplacer(",", "_", ":", "_")

// TransactionID derives the stable identity of a raw transaction.
func TransactionID(account Account, rawID string) string {
	return idReplacer.Replace(strings.Join([]string{account.InstitutionID, account.ID, rawID}, "-"))
}

// Transactions converts the statement into ledger transactions ordered by
// date, each carrying the account balance right after it posted.
//
// Transactions dated on or before the balance date are walked backwards from
// the declared balance, so the latest of them carries exactly that balance.
// Later transactions are walked forwards, adding their amounts.
func (s AccountStatement) Transactions() []ledger.Transaction {
	balanceDay := day(s.Statement.BalanceDate)

	var before, after []RawTransaction
	for _, raw := range s.Statement.Transactions {
		if day(raw.Date).After(balanceDay) {
			after = append(after, raw)
		} else {
			before = append(before, raw)
		}
	}

	byDate := func(txns []RawTransaction) func(i, j int) bool {
		return func(i, j int) bool {
			return day(txns[i].Date).Before(day(txns[j].Date))
		}
	}
	sort.SliceStable(before, byDate(before))
	sort.SliceStable(after, byDate(after))

	// Newest first; transactions sharing a date keep their statement order
	// once the result is reversed back.
	slices.Reverse(before)
	backward := s.fold(before, s.Statement.Balance, walkBackward)
	slices.Reverse(backward)
	forward := s.fold(after, s.Statement.Balance, walkForward)

	return append(backward, forward...)
}

// step returns the balance to assert on a transaction and the balance to
// carry to the next one.
type step func(balance, amount decimal.Decimal) (assigned, next decimal.Decimal)

func walkBackward(balance, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return balance, balance.Sub(amount)
}

func walkForward(balance, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	next := balance.Add(amount)
	return next, next
}

func (s AccountStatement) fold(raws []RawTransaction, start decimal.Decimal, next step) []ledger.Transaction {
	out := make([]ledger.Transaction, 0, len(raws))
	balance := start
	for _, raw := range raws {
		var assigned decimal.Decimal
		assigned, balance = next(balance, raw.Amount)
		out = append(out, s.transaction(raw, assigned))
	}
	return out
}

func (s AccountStatement) transaction(raw RawTransaction, balance decimal.Decimal) ledger.Transaction {
	return ledger.Transaction{
		Date:  day(raw.Date),
		Payee: raw.Payee,
		Postings: []ledger.Posting{
			{
				Account: s.Name,
				Amount:  ledger.Amount(raw.Amount),
				Balance: ledger.Amount(balance),
				Tags:    map[string]string{ledger.IDTag: TransactionID(s.Account, raw.ID)},
			},
			{
				Amount: ledger.Amount(raw.Amount.Neg()),
			},
		},
	}
}

// DisplayName returns the ledger account name for account, using its
// description or, failing that, its institution and number.
func DisplayName(account Account) (string, error) {
	desc := account.Description
	if desc == "" {
		desc = strings.TrimSpace(fmt.Sprintf("%s %s", account.Institution, account.ID))
	}
	kind := account.Kind
	if kind == 0 {
		kind = Bank
	}
	return kind.AccountName(desc)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
