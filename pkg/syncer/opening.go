package syncer

import (
	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
)

const (
	// OpeningBalanceID tags the opening balance transaction.
	OpeningBalanceID = "Opening-Balance"
	// OpeningBalancePayee is the payee of the opening balance transaction.
	OpeningBalancePayee = "* Opening Balance"
	// OpeningBalanceAccount absorbs the sum of all opening balances.
	OpeningBalanceAccount = "equity:Opening Balances"
)

// OpeningBalance builds the entry that sets every account to the balance it
// had just before its first transaction. perAccount holds each account's
// transactions in date order, as produced by the balance propagator.
//
// The entry is dated at the earliest first transaction. Accounts with no
// transactions are skipped; if none have any, ErrNoTransactions is returned.
func OpeningBalance(perAccount [][]ledger.Transaction) (ledger.Transaction, error) {
	opening := ledger.Transaction{Payee: OpeningBalancePayee}

	for _, txns := range perAccount {
		if len(txns) == 0 || len(txns[0].Postings) == 0 {
			continue
		}
		first := txns[0]
		p := first.Postings[0]
		if p.Amount == nil || p.Balance == nil {
			continue
		}

		if opening.Date.IsZero() || first.Date.Before(opening.Date) {
			opening.Date = first.Date
		}
		opening.Postings = append(opening.Postings, ledger.Posting{
			Account: p.Account,
			Amount:  ledger.Amount(p.Balance.Sub(*p.Amount)),
		})
	}

	if len(opening.Postings) == 0 {
		return ledger.Transaction{}, ErrNoTransactions
	}

	opening.Postings = append(opening.Postings, ledger.Posting{
		Account: OpeningBalanceAccount,
		Tags:    map[string]string{ledger.IDTag: OpeningBalanceID},
	})
	return opening, nil
}
