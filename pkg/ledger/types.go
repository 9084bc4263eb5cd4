// Package ledger reads and writes the plain-text ledger format and keeps the
// identity index used to recognise transactions that were already recorded.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the date format of transaction header lines (YYYY/MM/DD).
	DateLayout = "2006/01/02"

	// Currency is the commodity symbol written in front of every amount.
	Currency = "$"

	// IDTag is the reserved tag key holding a posting's external identity.
	IDTag = "id"

	// UnassignedAccount is rendered in place of a null account.
	UnassignedAccount = "unassigned"
)

// Posting represents one account/amount leg of a transaction.
// An empty Account is a null account: the balancing leg that is resolved to a
// concrete account before the transaction is written.
type Posting struct {
	Account string
	Amount  *decimal.Decimal
	Balance *decimal.Decimal
	Comment string
	Tags    map[string]string
}

// ID returns the posting's external identity, or "" when it has none.
func (p Posting) ID() string {
	return p.Tags[IDTag]
}

// Clone returns a deep copy of the posting.
func (p Posting) Clone() Posting {
	c := p
	if p.Amount != nil {
		a := *p.Amount
		c.Amount = &a
	}
	if p.Balance != nil {
		b := *p.Balance
		c.Balance = &b
	}
	c.Tags = cloneTags(p.Tags)
	return c
}

// Transaction represents a dated economic event with two or more postings.
type Transaction struct {
	Date     time.Time
	Payee    string
	Comment  string
	Tags     map[string]string
	Postings []Posting
}

// ID returns the transaction's own external identity, or "" when it has none.
func (t Transaction) ID() string {
	return t.Tags[IDTag]
}

// DateString formats the transaction date using DateLayout.
func (t Transaction) DateString() string {
	return t.Date.Format(DateLayout)
}

// Clone returns a deep copy of the transaction.
func (t Transaction) Clone() Transaction {
	c := t
	c.Tags = cloneTags(t.Tags)
	c.Postings = make([]Posting, len(t.Postings))
	for i, p := range t.Postings {
		c.Postings[i] = p.Clone()
	}
	return c
}

// Validate checks the posting invariants: at least two postings, the
// number of postings with an account exceeds the number with an amount by
// zero or one, and a balance assertion only appears next to an amount.
func (t Transaction) Validate() error {
	if len(t.Postings) < 2 {
		return fmt.Errorf("transaction must have at least two postings, got %d", len(t.Postings))
	}

	accounts, amounts := 0, 0
	for i, p := range t.Postings {
		if p.Balance != nil && p.Amount == nil {
			return fmt.Errorf("posting %d has a balance assertion without an amount", i+1)
		}
		if p.Account != "" {
			accounts++
		}
		if p.Amount != nil {
			amounts++
		}
	}

	if amounts == 0 {
		return fmt.Errorf("transaction must have at least one amount")
	}
	if diff := accounts - amounts; diff != 0 && diff != 1 {
		return fmt.Errorf("number of accounts (%d) must equal or exceed by one the number of amounts (%d)", accounts, amounts)
	}

	return nil
}

// Amount returns a pointer to a copy of d, for filling Posting fields.
func Amount(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	c := make(map[string]string, len(tags))
	for k, v := range tags {
		c[k] = v
	}
	return c
}
