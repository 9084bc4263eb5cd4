package ledger

import (
	"sort"
	"strings"
	"time"
)

// Ledger is an ordered collection of transactions together with the set of
// every id tag found on them or their postings.
type Ledger struct {
	transactions []Transaction
	ids          map[string]struct{}
}

// New creates a ledger holding txns in the given order.
func New(txns ...Transaction) *Ledger {
	l := &Ledger{ids: make(map[string]struct{})}
	l.Append(txns...)
	return l
}

// Append adds transactions to the in-memory ledger and indexes their ids.
// It never touches storage; see File.Append.
func (l *Ledger) Append(txns ...Transaction) {
	for _, t := range txns {
		l.transactions = append(l.transactions, t)
		l.index(t)
	}
}

func (l *Ledger) index(t Transaction) {
	if id := t.ID(); id != "" {
		l.ids[id] = struct{}{}
	}
	for _, p := range t.Postings {
		if id := p.ID(); id != "" {
			l.ids[id] = struct{}{}
		}
	}
}

// Contains reports whether id is in the identity index.
func (l *Ledger) Contains(id string) bool {
	if id == "" {
		return false
	}
	_, ok := l.ids[id]
	return ok
}

// ContainsTransaction reports whether the transaction's own id or any of its
// posting ids is already recorded.
func (l *Ledger) ContainsTransaction(t Transaction) bool {
	if l.Contains(t.ID()) {
		return true
	}
	for _, p := range t.Postings {
		if l.ContainsPosting(p) {
			return true
		}
	}
	return false
}

// ContainsPosting reports whether the posting's id is already recorded.
func (l *Ledger) ContainsPosting(p Posting) bool {
	return l.Contains(p.ID())
}

// Transactions returns the transactions in ledger order.
func (l *Ledger) Transactions() []Transaction {
	out := make([]Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// Len returns the number of transactions.
func (l *Ledger) Len() int {
	return len(l.transactions)
}

// IDs returns the number of indexed identities.
func (l *Ledger) IDs() int {
	return len(l.ids)
}

// LatestDate returns the most recent transaction date, and false for an
// empty ledger.
func (l *Ledger) LatestDate() (time.Time, bool) {
	var latest time.Time
	for _, t := range l.transactions {
		if t.Date.After(latest) {
			latest = t.Date
		}
	}
	return latest, len(l.transactions) > 0
}

// String renders every transaction, separated by a blank line.
func (l *Ledger) String() string {
	return Render(l.transactions)
}

// Render renders txns the way a ledger file stores them.
func Render(txns []Transaction) string {
	parts := make([]string, len(txns))
	for i, t := range txns {
		parts[i] = t.String()
	}
	return strings.Join(parts, "\n")
}

// SortByDate orders txns by date, keeping the input order of equal dates.
func SortByDate(txns []Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.Before(txns[j].Date)
	})
}
