package syncer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/statement"
)

// ErrNoTransactions is returned when opening balances are requested but no
// account produced a transaction to derive them from.
var ErrNoTransactions = errors.New("no transactions found to derive opening balances from")

// ClockSkewError is returned when the sync window would start in the future.
type ClockSkewError struct {
	Now   time.Time
	Start time.Time
}

// Delta returns the (negative) distance from the window start to now.
func (e *ClockSkewError) Delta() time.Duration {
	return e.Now.Sub(e.Start)
}

func (e *ClockSkewError) Error() string {
	return fmt.Sprintf("clock skew: sync window starts at %s, %s after now (%s)",
		e.Start.Format(time.RFC3339), -e.Delta(), e.Now.Format(time.RFC3339))
}

// SourceError reports a failure to read one account from the statement
// source. It affects that account only.
type SourceError struct {
	Account statement.Account
	Op      string
	Err     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("account %s: %s: %v", e.Account, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// SourceErrors collects the per-account failures of one sync.
type SourceErrors []*SourceError

func (e SourceErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d account(s) failed: %s", len(e), strings.Join(msgs, "; "))
}

func (e SourceErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, err := range e {
		errs[i] = err
	}
	return errs
}

// DuplicateOpeningBalanceError is returned when opening balances are
// requested for a ledger that already has them.
type DuplicateOpeningBalanceError struct {
	ID string
}

func (e *DuplicateOpeningBalanceError) Error() string {
	return fmt.Sprintf("ledger already contains an opening balance entry (id %q)", e.ID)
}
