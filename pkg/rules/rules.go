// Package rules implements the indentation-based rules language used to
// rewrite incoming transactions before they are appended to the ledger.
//
// A rules file is a sequence of directives:
//
//	if [REGEX]          match when any condition matches the transaction
//	REGEX               further conditions, one per line
//	  account1 NAME     rewrite the first posting's account
//	  account2 NAME     rewrite the second posting's account
//	  comment TEXT      set the comment; %comment expands to the old one
//
// Conditions are matched case-insensitively against the line
// DATE,"PAYEE",$,AMOUNT,BALANCE built from the transaction and its first
// posting.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
)

// CommentPlaceholder in a comment directive is replaced by the transaction's
// previous comment.
const CommentPlaceholder = "%comment"

// RuleError reports a malformed rules file.
type RuleError struct {
	Line int
	Text string
	Msg  string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rules error at line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Expr is one rule expression. Apply rewrites t in place.
type Expr interface {
	Apply(t *ledger.Transaction)
	render(b *strings.Builder, depth int)
}

// Rules is a parsed rules file.
type Rules struct {
	exprs []Expr
}

// Load parses the rules file at path. A missing file yields rules that leave
// every transaction unchanged.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Rules{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	r, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return r, nil
}

// Len returns the number of top-level expressions.
func (r *Rules) Len() int {
	return len(r.exprs)
}

// Apply runs every top-level expression, in order, on a copy of t and
// returns the result. t itself is not modified.
func (r *Rules) Apply(t ledger.Transaction) ledger.Transaction {
	out := t.Clone()
	for _, e := range r.exprs {
		e.Apply(&out)
	}
	return out
}

// ApplyAll applies the rules to each transaction.
func (r *Rules) ApplyAll(txns []ledger.Transaction) []ledger.Transaction {
	out := make([]ledger.Transaction, len(txns))
	for i, t := range txns {
		out[i] = r.Apply(t)
	}
	return out
}

// String renders the rules as a file that parses back to the same rules.
func (r *Rules) String() string {
	var b strings.Builder
	for _, e := range r.exprs {
		e.render(&b, 0)
	}
	return b.String()
}

// MatchRule applies Exprs when any of Conditions matches.
type MatchRule struct {
	Conditions []*regexp.Regexp
	patterns   []string
	Exprs      []Expr
}

// Matches reports whether any condition matches t.
func (m *MatchRule) Matches(t ledger.Transaction) bool {
	text := MatchText(t)
	for _, c := range m.Conditions {
		if c.MatchString(text) {
			return true
		}
	}
	return false
}

func (m *MatchRule) Apply(t *ledger.Transaction) {
	if !m.Matches(*t) {
		return
	}
	for _, e := range m.Exprs {
		e.Apply(t)
	}
}

func (m *MatchRule) render(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent + "if\n")
	for _, p := range m.patterns {
		b.WriteString(indent + p + "\n")
	}
	for _, e := range m.Exprs {
		e.render(b, depth+1)
	}
}

// AccountRule sets the account of the posting at index Posting.
type AccountRule struct {
	Posting int
	Account string
}

func (a *AccountRule) Apply(t *ledger.Transaction) {
	if a.Posting < len(t.Postings) {
		t.Postings[a.Posting].Account = a.Account
	}
}

func (a *AccountRule) render(b *strings.Builder, depth int) {
	fmt.Fprintf(b, "%saccount%d %s\n", strings.Repeat("  ", depth), a.Posting+1, a.Account)
}

// CommentRule replaces the transaction comment.
type CommentRule struct {
	Text string
}

func (c *CommentRule) Apply(t *ledger.Transaction) {
	t.Comment = strings.ReplaceAll(c.Text, CommentPlaceholder, t.Comment)
}

func (c *CommentRule) render(b *strings.Builder, depth int) {
	fmt.Fprintf(b, "%scomment %s\n", strings.Repeat("  ", depth), c.Text)
}

// MatchText builds the line conditions are matched against.
func MatchText(t ledger.Transaction) string {
	amount, balance := "", ""
	if len(t.Postings) > 0 {
		if p := t.Postings[0]; p.Amount != nil {
			amount = ledger.FormatDecimal(*p.Amount)
		}
		if p := t.Postings[0]; p.Balance != nil {
			balance = ledger.FormatDecimal(*p.Balance)
		}
	}
	payee := `"` + strings.ReplaceAll(t.Payee, `"`, `\"`) + `"`
	return strings.Join([]string{t.DateString(), payee, ledger.Currency, amount, balance}, ",")
}
