package ledger

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// FormatDecimal renders d with its own scale, so 100.00 stays "100.00".
func FormatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// FormatTags renders tags as "key: value" pairs sorted by key.
func FormatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ": " + tags[k]
	}
	return strings.Join(pairs, ", ")
}

func formatComment(comment string, tags map[string]string) string {
	parts := make([]string, 0, 2)
	if comment != "" {
		parts = append(parts, comment)
	}
	if t := FormatTags(tags); t != "" {
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return ""
	}
	return "  ; " + strings.Join(parts, " ")
}

func amountField(p Posting) string {
	if p.Amount == nil {
		return ""
	}
	return Currency + " " + FormatDecimal(*p.Amount)
}

func accountName(p Posting) string {
	if p.Account == "" {
		return UnassignedAccount
	}
	return p.Account
}

// String renders the transaction: a header line followed by postings whose
// account and amount columns are aligned within this transaction.
func (t Transaction) String() string {
	var b strings.Builder

	b.WriteString(t.DateString())
	b.WriteString(" ")
	b.WriteString(t.Payee)
	b.WriteString(formatComment(t.Comment, t.Tags))
	b.WriteString("\n")

	accountWidth, amountWidth := 0, 0
	for _, p := range t.Postings {
		accountWidth = max(accountWidth, utf8.RuneCountInString(accountName(p)))
		amountWidth = max(amountWidth, utf8.RuneCountInString(amountField(p)))
	}

	for _, p := range t.Postings {
		b.WriteString("    ")
		b.WriteString(padRight(accountName(p), accountWidth))
		b.WriteString("  ")
		b.WriteString(padLeft(amountField(p), amountWidth))
		if p.Balance != nil {
			b.WriteString(" = " + Currency + " " + FormatDecimal(*p.Balance))
		}
		b.WriteString(formatComment(p.Comment, p.Tags))
		b.WriteString("\n")
	}

	return b.String()
}

func padRight(s string, width int) string {
	if n := width - utf8.RuneCountInString(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := width - utf8.RuneCountInString(s); n > 0 {
		return strings.Repeat(" ", n) + s
	}
	return s
}
