package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatError reports malformed ledger text.
type FormatError struct {
	Line int
	Text string
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("ledger format error: %s: %q", e.Msg, e.Text)
	}
	return fmt.Sprintf("ledger format error at line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Load parses the ledger file at path.
// A missing file yields an empty ledger.
func Load(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return l, nil
}

// Parse reads a whole ledger. It either returns every transaction in r or an
// error; nothing is returned for a partially valid input.
func Parse(r io.Reader) (*Ledger, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		txns   []Transaction
		cur    *Transaction
		header string
		start  int
		lineNo int
	)

	finish := func() error {
		if cur == nil {
			return nil
		}
		if err := cur.Validate(); err != nil {
			return &FormatError{Line: start, Text: header, Msg: err.Error()}
		}
		txns = append(txns, *cur)
		cur = nil
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "" {
			if err := finish(); err != nil {
				return nil, err
			}
			continue
		}

		if isIndented(line) {
			if cur == nil {
				return nil, &FormatError{Line: lineNo, Text: line, Msg: "posting outside of a transaction"}
			}
			p, err := ParsePosting(strings.TrimLeft(line, " \t"))
			if err != nil {
				return nil, withLine(err, lineNo, line)
			}
			cur.Postings = append(cur.Postings, p)
			continue
		}

		if err := finish(); err != nil {
			return nil, err
		}
		t, err := parseHeader(line)
		if err != nil {
			return nil, withLine(err, lineNo, line)
		}
		cur, header, start = &t, line, lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}

	return New(txns...), nil
}

// ParsePosting parses a single posting line without its leading indentation:
//
//	ACCOUNT  AMOUNT[ = BALANCE][  ; COMMENT[ key: value, ...]]
func ParsePosting(line string) (Posting, error) {
	account, rest, ok := strings.Cut(line, "  ")
	if !ok || strings.TrimSpace(account) == "" {
		return Posting{}, &FormatError{Text: line, Msg: "account must be separated from amount by two or more spaces"}
	}

	amountPart, comment, hasComment := strings.Cut(rest, ";")
	amountPart = strings.TrimSpace(amountPart)

	p := Posting{Account: account}

	balancePart := ""
	hasBalance := false
	if before, after, found := strings.Cut(amountPart, "="); found {
		amountPart, balancePart, hasBalance = strings.TrimSpace(before), strings.TrimSpace(after), true
		if amountPart == "" {
			return Posting{}, &FormatError{Text: line, Msg: "balance assertion without an amount"}
		}
	}

	if amountPart != "" {
		amt, err := ParseAmount(amountPart)
		if err != nil {
			return Posting{}, &FormatError{Text: line, Msg: fmt.Sprintf("invalid amount: %v", err)}
		}
		p.Amount = &amt
	}
	if hasBalance {
		bal, err := ParseAmount(balancePart)
		if err != nil {
			return Posting{}, &FormatError{Text: line, Msg: fmt.Sprintf("invalid balance: %v", err)}
		}
		p.Balance = &bal
	}

	if hasComment {
		c, tags, err := splitComment(comment)
		if err != nil {
			return Posting{}, &FormatError{Text: line, Msg: err.Error()}
		}
		p.Comment, p.Tags = c, tags
	}

	return p, nil
}

// ParseAmount parses an amount such as "$ 1,234.50" into an exact decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimLeft(s, Currency+" \t")
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}

func parseHeader(line string) (Transaction, error) {
	trimmed := strings.TrimSpace(line)
	cut := strings.IndexAny(trimmed, " \t")
	if cut < 0 || strings.TrimSpace(trimmed[cut:]) == "" {
		return Transaction{}, &FormatError{Text: line, Msg: "header must have a date and a payee"}
	}

	dateText, rest := trimmed[:cut], trimmed[cut:]
	date, err := time.Parse(DateLayout, dateText)
	if err != nil {
		return Transaction{}, &FormatError{Text: line, Msg: fmt.Sprintf("invalid date %q, expected YYYY/MM/DD", dateText)}
	}

	t := Transaction{Date: date}
	payee, comment, hasComment := strings.Cut(rest, ";")
	t.Payee = strings.TrimSpace(payee)
	if hasComment {
		c, tags, err := splitComment(comment)
		if err != nil {
			return Transaction{}, &FormatError{Text: line, Msg: err.Error()}
		}
		t.Comment, t.Tags = c, tags
	}
	return t, nil
}

// splitComment separates the plain comment from trailing "key: value" tags.
// The tags start after the last space preceding the first colon.
func splitComment(s string) (string, map[string]string, error) {
	s = strings.TrimSpace(s)
	colon := strings.Index(s, ":")
	if colon < 0 {
		return s, nil, nil
	}

	comment, tagPart := "", s
	if sp := strings.LastIndex(s[:colon], " "); sp >= 0 {
		comment, tagPart = strings.TrimSpace(s[:sp]), s[sp+1:]
	}

	tags := make(map[string]string)
	for _, tok := range strings.Split(tagPart, ",") {
		key, value, ok := strings.Cut(tok, ":")
		if !ok {
			return "", nil, fmt.Errorf("invalid tag %q: missing colon", strings.TrimSpace(tok))
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, " \t") {
			return "", nil, fmt.Errorf("invalid tag key %q", key)
		}
		tags[key] = strings.TrimSpace(value)
	}
	return comment, tags, nil
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

func withLine(err error, lineNo int, line string) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		fe.Line, fe.Text = lineNo, line
		return fe
	}
	return &FormatError{Line: lineNo, Text: line, Msg: err.Error()}
}
