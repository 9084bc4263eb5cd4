package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type line struct {
	no     int
	indent int
	text   string
}

func (l line) split() (string, string) {
	i := strings.IndexAny(l.text, " \t")
	if i < 0 {
		return l.text, ""
	}
	return l.text[:i], strings.TrimSpace(l.text[i+1:])
}

func (l line) directive() string {
	tok, _ := l.split()
	return tok
}

func (l line) argument() string {
	_, arg := l.split()
	return arg
}

var accountDirective = regexp.MustCompile(`^account\d+$`)

func isDirective(tok string) bool {
	return tok == "if" || tok == "comment" || accountDirective.MatchString(tok)
}

type parser struct {
	lines []line
	pos   int
}

// Parse parses a rules document.
func Parse(text string) (*Rules, error) {
	p := &parser{}
	for i, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimLeft(raw, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		p.lines = append(p.lines, line{no: i + 1, indent: len(raw) - len(trimmed), text: trimmed})
	}

	exprs, err := p.block(0)
	if err != nil {
		return nil, err
	}
	return &Rules{exprs: exprs}, nil
}

func (p *parser) peek() (line, bool) {
	if p.pos >= len(p.lines) {
		return line{}, false
	}
	return p.lines[p.pos], true
}

// block parses consecutive expressions at exactly indent, stopping at the
// first line indented less.
func (p *parser) block(indent int) ([]Expr, error) {
	var exprs []Expr
	for {
		l, ok := p.peek()
		if !ok || l.indent < indent {
			return exprs, nil
		}
		if l.indent > indent {
			return nil, &RuleError{Line: l.no, Text: l.text, Msg: "unexpected indentation"}
		}
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
}

func (p *parser) expr() (Expr, error) {
	l := p.lines[p.pos]
	switch tok := l.directive(); {
	case tok == "if":
		return p.ifExpr()
	case tok == "comment":
		p.pos++
		text := l.argument()
		if text == "" {
			return nil, &RuleError{Line: l.no, Text: l.text, Msg: "comment directive must be of the form 'comment TEXT'"}
		}
		return &CommentRule{Text: text}, nil
	case accountDirective.MatchString(tok):
		p.pos++
		n, _ := strconv.Atoi(strings.TrimPrefix(tok, "account"))
		if n != 1 && n != 2 {
			return nil, &RuleError{Line: l.no, Text: l.text, Msg: fmt.Sprintf("unsupported directive %q", tok)}
		}
		name := l.argument()
		if name == "" {
			return nil, &RuleError{Line: l.no, Text: l.text, Msg: "account directive must be of the form 'accountN ACCOUNT'"}
		}
		return &AccountRule{Posting: n - 1, Account: name}, nil
	default:
		return nil, &RuleError{Line: l.no, Text: l.text, Msg: fmt.Sprintf("unsupported directive %q", tok)}
	}
}

func (p *parser) ifExpr() (Expr, error) {
	head := p.lines[p.pos]
	p.pos++

	m := &MatchRule{}
	addCondition := func(l line, pattern string) error {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return &RuleError{Line: l.no, Text: l.text, Msg: fmt.Sprintf("invalid condition: %v", err)}
		}
		m.Conditions = append(m.Conditions, re)
		m.patterns = append(m.patterns, pattern)
		return nil
	}

	if cond := head.argument(); cond != "" {
		if err := addCondition(head, cond); err != nil {
			return nil, err
		}
	}

	// Conditions written at the same indentation as the if.
	for {
		l, ok := p.peek()
		if !ok || l.indent != head.indent || isDirective(l.directive()) {
			break
		}
		if err := addCondition(l, l.text); err != nil {
			return nil, err
		}
		p.pos++
	}

	body, ok := p.peek()
	if ok && body.indent > head.indent {
		// Conditions may also open the indented body.
		for {
			l, ok := p.peek()
			if !ok || l.indent != body.indent || isDirective(l.directive()) {
				break
			}
			if err := addCondition(l, l.text); err != nil {
				return nil, err
			}
			p.pos++
		}

		exprs, err := p.block(body.indent)
		if err != nil {
			return nil, err
		}
		m.Exprs = exprs
	}

	if len(m.Conditions) == 0 {
		return nil, &RuleError{Line: head.no, Text: head.text, Msg: "if statement has no conditions"}
	}
	if len(m.Exprs) == 0 {
		return nil, &RuleError{Line: head.no, Text: head.text, Msg: "if statement has no expressions"}
	}
	return m, nil
}
