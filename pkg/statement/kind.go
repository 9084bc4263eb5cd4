package statement

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the type of a bank account. It decides where the account lives in
// the ledger's account tree.
type Kind int

const (
	Bank Kind = iota + 1
	CreditCard
	Brokerage
)

// ParseKind parses a kind name such as "bank", "credit_card" or "brokerage".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bank", "checking", "savings":
		return Bank, nil
	case "credit_card", "creditcard", "credit":
		return CreditCard, nil
	case "brokerage", "investment":
		return Brokerage, nil
	default:
		return 0, fmt.Errorf("unknown account kind %q", s)
	}
}

func (k Kind) String() string {
	switch k {
	case Bank:
		return "bank"
	case CreditCard:
		return "credit_card"
	case Brokerage:
		return "brokerage"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// AccountName places description in the account tree for this kind.
// A description that is already a full account name is kept unchanged.
func (k Kind) AccountName(description string) (string, error) {
	if strings.Contains(description, ":") {
		return description, nil
	}
	switch k {
	case Bank:
		return "assets:" + description, nil
	case CreditCard:
		return "liabilities:" + description, nil
	case Brokerage:
		return "assets:investments:" + description, nil
	default:
		return "", fmt.Errorf("unknown account kind %d for %q", int(k), description)
	}
}

// UnmarshalYAML decodes a kind from its name.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText encodes a kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind from its name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
