// Package file reads bank statements exported as YAML files.
//
// A statement file holds one institution and any number of its accounts:
//
//	institution_id: "1001"
//	institution: First Bank
//	accounts:
//	  - id: "42"
//	    kind: bank
//	    description: Checking
//	    balance: "500.00"
//	    balance_date: 2024-01-10
//	    transactions:
//	      - id: t1
//	        date: 2024-01-02
//	        payee: Grocer
//	        amount: "-30.00"
package file

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/statement"
)

// DateLayout is the layout of dates in statement files.
const DateLayout = time.DateOnly

// Amount is a decimal read from a YAML scalar without going through float64.
type Amount struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q: %w", node.Line, node.Value, err)
	}
	a.Decimal = d
	return nil
}

// Date is a calendar date read from a YAML scalar.
type Date struct {
	time.Time
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	t, err := time.Parse(DateLayout, node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid date %q: %w", node.Line, node.Value, err)
	}
	d.Time = t
	return nil
}

// Document is the content of one statement file.
type Document struct {
	InstitutionID string            `yaml:"institution_id"`
	Institution   string            `yaml:"institution"`
	Accounts      []AccountDocument `yaml:"accounts"`
}

// AccountDocument is one account's statement.
type AccountDocument struct {
	ID           string                `yaml:"id"`
	Kind         statement.Kind        `yaml:"kind"`
	Description  string                `yaml:"description"`
	Balance      Amount                `yaml:"balance"`
	BalanceDate  Date                  `yaml:"balance_date"`
	Transactions []TransactionDocument `yaml:"transactions"`
}

// TransactionDocument is one raw transaction.
type TransactionDocument struct {
	ID     string `yaml:"id"`
	Date   Date   `yaml:"date"`
	Payee  string `yaml:"payee"`
	Amount Amount `yaml:"amount"`
}

// Parse decodes a statement file.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse statement YAML: %w", err)
	}

	if doc.InstitutionID == "" {
		return nil, fmt.Errorf("statement has no institution_id")
	}
	for i, a := range doc.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account %d has no id", i+1)
		}
		if a.BalanceDate.IsZero() {
			return nil, fmt.Errorf("account %s has no balance_date", a.ID)
		}
		for j, t := range a.Transactions {
			if t.ID == "" {
				return nil, fmt.Errorf("account %s: transaction %d has no id", a.ID, j+1)
			}
			if t.Date.IsZero() {
				return nil, fmt.Errorf("account %s: transaction %s has no date", a.ID, t.ID)
			}
		}
	}

	return &doc, nil
}

// Source serves the statements of a set of files.
type Source struct {
	catalog    *statement.Catalog
	accounts   []statement.Account
	statements map[string]statement.Statement
}

// Load reads every statement file in paths. catalog may be nil.
func Load(paths []string, catalog *statement.Catalog) (*Source, error) {
	if catalog == nil {
		catalog = statement.NewCatalog(nil)
	}
	s := &Source{
		catalog:    catalog,
		statements: make(map[string]statement.Statement),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read statement file: %w", err)
		}
		doc, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := s.Add(doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return s, nil
}

// Add adds the accounts of doc. An account may appear in only one document.
func (s *Source) Add(doc *Document) error {
	for _, a := range doc.Accounts {
		account := statement.Account{
			InstitutionID: doc.InstitutionID,
			Institution:   doc.Institution,
			ID:            a.ID,
			Kind:          a.Kind,
			Description:   a.Description,
		}
		key := account.String()
		if _, ok := s.statements[key]; ok {
			return fmt.Errorf("account %s appears more than once", key)
		}

		st := statement.Statement{
			Balance:      a.Balance.Decimal,
			BalanceDate:  a.BalanceDate.Time,
			Transactions: make([]statement.RawTransaction, len(a.Transactions)),
		}
		for i, t := range a.Transactions {
			st.Transactions[i] = statement.RawTransaction{
				ID:     t.ID,
				Date:   t.Date.Time,
				Payee:  t.Payee,
				Amount: t.Amount.Decimal,
			}
		}

		s.accounts = append(s.accounts, account)
		s.statements[key] = st
	}
	return nil
}

// Accounts returns the accounts in file order.
func (s *Source) Accounts(ctx context.Context) ([]statement.Account, error) {
	return s.accounts, nil
}

// Statement returns the account's statement. Files are exported for a fixed
// period, so days is not used.
func (s *Source) Statement(ctx context.Context, account statement.Account, days int) (statement.Statement, error) {
	st, ok := s.statements[account.String()]
	if !ok {
		return statement.Statement{}, fmt.Errorf("no statement for account %s", account)
	}
	return st, nil
}

// DisplayName names the account, filling missing details from the catalog.
func (s *Source) DisplayName(ctx context.Context, account statement.Account) (string, error) {
	return s.catalog.DisplayName(account)
}
