// Package api provides a client for a JSON statement API and adapts it to
// the syncer's statement source.
package api

import (
	"github.com/shopspring/decimal"
)

// Account represents an account in the statement API.
type Account struct {
	InstitutionID string `json:"institution_id"`
	Institution   string `json:"institution"`
	ID            string `json:"id"`
	Kind          string `json:"kind,omitempty"` // bank, credit_card or brokerage
	Description   string `json:"description,omitempty"`
}

// Transaction represents a raw transaction in the statement API.
type Transaction struct {
	ID     string          `json:"id"`
	Date   string          `json:"date"` // YYYY-MM-DD
	Payee  string          `json:"payee"`
	Amount decimal.Decimal `json:"amount"`
}

// AccountsResponse represents the response from /api/1/accounts endpoint.
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// StatementResponse represents one page of the statement endpoint. Every page
// carries the same balance.
type StatementResponse struct {
	Balance      decimal.Decimal `json:"balance"`
	BalanceDate  string          `json:"balance_date"` // YYYY-MM-DD
	Transactions []Transaction   `json:"transactions"`
}

// ErrorResponse represents an error response from the statement API.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
