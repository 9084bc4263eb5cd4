package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/statement"
)

// DefaultPageSize is the number of transactions requested per page.
const DefaultPageSize = 100

// ClientConfig represents the configuration for the statement API client.
type ClientConfig struct {
	APIURL       string
	AccessToken  string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration // Default: 30 seconds
	PageSize     int           // Default: DefaultPageSize
}

// Client is a statement API client. It implements syncer.Source.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	catalog    *statement.Catalog

	mu       sync.Mutex
	kindErrs map[string]error // by account, from the last Accounts call
}

// NewClient creates a new statement API client. Requests are authorized with
// the client credentials grant when a client id and secret are set, and with
// the static access token otherwise. catalog may be nil.
func NewClient(config ClientConfig, catalog *statement.Catalog) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if catalog == nil {
		catalog = statement.NewCatalog(nil)
	}

	baseURL := strings.TrimRight(config.APIURL, "/")
	return &Client{
		httpClient: newHTTPClient(baseURL, config, timeout),
		baseURL:    baseURL,
		pageSize:   pageSize,
		catalog:    catalog,
	}
}

func newHTTPClient(baseURL string, config ClientConfig, timeout time.Duration) *http.Client {
	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var client *http.Client
	switch {
	case config.ClientID != "" && config.ClientSecret != "":
		cc := &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     baseURL + "/oauth/token",
		}
		client = cc.Client(ctx)
	case config.AccessToken != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.AccessToken}))
	default:
		return base
	}
	client.Timeout = timeout
	return client
}

// ListAccounts lists the accounts available to the caller.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accountsResp AccountsResponse
	if err := c.get(ctx, "/api/1/accounts", nil, &accountsResp); err != nil {
		return nil, err
	}
	return accountsResp.Accounts, nil
}

// GetStatement fetches one page of an account's statement.
func (c *Client) GetStatement(ctx context.Context, institutionID, accountID string, params map[string]string) (*StatementResponse, error) {
	endpoint := fmt.Sprintf("/api/1/accounts/%s/%s/statement", url.PathEscape(institutionID), url.PathEscape(accountID))

	queryParams := url.Values{}
	for k, v := range params {
		queryParams.Set(k, v)
	}

	var statementResp StatementResponse
	if err := c.get(ctx, endpoint, queryParams, &statementResp); err != nil {
		return nil, err
	}
	return &statementResp, nil
}

// FetchStatement fetches a whole statement covering the last days days,
// following pagination.
func (c *Client) FetchStatement(ctx context.Context, institutionID, accountID string, days int) (*StatementResponse, error) {
	var all *StatementResponse
	offset := 0

	for {
		params := map[string]string{
			"days":   strconv.Itoa(days),
			"limit":  strconv.Itoa(c.pageSize),
			"offset": strconv.Itoa(offset),
		}

		page, err := c.GetStatement(ctx, institutionID, accountID, params)
		if err != nil {
			return nil, fmt.Errorf("failed to get statement (offset=%d): %w", offset, err)
		}

		if all == nil {
			all = page
		} else {
			all.Transactions = append(all.Transactions, page.Transactions...)
		}

		if len(page.Transactions) < c.pageSize {
			break
		}

		offset += c.pageSize
	}

	return all, nil
}

// Accounts implements syncer.Source. An account with an unknown kind is
// still listed; its error is reported by DisplayName and Statement so that
// only that account fails.
func (c *Client) Accounts(ctx context.Context) ([]statement.Account, error) {
	remote, err := c.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	kindErrs := make(map[string]error)
	accounts := make([]statement.Account, len(remote))
	for i, a := range remote {
		account := statement.Account{
			InstitutionID: a.InstitutionID,
			Institution:   a.Institution,
			ID:            a.ID,
			Description:   a.Description,
		}
		if a.Kind != "" {
			kind, err := statement.ParseKind(a.Kind)
			if err != nil {
				kindErrs[account.String()] = err
			}
			account.Kind = kind
		}
		accounts[i] = account
	}

	c.mu.Lock()
	c.kindErrs = kindErrs
	c.mu.Unlock()
	return accounts, nil
}

func (c *Client) kindError(account statement.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kindErrs[account.String()]
}

// Statement implements syncer.Source.
func (c *Client) Statement(ctx context.Context, account statement.Account, days int) (statement.Statement, error) {
	if err := c.kindError(account); err != nil {
		return statement.Statement{}, err
	}
	resp, err := c.FetchStatement(ctx, account.InstitutionID, account.ID, days)
	if err != nil {
		return statement.Statement{}, err
	}

	balanceDate, err := time.Parse(time.DateOnly, resp.BalanceDate)
	if err != nil {
		return statement.Statement{}, fmt.Errorf("invalid balance_date %q: %w", resp.BalanceDate, err)
	}

	st := statement.Statement{
		Balance:      resp.Balance,
		BalanceDate:  balanceDate,
		Transactions: make([]statement.RawTransaction, len(resp.Transactions)),
	}
	for i, t := range resp.Transactions {
		date, err := time.Parse(time.DateOnly, t.Date)
		if err != nil {
			return statement.Statement{}, fmt.Errorf("transaction %s: invalid date %q: %w", t.ID, t.Date, err)
		}
		st.Transactions[i] = statement.RawTransaction{
			ID:     t.ID,
			Date:   date,
			Payee:  t.Payee,
			Amount: t.Amount,
		}
	}
	return st, nil
}

// DisplayName implements syncer.Source.
func (c *Client) DisplayName(ctx context.Context, account statement.Account) (string, error) {
	if err := c.kindError(account); err != nil {
		return "", err
	}
	return c.catalog.DisplayName(account)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseError parses an error response from the statement API.
func (c *Client) parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("statement API error (status %d): failed to read error response", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("statement API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if errResp.ErrorDescription != "" {
		return fmt.Errorf("statement API error (status %d): %s - %s", resp.StatusCode, errResp.Error, errResp.ErrorDescription)
	}

	return fmt.Errorf("statement API error (status %d): %s", resp.StatusCode, errResp.Error)
}
