package statement

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogEntry describes one account in the catalog file.
type CatalogEntry struct {
	InstitutionID string `yaml:"institution_id"`
	Institution   string `yaml:"institution"`
	ID            string `yaml:"id"`
	Kind          Kind   `yaml:"kind"`
	Description   string `yaml:"description"`
}

// CatalogConfig represents the complete account catalog file.
type CatalogConfig struct {
	Accounts []CatalogEntry `yaml:"accounts"`
}

// Catalog maps accounts to their configured kind and description. Entries
// are keyed by institution and account number; an entry without an
// institution id matches the account number at any institution.
type Catalog struct {
	byAccount map[string]CatalogEntry
	byID      map[string]CatalogEntry
}

// LoadCatalog loads a catalog from a YAML file. A missing file yields an
// empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewCatalog(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var config CatalogConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	for i, e := range config.Accounts {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i+1)
		}
	}

	return NewCatalog(config.Accounts), nil
}

// NewCatalog builds a catalog from entries.
func NewCatalog(entries []CatalogEntry) *Catalog {
	c := &Catalog{
		byAccount: make(map[string]CatalogEntry, len(entries)),
		byID:      make(map[string]CatalogEntry, len(entries)),
	}
	for _, e := range entries {
		if e.InstitutionID != "" {
			c.byAccount[e.account().String()] = e
		}
		// Entries without an institution win the bare-id slot.
		if prev, ok := c.byID[e.ID]; !ok || (prev.InstitutionID != "" && e.InstitutionID == "") {
			c.byID[e.ID] = e
		}
	}
	return c
}

// Lookup returns the entry for account. An account with an institution id
// matches its own entry first and otherwise only an entry without an
// institution id. An account without one matches by number alone.
func (c *Catalog) Lookup(account Account) (CatalogEntry, bool) {
	if account.InstitutionID == "" {
		e, ok := c.byID[account.ID]
		return e, ok
	}
	if e, ok := c.byAccount[account.String()]; ok {
		return e, true
	}
	e, ok := c.byID[account.ID]
	if !ok || e.InstitutionID != "" {
		return CatalogEntry{}, false
	}
	return e, true
}

// Resolve fills the kind and description of account from the catalog.
// Fields already set on account win over catalog values.
func (c *Catalog) Resolve(account Account) Account {
	e, ok := c.Lookup(account)
	if !ok {
		return account
	}
	if account.Kind == 0 {
		account.Kind = e.Kind
	}
	if account.Description == "" {
		account.Description = e.Description
	}
	if account.Institution == "" {
		account.Institution = e.Institution
	}
	if account.InstitutionID == "" {
		account.InstitutionID = e.InstitutionID
	}
	return account
}

// DisplayName resolves account against the catalog and names it.
func (c *Catalog) DisplayName(account Account) (string, error) {
	return DisplayName(c.Resolve(account))
}

func (e CatalogEntry) account() Account {
	return Account{
		InstitutionID: e.InstitutionID,
		Institution:   e.Institution,
		ID:            e.ID,
		Kind:          e.Kind,
		Description:   e.Description,
	}
}
