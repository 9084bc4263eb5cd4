package session

import (
	"fmt"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/config"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/pathutil"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/source/api"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/source/file"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/statement"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/syncer"
)

// NewSource builds the statement source named by cfg.Source.Type.
func NewSource(cfg *config.Config) (syncer.Source, error) {
	catalog, err := statement.LoadCatalog(pathutil.ExpandHome(cfg.Source.AccountsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load account catalog: %w", err)
	}

	switch cfg.Source.Type {
	case config.SourceAPI:
		return api.NewClient(api.ClientConfig{
			APIURL:       cfg.Source.APIURL,
			AccessToken:  cfg.Source.APIToken,
			ClientID:     cfg.Source.ClientID,
			ClientSecret: cfg.Source.ClientSecret,
			Timeout:      cfg.Source.Timeout,
		}, catalog), nil
	case config.SourceFile, "":
		return fileSource(catalog, cfg.Source.Files)
	default:
		return nil, fmt.Errorf("unknown statement source %q", cfg.Source.Type)
	}
}

// NewFileSource reads the given statement files, resolving accounts against
// the configured catalog.
func NewFileSource(cfg *config.Config, paths []string) (syncer.Source, error) {
	catalog, err := statement.LoadCatalog(pathutil.ExpandHome(cfg.Source.AccountsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load account catalog: %w", err)
	}
	return fileSource(catalog, paths)
}

func fileSource(catalog *statement.Catalog, paths []string) (syncer.Source, error) {
	expanded := make([]string, len(paths))
	for i, p := range paths {
		expanded[i] = pathutil.ExpandHome(p)
	}

	src, err := file.Load(expanded, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load statement files: %w", err)
	}
	return src, nil
}
