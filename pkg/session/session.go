// Package session ties the configured ledger, rules, sync history and
// statement source together for the CLI and the HTTP server.
//
// A Session is created cheaply with New and must be loaded once with Load
// before use; every other method fails with ErrNotLoaded until then.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/config"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/db"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/pathutil"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/rules"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/syncer"
)

// ErrNotLoaded is returned by every operation on a session that has not
// been loaded.
var ErrNotLoaded = errors.New("session not loaded")

// Session holds the loaded state for one ledger.
type Session struct {
	config *config.Config
	paths  *pathutil.PathResolver

	mu      sync.Mutex
	loaded  bool
	source  syncer.Source
	file    *ledger.File
	ledger  *ledger.Ledger
	rules   *rules.Rules
	conn    *db.Connection
	history *db.SyncHistory
	syncer  *syncer.Syncer
}

// New creates a session. source may be nil, in which case Load builds the
// source named by the configuration.
func New(cfg *config.Config, source syncer.Source) *Session {
	return &Session{
		config: cfg,
		paths: pathutil.New(pathutil.Config{
			LedgerFile:   cfg.Ledger.File,
			RulesFile:    cfg.Ledger.RulesFile,
			DatabasePath: cfg.Ledger.DBPath,
		}),
		source: source,
	}
}

// Load parses the rules and the ledger and opens the sync database. Calling
// it again after a successful load does nothing.
func (s *Session) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}

	r, err := rules.Load(s.paths.GetRulesFile())
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	file := ledger.NewFile(s.paths.GetLedgerFile())
	l, err := file.Load()
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	if s.source == nil {
		s.source, err = NewSource(s.config)
		if err != nil {
			return err
		}
	}

	dbPath := s.paths.GetDatabasePath()
	if err := s.paths.EnsureParentDir(dbPath); err != nil {
		return err
	}
	conn, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open sync database: %w", err)
	}

	history := db.NewSyncHistory(conn)
	s.file = file
	s.ledger = l
	s.rules = r
	s.conn = conn
	s.history = history
	s.syncer = syncer.New(file, r, history, syncer.Config{
		DefaultAccount: s.config.Ledger.DefaultAccount,
		MinInterval:    s.config.Ledger.MinInterval,
	})
	s.loaded = true

	slog.Debug("Session loaded",
		"ledger", file.Path(),
		"lock", file.LockPath(),
		"transactions", l.Len(),
		"rules", r.Len(),
		"database", dbPath,
	)
	return nil
}

// Close closes the sync database.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil
	}
	s.loaded = false
	return s.conn.Close()
}

// LedgerPath returns the ledger file path.
func (s *Session) LedgerPath() string {
	return s.paths.GetLedgerFile()
}

// Ledger returns a snapshot of the ledger as loaded plus everything this
// session has appended since.
func (s *Session) Ledger() (*ledger.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}
	return ledger.New(s.ledger.Transactions()...), nil
}

// Rules returns the loaded rules.
func (s *Session) Rules() (*rules.Rules, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}
	return s.rules, nil
}

// History returns the sync history store.
func (s *Session) History() (*db.SyncHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}
	return s.history, nil
}

// LastSync returns the time of the last successful sync.
func (s *Session) LastSync(ctx context.Context) (time.Time, bool, error) {
	history, err := s.History()
	if err != nil {
		return time.Time{}, false, err
	}
	return history.LastSync(ctx)
}

// Sync runs the sync against the session's source.
func (s *Session) Sync(ctx context.Context, now time.Time, opts syncer.Options) (*syncer.Result, error) {
	return s.SyncFrom(ctx, nil, now, opts)
}

// SyncFrom runs the sync against src, or against the session's source when
// src is nil. Transactions appended to the file are appended to the
// session's ledger too.
func (s *Session) SyncFrom(ctx context.Context, src syncer.Source, now time.Time, opts syncer.Options) (*syncer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}
	if src == nil {
		src = s.source
	}

	result, err := s.syncer.Run(ctx, src, now, opts)
	if result != nil && !opts.DryRun {
		s.ledger.Append(result.Appended...)
	}
	return result, err
}

// Format rewrites the ledger file in canonical form under the ledger lock
// and returns the number of transactions written.
func (s *Session) Format() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return 0, ErrNotLoaded
	}

	var n int
	err := s.file.WithLock(func() error {
		l, err := s.file.Load()
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}
		if err := s.file.Rewrite(l); err != nil {
			return err
		}
		s.ledger = l
		n = l.Len()
		return nil
	})
	return n, err
}
