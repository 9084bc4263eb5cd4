package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/db"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/syncer"
)

// Verification compares the sync history with the ledger file.
type Verification struct {
	// Checked is the number of ledger transactions with an id.
	Checked int
	// Missing lists ledger transactions the history has no record of.
	Missing []db.SyncRecord
	// Stale lists history records for this ledger whose transaction is no
	// longer in it.
	Stale []db.SyncRecord
	// Repaired is set when Missing were recorded and Stale deleted.
	Repaired bool
}

// OK reports whether history and ledger agree.
func (v *Verification) OK() bool {
	return len(v.Missing) == 0 && len(v.Stale) == 0
}

// VerifyHistory cross-checks the sync history against the ledger's
// identity index. The ledger is re-read under its lock. With repair set,
// missing records are added and stale ones removed.
//
// Stale records are looked up per ledger account, so records of an account
// no longer in the ledger at all are not reported.
func (s *Session) VerifyHistory(ctx context.Context, repair bool) (*Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}

	v := &Verification{}
	err := s.file.WithLock(func() error {
		l, err := s.file.Load()
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}
		s.ledger = l

		path := s.file.Path()
		ids := make(map[string]bool)
		var accounts []string
		for _, t := range l.Transactions() {
			rec, ok := syncer.HistoryRecord(t, path)
			if !ok {
				continue
			}
			v.Checked++
			ids[rec.TransactionID] = true
			if !slices.Contains(accounts, rec.Account) {
				accounts = append(accounts, rec.Account)
			}

			synced, err := s.history.IsSynced(ctx, rec.TransactionID)
			if err != nil {
				return err
			}
			if synced {
				continue
			}
			v.Missing = append(v.Missing, rec)
			if repair {
				if err := s.history.RecordSync(ctx, rec); err != nil {
					return err
				}
			}
		}

		for _, account := range accounts {
			records, err := s.history.GetSyncRecordsByAccount(ctx, account)
			if err != nil {
				return err
			}
			for _, rec := range records {
				if rec.LedgerFile != path || ids[rec.TransactionID] {
					continue
				}
				v.Stale = append(v.Stale, rec)
				if repair {
					if _, err := s.history.DeleteSyncRecord(ctx, rec.TransactionID); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	v.Repaired = repair && !v.OK()
	slog.Info("Verified sync history",
		"checked", v.Checked,
		"missing", len(v.Missing),
		"stale", len(v.Stale),
		"repaired", v.Repaired,
	)
	return v, nil
}
