package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MetadataLastSync is the metadata key holding the last successful sync time.
const MetadataLastSync = "last_sync"

// SyncRecord represents a transaction appended by a sync.
type SyncRecord struct {
	ID            int64
	TransactionID string
	Account       string
	Date          string
	Amount        string
	LedgerFile    string
	SyncedAt      time.Time
}

// RunRecord represents one sync attempt.
type RunRecord struct {
	ID             int64
	StartedAt      time.Time
	WindowDays     int
	Fetched        int
	Appended       int
	FailedAccounts int
	Error          string
}

// SyncHistory manages sync history operations.
type SyncHistory struct {
	conn *Connection
}

// NewSyncHistory creates a new SyncHistory instance.
func NewSyncHistory(conn *Connection) *SyncHistory {
	return &SyncHistory{conn: conn}
}

const upsertRecord = `
	INSERT INTO sync_history (transaction_id, account, txn_date, amount, ledger_file)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(transaction_id) DO UPDATE SET
		account = excluded.account,
		txn_date = excluded.txn_date,
		amount = excluded.amount,
		ledger_file = excluded.ledger_file,
		synced_at = CURRENT_TIMESTAMP
`

// RecordSync records one appended transaction.
// If the transaction id already exists, the record is updated.
func (s *SyncHistory) RecordSync(ctx context.Context, record SyncRecord) error {
	_, err := s.conn.ExecContext(ctx, upsertRecord,
		record.TransactionID,
		record.Account,
		record.Date,
		record.Amount,
		record.LedgerFile,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return nil
}

// RecordBatch records several appended transactions in one database
// transaction.
func (s *SyncHistory) RecordBatch(ctx context.Context, records []SyncRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertRecord)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.TransactionID, r.Account, r.Date, r.Amount, r.LedgerFile); err != nil {
				return fmt.Errorf("failed to record %s: %w", r.TransactionID, err)
			}
		}
		return nil
	})
}

// IsSynced checks if a transaction id has been recorded.
func (s *SyncHistory) IsSynced(ctx context.Context, transactionID string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_history WHERE transaction_id = ?`, transactionID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check if synced: %w", err)
	}
	return count > 0, nil
}

// GetSyncRecord retrieves a sync record by transaction id.
// It returns nil when there is no such record.
func (s *SyncHistory) GetSyncRecord(ctx context.Context, transactionID string) (*SyncRecord, error) {
	query := `
		SELECT id, transaction_id, account, txn_date, amount, ledger_file, synced_at
		FROM sync_history
		WHERE transaction_id = ?
	`

	var record SyncRecord
	err := s.conn.QueryRowContext(ctx, query, transactionID).Scan(
		&record.ID,
		&record.TransactionID,
		&record.Account,
		&record.Date,
		&record.Amount,
		&record.LedgerFile,
		&record.SyncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync record: %w", err)
	}
	return &record, nil
}

// GetSyncRecordsByAccount retrieves the records of one ledger account, newest
// first.
func (s *SyncHistory) GetSyncRecordsByAccount(ctx context.Context, account string) ([]SyncRecord, error) {
	query := `
		SELECT id, transaction_id, account, txn_date, amount, ledger_file, synced_at
		FROM sync_history
		WHERE account = ?
		ORDER BY txn_date DESC, id DESC
	`

	rows, err := s.conn.QueryContext(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync records by account: %w", err)
	}
	defer rows.Close()

	var records []SyncRecord
	for rows.Next() {
		var record SyncRecord
		if err := rows.Scan(
			&record.ID,
			&record.TransactionID,
			&record.Account,
			&record.Date,
			&record.Amount,
			&record.LedgerFile,
			&record.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync records: %w", err)
	}

	return records, nil
}

// DeleteSyncRecord deletes a sync record.
func (s *SyncHistory) DeleteSyncRecord(ctx context.Context, transactionID string) (bool, error) {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM sync_history WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete sync record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// RecordRun logs a sync attempt.
func (s *SyncHistory) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_runs (started_at, window_days, fetched, appended, failed_accounts, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.WindowDays,
		run.Fetched,
		run.Appended,
		run.FailedAccounts,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// Stats represents sync statistics.
type Stats struct {
	TotalTransactions int
	TotalAccounts     int
	TotalRuns         int
	FailedRuns        int
	LastSync          sql.NullString
}

// GetStats retrieves sync statistics.
func (s *SyncHistory) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats

	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT account) FROM sync_history`,
	).Scan(&stats.TotalTransactions, &stats.TotalAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction count: %w", err)
	}

	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(CASE WHEN failed_accounts > 0 OR error != '' THEN 1 END) FROM sync_runs`,
	).Scan(&stats.TotalRuns, &stats.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}

	last, err := s.GetMetadata(ctx, MetadataLastSync)
	if err != nil {
		return nil, err
	}
	stats.LastSync = sql.NullString{String: last, Valid: last != ""}

	return &stats, nil
}

// GetMetadata retrieves a metadata value, or "" when it is not set.
func (s *SyncHistory) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}
	return value, nil
}

// SetMetadata sets a metadata value.
func (s *SyncHistory) SetMetadata(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO sync_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}
	return nil
}

// LastSync returns the time of the last successful sync, and false if no
// sync has completed yet.
func (s *SyncHistory) LastSync(ctx context.Context) (time.Time, bool, error) {
	value, err := s.GetMetadata(ctx, MetadataLastSync)
	if err != nil || value == "" {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s metadata %q: %w", MetadataLastSync, value, err)
	}
	return t, true, nil
}

// SetLastSync stores the time of the last successful sync.
func (s *SyncHistory) SetLastSync(ctx context.Context, t time.Time) error {
	return s.SetMetadata(ctx, MetadataLastSync, t.UTC().Format(time.RFC3339Nano))
}
