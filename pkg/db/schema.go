// Package db keeps sync bookkeeping in SQLite: which transactions each sync
// appended, a log of sync runs, and key-value metadata such as the last sync
// time. The ledger file remains the record of the transactions themselves.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Transactions appended to the ledger by a sync, keyed by their id tag
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    transaction_id TEXT NOT NULL UNIQUE,
    account TEXT NOT NULL,
    txn_date TEXT NOT NULL,            -- YYYY-MM-DD
    amount TEXT NOT NULL,              -- exact decimal as written to the ledger
    ledger_file TEXT NOT NULL,
    synced_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_history_account
    ON sync_history(account);

CREATE INDEX IF NOT EXISTS idx_sync_history_date
    ON sync_history(txn_date);

-- One row per sync attempt that got past the interval check
CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TEXT NOT NULL,          -- RFC3339
    window_days INTEGER NOT NULL,
    fetched INTEGER NOT NULL,
    appended INTEGER NOT NULL,
    failed_accounts INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT ''
);

-- Key-value metadata about sync operations
CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.db.Exec(Schema); err != nil {
		return err
	}
	return nil
}
