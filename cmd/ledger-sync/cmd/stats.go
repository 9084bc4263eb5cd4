package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/session"
)

var (
	statsAccount     string
	statsTransaction string
	statsVerify      bool
	statsRepair      bool
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display sync statistics",
	Long: `Display statistics about synced transactions and sync runs.

Shows:
- Number of transactions in the ledger
- Total number of synced transactions and accounts
- Number of sync runs and how many had failures
- Last successful sync timestamp

With --account, list the synced transactions of one ledger account. With
--transaction, show the history record of one transaction id. With --verify,
cross-check the sync history against the ledger; --repair also fixes it.

Example:
  ledger-sync stats
  ledger-sync stats --account assets:Checking
  ledger-sync stats --transaction 1001-42-t1
  ledger-sync stats --verify --repair`,
	Run: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsAccount, "account", "", "List synced transactions of a ledger account")
	statsCmd.Flags().StringVar(&statsTransaction, "transaction", "", "Show the history record of a transaction id")
	statsCmd.Flags().BoolVar(&statsVerify, "verify", false, "Cross-check the sync history against the ledger")
	statsCmd.Flags().BoolVar(&statsRepair, "repair", false, "With --verify, record missing and delete stale history entries")
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	s := openSession(cfg, nil)
	defer s.Close()

	printStats(cmd, s)
	if statsAccount != "" {
		printAccountRecords(cmd, s, statsAccount)
	}
	if statsTransaction != "" {
		printTransactionRecord(cmd, s, statsTransaction)
	}
	if statsVerify || statsRepair {
		verifyHistory(cmd, s, statsRepair)
	}
	slog.Info("Statistics displayed successfully")
}

func printStats(cmd *cobra.Command, s *session.Session) {
	history, err := s.History()
	exitOnError(err, "failed to open sync history")

	stats, err := history.GetStats(cmd.Context())
	exitOnError(err, "failed to get statistics")

	l, err := s.Ledger()
	exitOnError(err, "failed to read ledger")

	fmt.Println("\n=== Sync Statistics ===")
	fmt.Printf("Ledger transactions:   %d\n", l.Len())
	fmt.Printf("Total synced:          %d\n", stats.TotalTransactions)
	fmt.Printf("Accounts:              %d\n", stats.TotalAccounts)
	fmt.Printf("Sync runs:             %d (%d with failures)\n", stats.TotalRuns, stats.FailedRuns)
	if stats.LastSync.Valid {
		fmt.Printf("Last sync:             %s\n", stats.LastSync.String)
	} else {
		fmt.Printf("Last sync:             (never)\n")
	}
	fmt.Println()
}

func printAccountRecords(cmd *cobra.Command, s *session.Session, account string) {
	history, err := s.History()
	exitOnError(err, "failed to open sync history")

	records, err := history.GetSyncRecordsByAccount(cmd.Context(), account)
	exitOnError(err, "failed to get account records")

	fmt.Printf("=== %s (%d synced) ===\n", account, len(records))
	for _, r := range records {
		fmt.Printf("  %s  %12s  %s  (synced %s)\n", r.Date, r.Amount, r.TransactionID, r.SyncedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println()
}

func printTransactionRecord(cmd *cobra.Command, s *session.Session, id string) {
	history, err := s.History()
	exitOnError(err, "failed to open sync history")

	record, err := history.GetSyncRecord(cmd.Context(), id)
	exitOnError(err, "failed to get sync record")

	if record == nil {
		fmt.Printf("%s: not in sync history\n\n", id)
		return
	}
	fmt.Printf("%s: %s %s %s, synced %s into %s\n\n",
		record.TransactionID, record.Date, record.Account, record.Amount,
		record.SyncedAt.Format("2006-01-02 15:04"), record.LedgerFile)
}

func verifyHistory(cmd *cobra.Command, s *session.Session, repair bool) {
	v, err := s.VerifyHistory(cmd.Context(), repair)
	exitOnError(err, "failed to verify sync history")

	fmt.Println("=== History Check ===")
	fmt.Printf("Checked:               %d\n", v.Checked)
	fmt.Printf("Missing from history:  %d\n", len(v.Missing))
	for _, r := range v.Missing {
		fmt.Printf("  + %s (%s)\n", r.TransactionID, r.Account)
	}
	fmt.Printf("Stale in history:      %d\n", len(v.Stale))
	for _, r := range v.Stale {
		fmt.Printf("  - %s (%s)\n", r.TransactionID, r.Account)
	}
	if v.Repaired {
		fmt.Println("History repaired")
	}
	fmt.Println()

	if !v.OK() && !repair {
		os.Exit(1)
	}
}
