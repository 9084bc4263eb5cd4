package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/session"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/syncer"
)

var (
	dryRun          bool
	openingBalances bool
	sortByDate      bool
)

// syncCmd represents the sync command.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync bank statements into the ledger",
	Long: `Sync transactions from the configured statement source into the ledger.

This command:
1. Works out how many days to refetch from the last sync
2. Fetches every account's statement and computes running balances
3. Applies the rules file
4. Skips transactions already in the ledger
5. Appends the rest and records the sync in SQLite

Example:
  ledger-sync sync
  ledger-sync sync --dry-run
  ledger-sync sync --opening-balances --sort`,
	Run: runSync,
}

func init() {
	addSyncFlags(syncCmd)
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Dry run mode (no file writes)")
	cmd.Flags().BoolVar(&openingBalances, "opening-balances", false, "Add an opening balance entry for every account")
	cmd.Flags().BoolVar(&sortByDate, "sort", false, "Sort new transactions by date before appending")
}

func syncOptions() syncer.Options {
	return syncer.Options{
		DryRun:          dryRun,
		OpeningBalances: openingBalances,
		Sort:            sortByDate,
	}
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := cfg.Validate(cfg.SourceRequirements()...); err != nil {
		exitOnError(err, "invalid configuration")
	}

	s := openSession(cfg, nil)
	defer s.Close()

	runPipeline(cmd, s, nil, syncOptions())
}

// runPipeline runs one sync from src and reports the result. Per-account
// failures are reported after the appended transactions and exit non-zero.
func runPipeline(cmd *cobra.Command, s *session.Session, src syncer.Source, opts syncer.Options) {
	result, err := s.SyncFrom(cmd.Context(), src, time.Now(), opts)

	var srcErrs syncer.SourceErrors
	if err != nil && !errors.As(err, &srcErrs) {
		exitOnError(err, "sync failed")
	}

	if result.Skipped {
		fmt.Println("Skipped: the last sync was too recent")
		return
	}

	if len(result.Appended) == 0 {
		fmt.Println("No new transactions to sync")
	} else {
		if opts.DryRun {
			fmt.Printf("[DRY RUN] Would append to %s\n\n", s.LedgerPath())
		}
		fmt.Print(ledger.Render(result.Appended))
	}

	if !opts.DryRun {
		printStats(cmd, s)
	}

	slog.Info("Sync completed",
		"window_days", result.WindowDays,
		"fetched", result.Fetched,
		"appended", len(result.Appended),
		"duplicates", result.Duplicates,
		"failed_accounts", len(srcErrs),
	)

	if len(srcErrs) > 0 {
		for _, e := range srcErrs {
			fmt.Fprintf(os.Stderr, "Error: %v\n", e)
		}
		s.Close()
		os.Exit(1)
	}
}
