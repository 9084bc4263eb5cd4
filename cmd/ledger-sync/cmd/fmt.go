package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// fmtCmd represents the fmt command.
var fmtCmd = &cobra.Command{
	Use:   "fmt",
	Short: "Rewrite the ledger file in canonical form",
	Long: `Rewrite the ledger file in canonical form while holding the ledger lock.
This is the only command that changes existing ledger text.

Example:
  ledger-sync fmt`,
	Run: runFmt,
}

func runFmt(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	s := openSession(cfg, nil)
	defer s.Close()

	n, err := s.Format()
	exitOnError(err, "failed to format ledger")

	slog.Info("Ledger formatted", "path", s.LedgerPath(), "transactions", n)
	fmt.Printf("Formatted %d transactions in %s\n", n, s.LedgerPath())
}
