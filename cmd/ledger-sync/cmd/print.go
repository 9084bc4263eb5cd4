package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/pathutil"
)

// printCmd represents the print command.
var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the ledger in canonical form",
	Long: `Parse the ledger file and print it in canonical form. The file is not
modified; use fmt to rewrite it.

Example:
  ledger-sync print`,
	Run: runPrint,
}

func runPrint(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	l, err := ledger.Load(pathutil.ExpandHome(cfg.Ledger.File))
	exitOnError(err, "failed to parse ledger")

	fmt.Print(l.String())
}
