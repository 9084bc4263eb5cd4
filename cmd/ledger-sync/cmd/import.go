package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/session"
)

// importCmd represents the import command.
var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import YAML statement files into the ledger",
	Long: `Import statements exported as YAML files. The files go through the same
pipeline as sync: running balances, rules, and duplicate detection against
the ledger. The minimum sync interval does not apply and the last sync time
is left unchanged.

Example:
  ledger-sync import statements/2024-01.yaml
  ledger-sync import --dry-run statements/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	Run:  runImport,
}

func init() {
	addSyncFlags(importCmd)
}

func runImport(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	src, err := session.NewFileSource(cfg, args)
	exitOnError(err, "failed to read statements")

	s := openSession(cfg, src)
	defer s.Close()

	opts := syncOptions()
	opts.IgnoreInterval = true
	opts.KeepLastSync = true
	runPipeline(cmd, s, src, opts)
}
