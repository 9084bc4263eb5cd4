package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/pathutil"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/rules"
)

var checkOnly bool

// rulesCmd represents the rules command.
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Check the rules file and print it in canonical form",
	Long: `Parse the rules file and print the rules in canonical form. With --check
only report whether the file parses.

Example:
  ledger-sync rules
  ledger-sync rules --check`,
	Run: runRules,
}

func init() {
	rulesCmd.Flags().BoolVar(&checkOnly, "check", false, "Only check that the rules file parses")
}

func runRules(cmd *cobra.Command, args []string) {
	cfg := loadConfig([]string{"ledger", "rulesFile"})

	path := pathutil.ExpandHome(cfg.Ledger.RulesFile)
	r, err := rules.Load(path)
	exitOnError(err, "failed to parse rules")

	if checkOnly {
		fmt.Printf("%s: %d top-level rules OK\n", path, r.Len())
		return
	}
	fmt.Print(r.String())
}
