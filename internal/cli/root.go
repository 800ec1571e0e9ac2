// Package cli implements the usedplusd command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XelaNull/UsedPlus-sub003/internal/daemon"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "usedplusd",
	Short: "Used-equipment finance and marketplace simulation daemon",
	Long: `usedplusd hosts the UsedPlus simulation engine: credit scoring,
loan/lease amortization with configurable payment behavior, and a tiered
probabilistic agent marketplace for buying and selling equipment.

State persists in an embedded SQLite database and every stochastic outcome
is drawn from a stream seeded by the request it belongs to, so a restored
simulation replays identically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default "+daemon.DefaultConfigPath()+")")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "usedplusd %s\n", Version)
	},
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
