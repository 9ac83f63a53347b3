// Command sniperd runs the sniper core: it wires the Credential Vault,
// Source Manager, stream sources, Price Feed, Trade Executor, Position
// Monitor, and Exit Executor into one process and exposes a small set of
// vault maintenance subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "sniperd",
		Short: "Solana new-pool sniper core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML/JSON/TOML)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newVaultCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
