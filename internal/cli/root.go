// Package cli implements anchorctl, a cobra-based command line for the
// anchor engine: a package-level rootCmd that subcommand files register
// themselves onto via init().
package cli

import (
	"github.com/spf13/cobra"

	"github.com/anchorlab/anchorengine/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "anchorctl",
	Short: "Explain classifier decisions with the Anchors algorithm",
	Long: `anchorctl constructs minimal, high-precision feature-predicate
anchors for a black-box classifier's decisions, and can select a small
set of anchors that together summarize a model globally.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (defaults used if omitted)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (config.Config, error) {
	return config.LoadConfig(configPath)
}
