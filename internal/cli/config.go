package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd prints the effective configuration, defaults merged with
// any file given via --config.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		encoded, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "%s", encoded)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
