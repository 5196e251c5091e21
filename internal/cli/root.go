// Package cli implements the Quill command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillwallet/quill/internal/config"
)

var (
	// configPath is the optional path to a config file.
	configPath string

	// cfg is loaded in PersistentPreRunE.
	cfg *config.Config
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "A non-custodial multi-chain wallet toolkit",
	Long: `Quill is a terminal toolkit for the Quill wallet core.

It offers offline key operations: BIP39 mnemonic generation and
validation with typo suggestions, and HD address derivation for
Bitcoin (legacy and segwit) and Ethereum accounts.

Example:
  quill mnemonic new --words 24
  quill mnemonic check "abandon abandon ... about"
  quill derive --chain eth --account 0 --index 0`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(configPath)
		return err
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		outln(os.Stderr, "Error: %v", err)
	}
	return err
}

// out writes formatted output without a trailing newline.
func out(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// outln writes formatted output with a trailing newline.
func outln(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(mnemonicCmd)
	rootCmd.AddCommand(deriveCmd)
}
