package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillwallet/quill/internal/keys"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// mnemonicWords is the word count for generated mnemonics.
	mnemonicWords int
)

// mnemonicCmd is the parent command for mnemonic operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var mnemonicCmd = &cobra.Command{
	Use:   "mnemonic",
	Short: "Generate and validate BIP39 mnemonics",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var mnemonicNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new BIP39 mnemonic",
	Long: `Generate a new BIP39 mnemonic phrase.

The phrase is printed to stdout and never stored. Write it down and
keep it offline; anyone holding the phrase controls the wallet.`,
	Example: `  quill mnemonic new
  quill mnemonic new --words 24`,
	RunE: runMnemonicNew,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var mnemonicCheckCmd = &cobra.Command{
	Use:   "check <phrase>",
	Short: "Validate a BIP39 mnemonic",
	Long: `Validate a BIP39 mnemonic phrase.

Reports checksum failures and suggests corrections for words that are
within a small edit distance of a wordlist entry.`,
	Example: `  quill mnemonic check "abandon abandon ability ..."`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runMnemonicCheck,
}

func runMnemonicNew(cmd *cobra.Command, _ []string) error {
	mnemonic, err := keys.GenerateMnemonic(mnemonicWords)
	if err != nil {
		return err
	}

	outln(cmd.OutOrStdout(), "%s", mnemonic)
	return nil
}

func runMnemonicCheck(cmd *cobra.Command, args []string) error {
	phrase := keys.NormalizeMnemonicInput(strings.Join(args, " "))

	err := keys.ValidateMnemonic(phrase)
	if err == nil {
		outln(cmd.OutOrStdout(), "valid (%d words)", len(strings.Fields(phrase)))
		return nil
	}

	typos := keys.DetectTypos(phrase)
	for _, typo := range typos {
		if typo.Suggestion != "" {
			outln(cmd.OutOrStdout(), "word %d: %q is not a wordlist entry, did you mean %q?",
				typo.Index+1, typo.Word, typo.Suggestion)
		} else {
			outln(cmd.OutOrStdout(), "word %d: %q is not a wordlist entry", typo.Index+1, typo.Word)
		}
	}
	if len(typos) == 0 {
		return qerr.WithSuggestion(qerr.ErrInvalidMnemonic,
			"the words are valid but the checksum does not match; check the word order")
	}
	return err
}

func init() {
	mnemonicNewCmd.Flags().IntVar(&mnemonicWords, "words", 12, "word count (12 or 24)")

	mnemonicCmd.AddCommand(mnemonicNewCmd)
	mnemonicCmd.AddCommand(mnemonicCheckCmd)
}
