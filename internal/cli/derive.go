package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillwallet/quill/internal/chain"
	"github.com/quillwallet/quill/internal/keys"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// deriveChain selects the target blockchain.
	deriveChain string
	// deriveScheme selects legacy or segwit derivation for UTXO chains.
	deriveScheme string
	// deriveAccount is the BIP44 account index.
	deriveAccount uint32
	// deriveIndex is the address index within the receive branch.
	deriveIndex uint32
	// deriveCount is how many consecutive addresses to print.
	deriveCount uint32
	// deriveChange derives from the change branch instead of receive.
	deriveChange bool
	// derivePassphrase enables the optional BIP39 passphrase prompt.
	derivePassphrase bool
)

// deriveCmd derives addresses from a mnemonic read on stdin.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive addresses from a mnemonic",
	Long: `Derive HD addresses from a BIP39 mnemonic.

The mnemonic is read with hidden input and never written to disk.
Bitcoin addresses use purpose 44' (legacy) or 84' (segwit); Ethereum
addresses always use the 44'/60' path with EIP-55 checksums.`,
	Example: `  quill derive --chain btc --scheme segwit --count 5
  quill derive --chain eth --account 0 --index 0`,
	RunE: runDerive,
}

func runDerive(cmd *cobra.Command, _ []string) error {
	chainID := chain.ID(strings.ToLower(deriveChain))
	if !chainID.IsValid() {
		return qerr.WithDetails(qerr.ErrGeneral, map[string]string{
			"chain": deriveChain,
		})
	}

	scheme, err := parseScheme(deriveScheme)
	if err != nil {
		return err
	}

	mnemonic, err := promptMnemonic()
	if err != nil {
		return err
	}

	passphrase := ""
	if derivePassphrase {
		passphrase, err = promptPassphrase()
		if err != nil {
			return err
		}
	}

	wallet, err := keys.NewHDWallet(mnemonic, passphrase)
	if err != nil {
		return err
	}

	deriv, err := wallet.Account(chainID, deriveAccount, scheme)
	if err != nil {
		return err
	}

	branch := keys.ReceiveBranch
	if deriveChange {
		branch = keys.ChangeBranch
	}

	count := deriveCount
	if count == 0 {
		count = 1
	}
	for i := uint32(0); i < count; i++ {
		index := deriveIndex + i
		var addr string
		if deriveChange {
			addr, err = deriv.ChangeAddress(index)
		} else {
			addr, err = deriv.ReceiveAddress(index)
		}
		if err != nil {
			return err
		}
		outln(cmd.OutOrStdout(), "%s\t%s", deriv.Path(branch, index), addr)
	}

	return nil
}

func parseScheme(s string) (keys.Scheme, error) {
	switch strings.ToLower(s) {
	case "", "legacy":
		return keys.Legacy, nil
	case "segwit":
		return keys.Segwit, nil
	default:
		return keys.Legacy, qerr.WithSuggestion(qerr.ErrGeneral,
			"scheme must be \"legacy\" or \"segwit\"")
	}
}

func init() {
	deriveCmd.Flags().StringVar(&deriveChain, "chain", "btc", "blockchain (btc, bch, eth)")
	deriveCmd.Flags().StringVar(&deriveScheme, "scheme", "legacy", "derivation scheme (legacy, segwit)")
	deriveCmd.Flags().Uint32Var(&deriveAccount, "account", 0, "account index")
	deriveCmd.Flags().Uint32Var(&deriveIndex, "index", 0, "first address index")
	deriveCmd.Flags().Uint32Var(&deriveCount, "count", 1, "number of addresses to derive")
	deriveCmd.Flags().BoolVar(&deriveChange, "change", false, "derive change addresses")
	deriveCmd.Flags().BoolVar(&derivePassphrase, "passphrase", false, "prompt for a BIP39 passphrase")
}
