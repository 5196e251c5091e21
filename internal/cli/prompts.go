package cli

import (
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/quillwallet/quill/internal/keys"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// promptHidden prompts for a line with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptHidden(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	line, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr, "")

	if err != nil {
		return nil, qerr.Wrap(err, "reading hidden input")
	}
	return line, nil
}

// promptMnemonic reads a BIP39 mnemonic with hidden input and validates
// it before returning. Typo positions are reported without echoing the
// phrase itself.
func promptMnemonic() (string, error) {
	raw, err := promptHidden("Enter mnemonic: ")
	if err != nil {
		return "", err
	}
	defer keys.ZeroBytes(raw)

	mnemonic := keys.NormalizeMnemonicInput(string(raw))
	if err := keys.ValidateMnemonic(mnemonic); err != nil {
		for _, typo := range keys.DetectTypos(mnemonic) {
			if typo.Suggestion != "" {
				outln(os.Stderr, "word %d looks misspelled, did you mean %q?", typo.Index+1, typo.Suggestion)
			}
		}
		return "", err
	}
	return mnemonic, nil
}

// promptPassphrase reads an optional BIP39 passphrase with confirmation.
func promptPassphrase() (string, error) {
	outln(os.Stderr, "WARNING: losing the passphrase makes the wallet unrecoverable.")

	passphrase, err := promptHidden("Enter passphrase: ")
	if err != nil {
		return "", err
	}
	if len(passphrase) == 0 {
		return "", nil
	}

	confirm, err := promptHidden("Confirm passphrase: ")
	if err != nil {
		keys.ZeroBytes(passphrase)
		return "", err
	}
	defer keys.ZeroBytes(confirm)

	if string(passphrase) != string(confirm) {
		keys.ZeroBytes(passphrase)
		return "", qerr.WithSuggestion(qerr.ErrGeneral, "passphrases do not match")
	}
	return string(passphrase), nil
}
