package keys

import (
	"bytes"
	"io"

	"filippo.io/age"

	qerr "github.com/quillwallet/quill/pkg/errors"
)

// SealSeed encrypts a BIP39 seed under a password using age with a
// scrypt recipient. The sealed blob backs the engine's second-password
// flow: engines hold only the blob and open it at signing time.
func SealSeed(seed []byte, password string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, qerr.Wrap(err, "creating scrypt recipient")
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, qerr.Wrap(err, "initializing encryption")
	}

	if _, err := w.Write(seed); err != nil {
		return nil, qerr.Wrap(err, "writing sealed seed")
	}

	if err := w.Close(); err != nil {
		return nil, qerr.Wrap(err, "finalizing encryption")
	}

	return buf.Bytes(), nil
}

// OpenSeed decrypts a sealed seed blob with the password. A wrong
// password or corrupted blob yields ErrDecryptionFailed; it never
// produces a different-but-valid-looking seed. The caller must zero the
// returned seed after use.
func OpenSeed(sealed []byte, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, qerr.Wrap(err, "creating scrypt identity")
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, qerr.WithDetails(qerr.ErrDecryptionFailed, map[string]string{
			"cause": err.Error(),
		})
	}

	seed, err := io.ReadAll(r)
	if err != nil {
		return nil, qerr.WithDetails(qerr.ErrDecryptionFailed, map[string]string{
			"cause": err.Error(),
		})
	}

	return seed, nil
}
