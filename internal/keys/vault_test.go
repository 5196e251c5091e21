package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/quillwallet/quill/pkg/errors"
)

func TestSealOpenRoundTrip(t *testing.T) {
	seed, err := MnemonicToSeed(testMnemonic, "")
	require.NoError(t, err)

	sealed, err := SealSeed(seed, "correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, seed, sealed)

	opened, err := OpenSeed(sealed, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, seed, opened)
}

func TestOpenSeedWrongPassword(t *testing.T) {
	sealed, err := SealSeed([]byte("some seed material"), "right")
	require.NoError(t, err)

	_, err = OpenSeed(sealed, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, qerr.ErrDecryptionFailed)
}

func TestOpenSeedCorruptedBlob(t *testing.T) {
	_, err := OpenSeed([]byte("not an age ciphertext"), "password")
	require.Error(t, err)
	assert.ErrorIs(t, err, qerr.ErrDecryptionFailed)
}
