package eth

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	qerr "github.com/quillwallet/quill/pkg/errors"
)

// SignedTransaction is the terminal pipeline stage: the RLP-encoded
// signed transaction and its hash. The hash is always keccak256 of the
// encoded bytes, computed locally; it is never supplied externally.
type SignedTransaction struct {
	Encoded []byte
	Hash    string
}

// Sign signs a costed input with the private key under EIP-155 for the
// input's chain ID. The private key bytes are zeroed after signing.
func Sign(input *SigningInput, privateKey []byte) (*SignedTransaction, error) {
	defer zeroBytes(privateKey)

	if input.ChainID == nil {
		return nil, qerr.WithDetails(qerr.ErrInvalidAmount, map[string]string{
			"reason": "chain ID is required for signing",
		})
	}

	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, qerr.Wrap(err, "parsing private key")
	}

	to := input.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    input.Nonce,
		To:       &to,
		Value:    input.Value,
		Gas:      input.GasLimit,
		GasPrice: input.GasPrice,
		Data:     input.Payload,
	})

	signer := types.NewEIP155Signer(input.ChainID)
	signedTx, err := types.SignTx(tx, signer, key)
	if err != nil {
		return nil, qerr.Wrap(err, "signing transaction")
	}

	encoded, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, qerr.Wrap(err, "encoding transaction")
	}

	return &SignedTransaction{
		Encoded: encoded,
		Hash:    hashEncoded(encoded),
	}, nil
}

// hashEncoded computes the transaction hash as keccak256 over the
// encoded bytes.
func hashEncoded(encoded []byte) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(encoded)
	return "0x" + hex.EncodeToString(hash.Sum(nil))
}

// Broadcaster accepts an encoded transaction and returns the hash the
// network reports, and can report whether a transaction is currently in
// flight for an address.
type Broadcaster interface {
	Broadcast(ctx context.Context, encoded []byte) (hash string, err error)
	IsTransactionInFlight(ctx context.Context, address string) (bool, error)
}

// Publish broadcasts a signed transaction and cross-checks the reported
// hash against the locally computed one. A mismatch is a hard failure,
// guarding against a corrupted or substituted broadcast.
func Publish(ctx context.Context, b Broadcaster, signed *SignedTransaction) (string, error) {
	reported, err := b.Broadcast(ctx, signed.Encoded)
	if err != nil {
		return "", qerr.Wrap(err, "broadcasting transaction")
	}

	if !strings.EqualFold(reported, signed.Hash) {
		return "", qerr.WithDetails(qerr.ErrInvalidResponseHash, map[string]string{
			"local":    signed.Hash,
			"reported": reported,
		})
	}

	return signed.Hash, nil
}

// zeroBytes zeros out a byte slice.
func zeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
