package eth

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	qerr "github.com/quillwallet/quill/pkg/errors"
)

// ERC20 transfer function selector: keccak256("transfer(address,uint256)")[0:4]
//
//nolint:gochecknoglobals // ERC20 constant
var erc20TransferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// transferKind discriminates the candidate's payload variant.
type transferKind int

const (
	kindTransfer transferKind = iota
	kindERC20Transfer
)

// TransferType is a closed tagged variant: a plain value transfer with
// optional payload data, or an ERC20 transfer naming the token contract
// and the actual recipient.
type TransferType struct {
	kind      transferKind
	data      []byte
	contract  string
	recipient string
}

// Transfer is a native value transfer with optional arbitrary data.
func Transfer(data []byte) TransferType {
	return TransferType{kind: kindTransfer, data: data}
}

// ERC20Transfer is a token move. The contract becomes the wire-level to
// field; the recipient lives inside the call data.
func ERC20Transfer(contract, recipient string) TransferType {
	return TransferType{kind: kindERC20Transfer, contract: contract, recipient: recipient}
}

// IsContract reports whether the transfer calls a token contract.
func (t TransferType) IsContract() bool {
	return t.kind == kindERC20Transfer
}

// Contract returns the token contract address, empty for plain transfers.
func (t TransferType) Contract() string {
	return t.contract
}

// Candidate is an unsigned account-based transaction candidate.
type Candidate struct {
	To       string
	GasPrice *big.Int
	GasLimit uint64
	Value    *big.Int
	Nonce    uint64
	Transfer TransferType
}

// NewTransferCandidate builds a candidate for a native transfer.
func NewTransferCandidate(to string, value *big.Int, nonce uint64, gasPrice *big.Int, gasLimit uint64, data []byte) *Candidate {
	return &Candidate{
		To:       to,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Value:    value,
		Nonce:    nonce,
		Transfer: Transfer(data),
	}
}

// NewERC20Candidate builds a candidate for a token transfer. The wire to
// field is the token contract; the token amount and recipient are encoded
// into the call data at costing time.
func NewERC20Candidate(contract, recipient string, amount *big.Int, nonce uint64, gasPrice *big.Int, gasLimit uint64) *Candidate {
	return &Candidate{
		To:       contract,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Value:    amount,
		Nonce:    nonce,
		Transfer: ERC20Transfer(contract, recipient),
	}
}

// SigningInput is the chain-ID-bound input to signing. It is produced
// only by Cost; a candidate that fails costing never reaches signing.
type SigningInput struct {
	ChainID  *big.Int
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	To       common.Address
	Value    *big.Int
	Payload  []byte
}

// Cost transforms a candidate into a signing input. Costing is one-way:
// the signing input carries the ERC20 call data, and the wire value for
// token transfers is zero (the token amount lives in the payload).
func (c *Candidate) Cost(chainID *big.Int) (*SigningInput, error) {
	if c.GasPrice == nil || c.GasPrice.Sign() <= 0 {
		return nil, qerr.ErrNoGasPrice
	}
	if c.GasLimit == 0 {
		return nil, qerr.ErrNoGasLimit
	}
	if !IsValidAddress(c.To) {
		return nil, qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
			"field":   "to",
			"address": c.To,
		})
	}

	input := &SigningInput{
		ChainID:  chainID,
		Nonce:    c.Nonce,
		GasPrice: c.GasPrice,
		GasLimit: c.GasLimit,
		To:       common.HexToAddress(c.To),
	}

	switch c.Transfer.kind {
	case kindERC20Transfer:
		if !IsValidAddress(c.Transfer.recipient) {
			return nil, qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
				"field":   "recipient",
				"address": c.Transfer.recipient,
			})
		}
		input.Value = big.NewInt(0)
		input.Payload = BuildERC20TransferData(c.Transfer.recipient, c.Value)
	default:
		input.Value = c.Value
		input.Payload = c.Transfer.data
	}

	return input, nil
}

// BuildERC20TransferData builds the call data for an ERC20 transfer.
// transfer(address,uint256) = 0xa9059cbb
func BuildERC20TransferData(to string, amount *big.Int) []byte {
	data := make([]byte, 68) // 4 + 32 + 32
	copy(data[:4], erc20TransferSelector)

	// Left-pad address to 32 bytes.
	toAddr := common.HexToAddress(to)
	copy(data[16:36], toAddr.Bytes())

	// Left-pad amount to 32 bytes.
	amountBytes := amount.Bytes()
	copy(data[68-len(amountBytes):68], amountBytes)

	return data
}

// isHexChar checks if a rune is a valid hexadecimal character.
func isHexChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// IsValidAddress checks if an Ethereum address is well-formed
// (0x-prefixed, 40 hex characters).
func IsValidAddress(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}
	for _, c := range address[2:] {
		if !isHexChar(c) {
			return false
		}
	}
	return true
}

// BalanceService returns native and token balances for an account-based
// chain. The native balance always pays for gas, even on token moves.
type BalanceService interface {
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	TokenBalance(ctx context.Context, address, contract string) (*big.Int, error)
}

// NonceSource reports the next usable nonce for an address.
type NonceSource interface {
	NextNonce(ctx context.Context, address string) (uint64, error)
}
