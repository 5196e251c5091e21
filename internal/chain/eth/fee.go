// Package eth implements the account-based transaction pipeline:
// fee model, candidate construction, costing, EIP-155 signing, and
// hash-checked publishing for Ethereum-family chains.
package eth

import (
	"context"
	"math/big"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// Default gas limits for transfers, used when the fee service omits them.
const (
	// DefaultGasLimit is the gas limit for plain ether transfers.
	DefaultGasLimit uint64 = 21000
	// DefaultGasLimitContract is the gas limit for ERC20 token transfers.
	DefaultGasLimitContract uint64 = 65000
)

// gweiToWei converts a gwei-denominated price to wei.
//
//nolint:gochecknoglobals // unit constant
var gweiToWei = big.NewInt(1_000_000_000)

// NetworkFees carries the current fee parameters reported by the remote
// fee service: gas prices per level in gwei and gas limits per transfer
// kind.
type NetworkFees struct {
	RegularGwei      uint64
	PriorityGwei     uint64
	GasLimit         uint64
	GasLimitContract uint64
}

// FeeService returns current network fee parameters for the chain.
type FeeService interface {
	Fees(ctx context.Context) (*NetworkFees, error)
}

// FeeModel computes absolute fees from a requested fee level and the
// network parameters.
type FeeModel struct {
	fees          NetworkFees
	extraGasLimit uint64
}

// NewFeeModel builds a fee model over the given network parameters.
// Zero gas limits fall back to the standard transfer defaults.
func NewFeeModel(fees NetworkFees, extraGasLimit uint64) *FeeModel {
	if fees.GasLimit == 0 {
		fees.GasLimit = DefaultGasLimit
	}
	if fees.GasLimitContract == 0 {
		fees.GasLimitContract = DefaultGasLimitContract
	}
	return &FeeModel{fees: fees, extraGasLimit: extraGasLimit}
}

// GasPrice returns the wei gas price for a fee level. Custom levels use
// the caller-provided gwei value.
func (m *FeeModel) GasPrice(level chain.FeeLevel, customGwei uint64) *big.Int {
	var gwei uint64
	switch level {
	case chain.FeeLevelPriority:
		gwei = m.fees.PriorityGwei
	case chain.FeeLevelCustom:
		gwei = customGwei
	default:
		gwei = m.fees.RegularGwei
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gwei), gweiToWei)
}

// GasLimit returns the gas limit for a transfer kind.
func (m *FeeModel) GasLimit(isContract bool) uint64 {
	if isContract {
		return m.fees.GasLimitContract
	}
	return m.fees.GasLimit
}

// AbsoluteFee computes the total fee in wei:
// gasPrice(level) * gasLimit(isContract) + extraGasLimit.
func (m *FeeModel) AbsoluteFee(level chain.FeeLevel, customGwei uint64, isContract bool) *big.Int {
	price := m.GasPrice(level, customGwei)
	limit := new(big.Int).SetUint64(m.GasLimit(isContract))

	fee := new(big.Int).Mul(price, limit)
	if m.extraGasLimit > 0 {
		fee.Add(fee, new(big.Int).SetUint64(m.extraGasLimit))
	}
	return fee
}

// Validate checks that the fee parameters can produce a costable
// candidate.
func (m *FeeModel) Validate(level chain.FeeLevel, customGwei uint64, isContract bool) error {
	if m.GasPrice(level, customGwei).Sign() <= 0 {
		return qerr.ErrNoGasPrice
	}
	if m.GasLimit(isContract) == 0 {
		return qerr.ErrNoGasLimit
	}
	return nil
}
