// Package utxo implements the transaction pipeline for Bitcoin-family
// chains: proposal, coin selection, fee estimation, signing, and broadcast.
package utxo

import (
	"context"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// Transaction size estimation constants for P2PKH-shaped inputs. Segwit
// inputs are smaller on the wire, so these estimates err on the side of
// paying slightly more fee rather than producing a stuck transaction.
const (
	// TxOverheadBytes covers version, locktime, and the in/out counts.
	TxOverheadBytes = 10

	// InputBytes is the estimated size of one signed P2PKH input.
	InputBytes = 148

	// OutputBytes is the estimated size of one P2PKH output.
	OutputBytes = 34
)

// Fee rate bounds in satoshis per byte. Rates are clamped into this range
// so a bad fee service response cannot produce an unrelayable or absurdly
// expensive transaction.
const (
	MinFeeRate = 1
	MaxFeeRate = 2000
)

// NetworkFees holds the current fee rate tiers reported by the network,
// in satoshis per byte.
type NetworkFees struct {
	RegularSatPerByte  uint64
	PrioritySatPerByte uint64
}

// FeeService returns current network fee parameters for a UTXO chain.
type FeeService interface {
	Fees(ctx context.Context) (*NetworkFees, error)
}

// FeeModel converts a fee level into a concrete satoshi-per-byte rate and
// prices transactions by estimated size.
type FeeModel struct {
	fees NetworkFees
}

// NewFeeModel creates a fee model from network fee tiers.
func NewFeeModel(fees *NetworkFees) *FeeModel {
	m := &FeeModel{}
	if fees != nil {
		m.fees = *fees
	}
	return m
}

// Rate returns the satoshi-per-byte rate for the given fee level, clamped
// to the relayable range. customRate is only consulted for
// chain.FeeLevelCustom.
func (m *FeeModel) Rate(level chain.FeeLevel, customRate uint64) (uint64, error) {
	var rate uint64
	switch level {
	case chain.FeeLevelRegular:
		rate = m.fees.RegularSatPerByte
	case chain.FeeLevelPriority:
		rate = m.fees.PrioritySatPerByte
	case chain.FeeLevelCustom:
		rate = customRate
	default:
		return 0, qerr.WithDetails(qerr.ErrFeeTooLow, map[string]string{
			"fee_level": level.String(),
		})
	}
	return ClampRate(rate), nil
}

// ClampRate bounds a fee rate to [MinFeeRate, MaxFeeRate].
func ClampRate(rate uint64) uint64 {
	if rate < MinFeeRate {
		return MinFeeRate
	}
	if rate > MaxFeeRate {
		return MaxFeeRate
	}
	return rate
}

// EstimateSize returns the estimated serialized size in bytes of a
// transaction with the given input and output counts.
func EstimateSize(inputs, outputs int) uint64 {
	return TxOverheadBytes + InputBytes*uint64(inputs) + OutputBytes*uint64(outputs)
}

// AbsoluteFee converts a satoshi-per-byte rate and transaction shape into
// an absolute fee in satoshis.
func AbsoluteFee(rate uint64, inputs, outputs int) uint64 {
	return rate * EstimateSize(inputs, outputs)
}
