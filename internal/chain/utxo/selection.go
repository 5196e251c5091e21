package utxo

import (
	"context"
	"fmt"
	"sort"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// Proposal is the immutable description of a requested UTXO payment:
// target address, requested amount, chosen fee rate, and the source
// account whose outputs fund it. ChangeTo receives any change output;
// it should be an address on the wallet's internal branch.
type Proposal struct {
	To       string
	ChangeTo string
	Amount   uint64 // satoshis
	FeeRate  uint64 // satoshis per byte
	Source   string
}

// SelectionReason classifies why coin selection failed. The taxonomy is
// closed: every failure maps to exactly one reason, with
// ReasonUnclassified as the residual bucket.
type SelectionReason int

// Coin selection failure reasons.
const (
	ReasonUnclassified SelectionReason = iota
	ReasonNoSpendableOutputs
	ReasonBelowDust
	ReasonFeeTooLow
)

// String returns the reason name.
func (r SelectionReason) String() string {
	switch r {
	case ReasonNoSpendableOutputs:
		return "no_spendable_outputs"
	case ReasonBelowDust:
		return "below_dust"
	case ReasonFeeTooLow:
		return "fee_too_low"
	default:
		return "unclassified"
	}
}

// SelectionError is a classified coin selection failure. It unwraps to
// the matching sentinel so errors.Is works against the package error
// codes.
type SelectionError struct {
	Reason SelectionReason
	Detail string
}

// Error implements the error interface.
func (e *SelectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("coin selection failed: %s", e.Reason)
	}
	return fmt.Sprintf("coin selection failed: %s: %s", e.Reason, e.Detail)
}

// Unwrap maps the reason to its sentinel error.
func (e *SelectionError) Unwrap() error {
	switch e.Reason {
	case ReasonNoSpendableOutputs:
		return qerr.ErrNoUTXOs
	case ReasonBelowDust:
		return qerr.ErrBelowDust
	case ReasonFeeTooLow:
		return qerr.ErrFeeTooLow
	default:
		return qerr.ErrGeneral
	}
}

// Candidate is a proposal plus the unspent outputs selected to fund it.
// On the degraded sweep path the requested amount could not be satisfied
// and the candidate instead carries the maximum sendable figures.
//
// Invariant: SweepAmount + SweepFee never exceeds the total selected
// input value.
type Candidate struct {
	Proposal Proposal
	Inputs   []chain.UTXO
	Fee      uint64
	Change   uint64

	// Sweep marks a degraded candidate built after a classified coin
	// selection failure.
	Sweep       bool
	FinalFee    uint64
	SweepAmount uint64
	SweepFee    uint64
}

// Amount returns the value the candidate will actually send: the
// proposal amount, or the sweep amount on the degraded path.
func (c *Candidate) Amount() uint64 {
	if c.Sweep {
		return c.SweepAmount
	}
	return c.Proposal.Amount
}

// TotalInput returns the summed value of the selected inputs.
func (c *Candidate) TotalInput() uint64 {
	var total uint64
	for _, u := range c.Inputs {
		total += u.Amount
	}
	return total
}

// UTXOService returns the spendable output set for an account.
type UTXOService interface {
	SpendableOutputs(ctx context.Context, source string) ([]chain.UTXO, error)
}

// SelectCoins chooses outputs from utxos to satisfy the proposal's
// amount plus fee. Selection is largest-first to minimize input count.
// Change below the dust limit is folded into the fee instead of creating
// an uneconomical output.
//
// Failures are returned as *SelectionError with one of the four
// classified reasons.
func SelectCoins(proposal Proposal, utxos []chain.UTXO, dustLimit uint64) (*Candidate, error) {
	spendable := spendableOf(utxos)
	if len(spendable) == 0 {
		return nil, &SelectionError{Reason: ReasonNoSpendableOutputs}
	}
	if proposal.Amount < dustLimit {
		return nil, &SelectionError{
			Reason: ReasonBelowDust,
			Detail: fmt.Sprintf("amount %d below dust limit %d", proposal.Amount, dustLimit),
		}
	}
	if proposal.FeeRate < MinFeeRate {
		return nil, &SelectionError{
			Reason: ReasonFeeTooLow,
			Detail: fmt.Sprintf("fee rate %d below minimum %d", proposal.FeeRate, MinFeeRate),
		}
	}

	sort.Slice(spendable, func(i, j int) bool {
		return spendable[i].Amount > spendable[j].Amount
	})

	var selected []chain.UTXO
	var total uint64
	for _, u := range spendable {
		selected = append(selected, u)
		total += u.Amount

		fee := AbsoluteFee(proposal.FeeRate, len(selected), 2)
		if total < proposal.Amount+fee {
			continue
		}

		change := total - proposal.Amount - fee
		if change > 0 && change < dustLimit {
			fee += change
			change = 0
		}
		return &Candidate{
			Proposal: proposal,
			Inputs:   selected,
			Fee:      fee,
			Change:   change,
		}, nil
	}

	return nil, &SelectionError{
		Reason: ReasonUnclassified,
		Detail: fmt.Sprintf("inputs total %d cannot cover amount %d plus fee", total, proposal.Amount),
	}
}

// SweepCandidate builds the degraded candidate: all spendable outputs as
// inputs, sending the maximum possible amount after fees. FinalFee is
// the fee the requested payment would have cost; SweepAmount and
// SweepFee describe the sweep itself.
func SweepCandidate(proposal Proposal, utxos []chain.UTXO) *Candidate {
	inputs := spendableOf(utxos)
	rate := ClampRate(proposal.FeeRate)

	var total uint64
	for _, u := range inputs {
		total += u.Amount
	}

	sweepFee := AbsoluteFee(rate, len(inputs), 1)
	var sweepAmount uint64
	if total > sweepFee {
		sweepAmount = total - sweepFee
	} else {
		// Not even the fee is covered; report zero sendable and cap the
		// fee at what the inputs hold so the invariant holds.
		sweepFee = total
	}

	return &Candidate{
		Proposal:    proposal,
		Inputs:      inputs,
		Fee:         sweepFee,
		Sweep:       true,
		FinalFee:    AbsoluteFee(rate, len(inputs), 2),
		SweepAmount: sweepAmount,
		SweepFee:    sweepFee,
	}
}

// BuildCandidate fetches the source's spendable outputs and runs coin
// selection. All four classified selection failures are recovered into a
// sweep candidate so callers can still present the maximum sendable
// amount; only transport errors from the UTXO service propagate.
func BuildCandidate(ctx context.Context, svc UTXOService, proposal Proposal, dustLimit uint64) (*Candidate, error) {
	utxos, err := svc.SpendableOutputs(ctx, proposal.Source)
	if err != nil {
		return nil, qerr.Wrap(err, "fetching spendable outputs")
	}

	candidate, err := SelectCoins(proposal, utxos, dustLimit)
	if err == nil {
		return candidate, nil
	}

	var selErr *SelectionError
	if qerr.As(err, &selErr) {
		return SweepCandidate(proposal, utxos), nil
	}
	return nil, err
}

func spendableOf(utxos []chain.UTXO) []chain.UTXO {
	spendable := make([]chain.UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Confirmations > 0 && u.Amount > 0 {
			spendable = append(spendable, u)
		}
	}
	return spendable
}
