// Package engine drives the pending-transaction lifecycle for each
// chain family: build, validate, price, and execute. Engines are armed
// with a source/target pair before use; operations on an unarmed engine
// return a typed error rather than panicking on missing state.
package engine

import (
	"math/big"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// ValidationState is the tagged state of a pending transaction. The
// lifecycle is uninitialized → built → validating → one of the terminal
// validation outcomes → executing → executed or failed.
type ValidationState int

// Pending transaction states.
const (
	StateUninitialized ValidationState = iota
	StateBuilt
	StateValidating
	StateCanExecute
	StateInvalidAmount
	StateOverMaximumLimit
	StateInsufficientFunds
	StateInsufficientGas
	StateTransactionInFlight
	StateOptionInvalid
	StateExecuting
	StateExecuted
	StateFailed
)

// String returns the state name.
func (s ValidationState) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateValidating:
		return "validating"
	case StateCanExecute:
		return "can_execute"
	case StateInvalidAmount:
		return "invalid_amount"
	case StateOverMaximumLimit:
		return "over_maximum_limit"
	case StateInsufficientFunds:
		return "insufficient_funds"
	case StateInsufficientGas:
		return "insufficient_gas"
	case StateTransactionInFlight:
		return "transaction_in_flight"
	case StateOptionInvalid:
		return "option_invalid"
	case StateExecuting:
		return "executing"
	case StateExecuted:
		return "executed"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// IsFailure reports whether the state is a terminal validation failure.
func (s ValidationState) IsFailure() bool {
	switch s {
	case StateInvalidAmount, StateOverMaximumLimit, StateInsufficientFunds,
		StateInsufficientGas, StateTransactionInFlight, StateOptionInvalid, StateFailed:
		return true
	default:
		return false
	}
}

// PendingTransaction is the single in-flight transaction an engine
// owns. Validation outcomes are carried as state on the transaction
// itself so callers can always render the failure; only transport and
// programmer errors surface as Go errors.
type PendingTransaction struct {
	Amount    chain.Amount
	Available chain.Amount
	Fees      chain.Amount

	// GasAvailable is the native-coin balance that pays for gas on
	// account-based chains. Zero-valued on UTXO chains.
	GasAvailable chain.Amount

	FeeLevel             chain.FeeLevel
	SelectedFiatCurrency string
	Confirmations        []Confirmation
	State                ValidationState

	// LargeTransactionWarning is raised when the amount crosses the
	// engine's warning threshold; execution is blocked until the caller
	// acknowledges it.
	LargeTransactionWarning      bool
	LargeTransactionAcknowledged bool
}

// AcknowledgeLargeTransaction marks the large-transaction warning as
// seen, unblocking the option check.
func (tx *PendingTransaction) AcknowledgeLargeTransaction() {
	tx.LargeTransactionAcknowledged = true
}

// Source identifies the funding account of an engine: its asset, the
// funding address, and where its keys live in the HD tree.
type Source struct {
	Asset        chain.Asset
	Address      string
	AccountIndex uint32

	// ChangeAddress receives change on UTXO chains. Unused on
	// account-based chains.
	ChangeAddress string
}

// Target is the destination of a transfer.
type Target struct {
	Address string
	Asset   chain.Asset
}

// TransactionResult is the outcome of a successful execution.
type TransactionResult struct {
	Hash   string
	Amount chain.Amount
}

// checkFn is one step of the ordered validation chain. It returns
// StateCanExecute when the check passes, or the failure state.
type checkFn func(tx *PendingTransaction) ValidationState

// runChecks walks the chain in order, short-circuiting on the first
// failure, and stamps the resulting state onto the transaction.
func runChecks(tx *PendingTransaction, checks ...checkFn) *PendingTransaction {
	tx.State = StateValidating
	for _, check := range checks {
		if state := check(tx); state != StateCanExecute {
			tx.State = state
			return tx
		}
	}
	tx.State = StateCanExecute
	return tx
}

// checkPositiveAmount fails with invalidAmount for zero or negative
// amounts. This check runs first.
func checkPositiveAmount(tx *PendingTransaction) ValidationState {
	if tx.Amount.Value == nil || tx.Amount.Value.Sign() <= 0 {
		return StateInvalidAmount
	}
	return StateCanExecute
}

// checkDust fails with invalidAmount for amounts below the chain's dust
// threshold.
func checkDust(dustLimit uint64) checkFn {
	return func(tx *PendingTransaction) ValidationState {
		if dustLimit == 0 {
			return StateCanExecute
		}
		if tx.Amount.Value.Cmp(chain.AmountToBigInt(dustLimit)) < 0 {
			return StateInvalidAmount
		}
		return StateCanExecute
	}
}

// checkMaxSupply fails with overMaximumLimit for amounts exceeding the
// chain's total supply. A nil cap disables the check.
func checkMaxSupply(maxSupply *big.Int) checkFn {
	return func(tx *PendingTransaction) ValidationState {
		if maxSupply == nil {
			return StateCanExecute
		}
		if tx.Amount.Value.Cmp(maxSupply) > 0 {
			return StateOverMaximumLimit
		}
		return StateCanExecute
	}
}

// checkBalance fails with insufficientFunds when the amount exceeds the
// spendable balance.
func checkBalance(tx *PendingTransaction) ValidationState {
	if tx.Available.Value == nil || tx.Amount.Value.Cmp(tx.Available.Value) > 0 {
		return StateInsufficientFunds
	}
	return StateCanExecute
}

// checkGas fails with insufficientGas when the gas-paying balance does
// not cover the fee. Account-based chains only: the native coin pays
// for gas even when the transferred asset is a token.
func checkGas(tx *PendingTransaction) ValidationState {
	if tx.GasAvailable.Value == nil || tx.Fees.Value == nil {
		return StateInsufficientGas
	}
	if tx.GasAvailable.Value.Cmp(tx.Fees.Value) < 0 {
		return StateInsufficientGas
	}
	return StateCanExecute
}

// checkOptions fails with optionInvalid while a raised large-transaction
// warning is unacknowledged. Runs only in doValidateAll.
func checkOptions(tx *PendingTransaction) ValidationState {
	if tx.LargeTransactionWarning && !tx.LargeTransactionAcknowledged {
		return StateOptionInvalid
	}
	return StateCanExecute
}

// requireExecutable guards execution entry.
func requireExecutable(tx *PendingTransaction) error {
	if tx == nil || tx.State != StateCanExecute {
		return qerr.ErrNotValidated
	}
	return nil
}
