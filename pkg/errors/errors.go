// Package errors provides structured error handling for Quill.
// It defines sentinel errors for the wallet engine's failure taxonomy
// and helpers for adding context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// WalletError is the structured error type for Quill.
type WalletError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for the caller
	Cause      error             // Underlying error
}

func (e *WalletError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *WalletError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for WalletError.
func (e *WalletError) Is(target error) bool {
	var t *WalletError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &WalletError{
		Code:    "GENERAL_ERROR",
		Message: "an error occurred",
	}

	// Engine lifecycle errors.
	ErrEngineNotStarted = &WalletError{
		Code:    "ENGINE_NOT_STARTED",
		Message: "transaction engine has no source account or target",
	}

	ErrCurrencyMismatch = &WalletError{
		Code:    "CURRENCY_MISMATCH",
		Message: "amount currency does not match the source asset",
	}

	ErrNotValidated = &WalletError{
		Code:    "NOT_VALIDATED",
		Message: "transaction has not passed validation",
	}

	// Validation errors (user-actionable, carried as pending-transaction state).
	ErrInvalidAmount = &WalletError{
		Code:    "INVALID_AMOUNT",
		Message: "amount is invalid",
	}

	ErrBelowDust = &WalletError{
		Code:    "BELOW_DUST",
		Message: "amount is below the dust threshold",
	}

	ErrOverMaximumLimit = &WalletError{
		Code:    "OVER_MAXIMUM_LIMIT",
		Message: "amount exceeds the maximum limit",
	}

	ErrInsufficientFunds = &WalletError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient funds for transaction",
	}

	ErrInsufficientGas = &WalletError{
		Code:    "INSUFFICIENT_GAS",
		Message: "insufficient native balance to pay for gas",
	}

	ErrTransactionInFlight = &WalletError{
		Code:    "TRANSACTION_IN_FLIGHT",
		Message: "a transaction is already awaiting confirmation",
	}

	ErrOptionInvalid = &WalletError{
		Code:    "OPTION_INVALID",
		Message: "a transaction option has not been acknowledged",
	}

	// Build / costing errors.
	ErrNoGasPrice = &WalletError{
		Code:    "NO_GAS_PRICE",
		Message: "gas price is zero or missing",
	}

	ErrNoGasLimit = &WalletError{
		Code:    "NO_GAS_LIMIT",
		Message: "gas limit is zero or missing",
	}

	ErrInvalidResponseHash = &WalletError{
		Code:    "INVALID_RESPONSE_HASH",
		Message: "broadcast response hash does not match local transaction hash",
	}

	ErrInvalidAddress = &WalletError{
		Code:    "INVALID_ADDRESS",
		Message: "invalid address format",
	}

	ErrNoUTXOs = &WalletError{
		Code:    "NO_UTXOS",
		Message: "no spendable outputs available",
	}

	ErrFeeTooLow = &WalletError{
		Code:    "FEE_TOO_LOW",
		Message: "fee is too low for current network conditions",
	}

	// Key-derivation errors (terminal, non-retryable).
	ErrInvalidMnemonic = &WalletError{
		Code:    "INVALID_MNEMONIC",
		Message: "invalid mnemonic phrase",
	}

	ErrInvalidPath = &WalletError{
		Code:    "INVALID_PATH",
		Message: "invalid derivation path",
	}

	ErrHardenedFromXPub = &WalletError{
		Code:    "HARDENED_FROM_XPUB",
		Message: "hardened derivation requires the private key",
	}

	ErrDecryptionFailed = &WalletError{
		Code:    "DECRYPTION_FAILED",
		Message: "decryption failed - wrong password or corrupted data",
	}

	// Quote-engine errors.
	ErrAlreadyPolling = &WalletError{
		Code:    "ALREADY_POLLING",
		Message: "quote poll loop is already running",
	}

	ErrNoQuote = &WalletError{
		Code:    "NO_QUOTE",
		Message: "no quote available",
	}

	// Network / collaborator errors.
	ErrNetworkError = &WalletError{
		Code:    "NETWORK_ERROR",
		Message: "network communication failed",
	}

	ErrTxRejected = &WalletError{
		Code:    "TX_REJECTED",
		Message: "transaction rejected by network",
	}
)

// New creates a new WalletError with the given code and message.
func New(code, message string) *WalletError {
	return &WalletError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    fmt.Sprintf("%s: %s", msg, we.Message),
			Details:    we.Details,
			Suggestion: we.Suggestion,
			Cause:      err,
		}
	}

	return &WalletError{
		Code:    "GENERAL_ERROR",
		Message: msg,
		Cause:   err,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    we.Message,
			Details:    details,
			Suggestion: we.Suggestion,
			Cause:      we.Cause,
		}
	}

	return &WalletError{
		Code:    "GENERAL_ERROR",
		Message: err.Error(),
		Details: details,
		Cause:   err,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    we.Message,
			Details:    we.Details,
			Suggestion: suggestion,
			Cause:      we.Cause,
		}
	}

	return &WalletError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Code returns the error code for an error.
func Code(err error) string {
	var we *WalletError
	if errors.As(err, &we) {
		return we.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
