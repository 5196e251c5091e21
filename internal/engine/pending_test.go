package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

func btcAmount(sats int64) chain.Amount {
	return chain.NewAmount(chain.NativeAsset(chain.BTC), big.NewInt(sats))
}

func pendingWith(amount, available int64) *PendingTransaction {
	return &PendingTransaction{
		Amount:    btcAmount(amount),
		Available: btcAmount(available),
		Fees:      btcAmount(500),
		State:     StateBuilt,
	}
}

func TestValidationOrder(t *testing.T) {
	dust := chain.BTC.DustLimit()
	supply := chain.BTC.MaxSupply()

	tests := []struct {
		name     string
		tx       *PendingTransaction
		expected ValidationState
	}{
		{"zero amount", pendingWith(0, 100_000), StateInvalidAmount},
		{"negative amount", pendingWith(-5, 100_000), StateInvalidAmount},
		{"below dust", pendingWith(100, 100_000), StateInvalidAmount},
		{"over max supply", func() *PendingTransaction {
			tx := pendingWith(0, 100_000)
			tx.Amount = chain.NewAmount(tx.Amount.Asset, new(big.Int).Add(supply, big.NewInt(1)))
			// Available is also raised so only the supply check can trip.
			tx.Available = chain.NewAmount(tx.Amount.Asset, new(big.Int).Lsh(supply, 2))
			return tx
		}(), StateOverMaximumLimit},
		{"over available", pendingWith(200_000, 100_000), StateInsufficientFunds},
		{"valid", pendingWith(50_000, 100_000), StateCanExecute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runChecks(tt.tx,
				checkPositiveAmount,
				checkDust(dust),
				checkMaxSupply(supply),
				checkBalance,
			)
			assert.Equal(t, tt.expected, got.State)
		})
	}
}

func TestPositiveAmountCheckedBeforeDust(t *testing.T) {
	// A zero amount is both non-positive and below dust; the positive
	// check must win.
	tx := pendingWith(0, 100_000)
	got := runChecks(tx, checkDust(chain.BTC.DustLimit()), checkPositiveAmount)
	assert.Equal(t, StateInvalidAmount, got.State)

	tx = pendingWith(0, 100_000)
	got = runChecks(tx, checkPositiveAmount, checkDust(chain.BTC.DustLimit()))
	assert.Equal(t, StateInvalidAmount, got.State)
}

func TestCheckGas(t *testing.T) {
	native := chain.NativeAsset(chain.ETH)

	tx := &PendingTransaction{
		GasAvailable: chain.NewAmount(native, big.NewInt(1_000)),
		Fees:         chain.NewAmount(native, big.NewInt(2_000)),
	}
	assert.Equal(t, StateInsufficientGas, checkGas(tx))

	tx.GasAvailable = chain.NewAmount(native, big.NewInt(2_000))
	assert.Equal(t, StateCanExecute, checkGas(tx))
}

func TestCheckOptions(t *testing.T) {
	tx := pendingWith(50_000, 100_000)
	assert.Equal(t, StateCanExecute, checkOptions(tx))

	tx.LargeTransactionWarning = true
	assert.Equal(t, StateOptionInvalid, checkOptions(tx))

	tx.AcknowledgeLargeTransaction()
	assert.Equal(t, StateCanExecute, checkOptions(tx))
}

func TestRequireExecutable(t *testing.T) {
	tx := pendingWith(50_000, 100_000)
	assert.ErrorIs(t, requireExecutable(tx), qerr.ErrNotValidated)

	tx.State = StateCanExecute
	assert.NoError(t, requireExecutable(tx))

	assert.ErrorIs(t, requireExecutable(nil), qerr.ErrNotValidated)
}

func TestStateFailureClassification(t *testing.T) {
	failures := []ValidationState{
		StateInvalidAmount, StateOverMaximumLimit, StateInsufficientFunds,
		StateInsufficientGas, StateTransactionInFlight, StateOptionInvalid, StateFailed,
	}
	for _, s := range failures {
		assert.True(t, s.IsFailure(), s.String())
	}
	for _, s := range []ValidationState{StateUninitialized, StateBuilt, StateValidating, StateCanExecute, StateExecuting, StateExecuted} {
		assert.False(t, s.IsFailure(), s.String())
	}
}

type fixedRateService struct {
	rate decimal.Decimal
	err  error
}

func (f *fixedRateService) Rate(_ context.Context, _ chain.Asset, _ string) (decimal.Decimal, error) {
	return f.rate, f.err
}

func TestBuildConfirmations(t *testing.T) {
	tx := pendingWith(50_000, 100_000)
	tx.SelectedFiatCurrency = "USD"
	tx.FeeLevel = chain.FeeLevelPriority

	source := Source{Asset: tx.Amount.Asset, Address: "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"}
	target := Target{Address: "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"}
	rates := &fixedRateService{rate: decimal.NewFromInt(100_000)}

	items, err := buildConfirmations(context.Background(), tx, source, target, rates)
	require.NoError(t, err)
	require.Len(t, items, 6)

	assert.Equal(t, ConfirmationSource, items[0].Kind)
	assert.Equal(t, source.Address, items[0].Crypto)
	assert.Equal(t, ConfirmationDestination, items[1].Kind)
	assert.Equal(t, target.Address, items[1].Crypto)

	// 50000 sats at 100000 USD/BTC is 50 USD.
	assert.Equal(t, ConfirmationAmount, items[2].Kind)
	assert.Equal(t, "50.00 USD", items[2].Fiat)
	assert.Equal(t, ConfirmationFee, items[3].Kind)
	assert.Equal(t, "0.50 USD", items[3].Fiat)

	assert.Equal(t, ConfirmationTotal, items[4].Kind)
	assert.Equal(t, "50.50 USD", items[4].Fiat)

	assert.Equal(t, ConfirmationFeeLevel, items[5].Kind)
	assert.Equal(t, "priority", items[5].Crypto)
}

func TestBuildConfirmationsSkipsTotalAcrossCurrencies(t *testing.T) {
	token := chain.TokenAsset(chain.ETH, "USDC", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6)
	tx := &PendingTransaction{
		Amount: chain.NewAmount(token, big.NewInt(25_000_000)),
		Fees:   chain.NewAmount(chain.NativeAsset(chain.ETH), big.NewInt(1e15)),
		State:  StateBuilt,
	}

	items, err := buildConfirmations(context.Background(), tx, Source{}, Target{}, nil)
	require.NoError(t, err)

	for _, item := range items {
		assert.NotEqual(t, ConfirmationTotal, item.Kind, "token fee is paid in ETH, no total line")
	}
}

func TestBuildConfirmationsPropagatesRateErrors(t *testing.T) {
	tx := pendingWith(50_000, 100_000)
	tx.SelectedFiatCurrency = "USD"
	rates := &fixedRateService{err: qerr.ErrNetworkError}

	_, err := buildConfirmations(context.Background(), tx, Source{}, Target{}, rates)
	assert.ErrorIs(t, err, qerr.ErrNetworkError)
}
