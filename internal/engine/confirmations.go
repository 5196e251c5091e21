package engine

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// ConfirmationKind identifies a confirmation line item.
type ConfirmationKind int

// Confirmation line item kinds, in display order.
const (
	ConfirmationSource ConfirmationKind = iota
	ConfirmationDestination
	ConfirmationAmount
	ConfirmationFee
	ConfirmationTotal
	ConfirmationFeeLevel
)

// Confirmation is one human-facing line item shown before signing.
type Confirmation struct {
	Kind   ConfirmationKind
	Label  string
	Crypto string
	Fiat   string
}

// buildConfirmations assembles the ordered confirmation list from the
// current pending transaction. It reads exchange rates for display and
// has no other side effects; on-chain validity never depends on it.
func buildConfirmations(ctx context.Context, tx *PendingTransaction, source Source, target Target, rates chain.ExchangeRateService) ([]Confirmation, error) {
	amountFiat, err := fiatString(ctx, rates, tx.Amount, tx.SelectedFiatCurrency)
	if err != nil {
		return nil, err
	}
	feeFiat, err := fiatString(ctx, rates, tx.Fees, tx.SelectedFiatCurrency)
	if err != nil {
		return nil, err
	}

	items := []Confirmation{
		{Kind: ConfirmationSource, Label: "From", Crypto: source.Address},
		{Kind: ConfirmationDestination, Label: "To", Crypto: target.Address},
		{Kind: ConfirmationAmount, Label: "Amount", Crypto: tx.Amount.String(), Fiat: amountFiat},
		{Kind: ConfirmationFee, Label: "Fee", Crypto: tx.Fees.String(), Fiat: feeFiat},
	}

	if total, ok := totalAmount(tx); ok {
		totalFiat, err := fiatString(ctx, rates, total, tx.SelectedFiatCurrency)
		if err != nil {
			return nil, err
		}
		items = append(items, Confirmation{
			Kind:   ConfirmationTotal,
			Label:  "Total",
			Crypto: total.String(),
			Fiat:   totalFiat,
		})
	}

	items = append(items, Confirmation{
		Kind:   ConfirmationFeeLevel,
		Label:  "Fee level",
		Crypto: tx.FeeLevel.String(),
	})
	return items, nil
}

// totalAmount returns amount + fee when both are in the same currency.
// Token moves pay fees in the native coin, so no meaningful total
// exists and the line is omitted.
func totalAmount(tx *PendingTransaction) (chain.Amount, bool) {
	if !tx.Amount.SameCurrency(tx.Fees) {
		return chain.Amount{}, false
	}
	sum := new(big.Int).Add(tx.Amount.Value, tx.Fees.Value)
	return chain.NewAmount(tx.Amount.Asset, sum), true
}

func fiatString(ctx context.Context, rates chain.ExchangeRateService, a chain.Amount, currency string) (string, error) {
	if rates == nil || currency == "" || a.Value == nil {
		return "", nil
	}
	rate, err := rates.Rate(ctx, a.Asset, currency)
	if err != nil {
		return "", qerr.Wrap(err, "fetching exchange rate")
	}
	return formatFiat(chain.ToFiat(a, rate), currency), nil
}

func formatFiat(v decimal.Decimal, currency string) string {
	return v.StringFixed(2) + " " + currency
}
