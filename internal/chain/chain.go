// Package chain defines asset identifiers, amount math, fee levels, and
// the narrow interfaces through which the wallet engine reaches its
// external collaborators.
package chain

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
)

// ID represents a supported blockchain.
type ID string

// Supported blockchain identifiers.
const (
	BTC ID = "btc"
	BCH ID = "bch"
	ETH ID = "eth"
)

// Family groups chains by their transaction model.
type Family int

// Chain families.
const (
	FamilyUTXO Family = iota
	FamilyAccount
)

// BIP44 coin types for derivation paths.
const (
	CoinTypeBTC uint32 = 0
	CoinTypeBCH uint32 = 145
	CoinTypeETH uint32 = 60
)

// Family returns the transaction model family of the chain.
func (id ID) Family() Family {
	if id == ETH {
		return FamilyAccount
	}
	return FamilyUTXO
}

// CoinType returns the BIP44 coin type for a chain.
func (id ID) CoinType() uint32 {
	switch id {
	case BTC:
		return CoinTypeBTC
	case BCH:
		return CoinTypeBCH
	case ETH:
		return CoinTypeETH
	default:
		return 0
	}
}

// Decimals returns the number of decimal places of the chain's native unit.
func (id ID) Decimals() int {
	if id == ETH {
		return 18
	}
	return 8
}

// DustLimit returns the minimum output value in satoshis for UTXO chains.
// ETH uses gas instead of dust limits, so returns 0.
func (id ID) DustLimit() uint64 {
	switch id {
	case BTC, BCH:
		return 546
	case ETH:
		return 0
	default:
		return 0
	}
}

// MaxSupply returns the maximum supply in smallest units, or nil if the
// chain has no fixed supply cap.
func (id ID) MaxSupply() *big.Int {
	switch id {
	case BTC, BCH:
		// 21 million coins in satoshis.
		return new(big.Int).Mul(big.NewInt(21_000_000), big.NewInt(1e8))
	default:
		return nil
	}
}

// String returns the chain identifier string.
func (id ID) String() string {
	return string(id)
}

// IsValid returns true if the chain ID is a known chain.
func (id ID) IsValid() bool {
	switch id {
	case BTC, BCH, ETH:
		return true
	default:
		return false
	}
}

// Asset identifies a spendable asset: a chain's native coin, or an ERC20
// token riding on an account-based chain.
type Asset struct {
	Chain    ID
	Symbol   string
	Decimals int

	// Contract is the token contract address; empty for native assets.
	Contract string
}

// NativeAsset returns the native asset of a chain.
func NativeAsset(id ID) Asset {
	symbol := map[ID]string{BTC: "BTC", BCH: "BCH", ETH: "ETH"}[id]
	return Asset{Chain: id, Symbol: symbol, Decimals: id.Decimals()}
}

// TokenAsset returns an ERC20 token asset on the given chain.
func TokenAsset(id ID, symbol, contract string, decimals int) Asset {
	return Asset{Chain: id, Symbol: symbol, Decimals: decimals, Contract: contract}
}

// IsToken reports whether the asset is a contract token rather than a
// native coin.
func (a Asset) IsToken() bool {
	return a.Contract != ""
}

// Amount is a value in an asset's smallest unit, tagged with its asset so
// cross-asset arithmetic mistakes surface as typed errors instead of
// silent unit confusion.
type Amount struct {
	Asset Asset
	Value *big.Int
}

// NewAmount creates an amount in the given asset.
func NewAmount(asset Asset, value *big.Int) Amount {
	if value == nil {
		value = big.NewInt(0)
	}
	return Amount{Asset: asset, Value: new(big.Int).Set(value)}
}

// ZeroAmount returns a zero-valued amount in the given asset.
func ZeroAmount(asset Asset) Amount {
	return Amount{Asset: asset, Value: big.NewInt(0)}
}

// SameCurrency reports whether two amounts share an asset.
func (a Amount) SameCurrency(b Amount) bool {
	return a.Asset.Chain == b.Asset.Chain && a.Asset.Contract == b.Asset.Contract
}

// IsZero reports whether the amount is zero or uninitialized.
func (a Amount) IsZero() bool {
	return a.Value == nil || a.Value.Sign() == 0
}

// String formats the amount as a decimal string with the asset symbol.
func (a Amount) String() string {
	if a.Value == nil {
		return "0 " + a.Asset.Symbol
	}
	return FormatDecimalAmount(a.Value, a.Asset.Decimals) + " " + a.Asset.Symbol
}

// FeeLevel selects which fee tier a transaction should pay.
type FeeLevel int

// Fee levels.
const (
	FeeLevelNone FeeLevel = iota
	FeeLevelRegular
	FeeLevelPriority
	FeeLevelCustom
)

// String returns the fee level name.
func (l FeeLevel) String() string {
	switch l {
	case FeeLevelRegular:
		return "regular"
	case FeeLevelPriority:
		return "priority"
	case FeeLevelCustom:
		return "custom"
	default:
		return "none"
	}
}

// UTXO represents an unspent transaction output.
type UTXO struct {
	TxID          string
	Vout          uint32
	Amount        uint64 // satoshis
	ScriptPubKey  string
	Address       string
	Confirmations uint32
}

// ExchangeRateService maps a crypto amount to fiat at a point in time.
// Used only for confirmation display, never for on-chain validity.
type ExchangeRateService interface {
	// Rate returns the fiat price of one whole unit of the asset.
	Rate(ctx context.Context, asset Asset, fiatCurrency string) (decimal.Decimal, error)
}

// ToFiat converts an amount to fiat using the given rate per whole unit.
func ToFiat(a Amount, rate decimal.Decimal) decimal.Decimal {
	if a.Value == nil {
		return decimal.Zero
	}
	whole := decimal.NewFromBigInt(a.Value, -int32(a.Asset.Decimals))
	return whole.Mul(rate)
}
