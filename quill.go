// Package quill is the public surface of the Quill wallet core. It
// re-exports the transaction engines, the quote engine, key derivation,
// and the shared chain types so that embedding applications never reach
// into internal packages.
package quill

import (
	"github.com/quillwallet/quill/internal/chain"
	"github.com/quillwallet/quill/internal/config"
	"github.com/quillwallet/quill/internal/engine"
	"github.com/quillwallet/quill/internal/keys"
	"github.com/quillwallet/quill/internal/quotes"
)

// Chain identifiers and shared value types.
type (
	ChainID     = chain.ID
	Asset       = chain.Asset
	Amount      = chain.Amount
	FeeLevel    = chain.FeeLevel
	UTXO        = chain.UTXO
	RetryConfig = chain.RetryConfig
	RateLimiter = chain.RateLimiter

	ExchangeRateService = chain.ExchangeRateService
)

// Supported chains.
const (
	BTC = chain.BTC
	BCH = chain.BCH
	ETH = chain.ETH
)

// Fee levels.
const (
	FeeLevelNone     = chain.FeeLevelNone
	FeeLevelRegular  = chain.FeeLevelRegular
	FeeLevelPriority = chain.FeeLevelPriority
	FeeLevelCustom   = chain.FeeLevelCustom
)

// NativeAsset returns the native asset of a chain.
func NativeAsset(id ChainID) Asset { return chain.NativeAsset(id) }

// TokenAsset returns a token asset on the given chain.
func TokenAsset(id ChainID, symbol, contract string, decimals int) Asset {
	return chain.TokenAsset(id, symbol, contract, decimals)
}

// NewRateLimiter creates a per-endpoint token-bucket limiter shared by
// the engines' collaborator calls.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return chain.NewRateLimiter(ratePerSecond, burst)
}

// Transaction engines.
type (
	Source             = engine.Source
	Target             = engine.Target
	PendingTransaction = engine.PendingTransaction
	TransactionResult  = engine.TransactionResult
	ValidationState    = engine.ValidationState
	Confirmation       = engine.Confirmation

	UTXOConfig    = engine.UTXOConfig
	UTXODeps      = engine.UTXODeps
	UTXOEngine    = engine.UTXOEngine
	AccountConfig = engine.AccountConfig
	AccountDeps   = engine.AccountDeps
	AccountEngine = engine.AccountEngine
)

// NewUTXOEngine creates an unarmed UTXO-chain engine.
func NewUTXOEngine(cfg UTXOConfig, deps UTXODeps) *UTXOEngine {
	return engine.NewUTXOEngine(cfg, deps)
}

// NewAccountEngine creates an unarmed account-chain engine.
func NewAccountEngine(cfg AccountConfig, deps AccountDeps) *AccountEngine {
	return engine.NewAccountEngine(cfg, deps)
}

// Quotes.
type (
	QuoteDirection = quotes.Direction
	QuotePair      = quotes.Pair
	QuoteTier      = quotes.Tier
	Quote          = quotes.Quote
	PricedQuote    = quotes.PricedQuote
	QuoteService   = quotes.QuoteService
	QuotesConfig   = quotes.Config
	QuotesEngine   = quotes.Engine
)

// Quote directions.
const (
	Buy  = quotes.Buy
	Sell = quotes.Sell
)

// NewQuotesEngine creates a stopped quote polling engine.
func NewQuotesEngine(svc QuoteService, cfg QuotesConfig, limiter *RateLimiter) *QuotesEngine {
	return quotes.NewEngine(svc, cfg, limiter, nil)
}

// Key derivation.
type (
	HDWallet         = keys.HDWallet
	DerivationScheme = keys.Scheme
)

// Derivation schemes.
const (
	Legacy = keys.Legacy
	Segwit = keys.Segwit
)

// GenerateMnemonic creates a new BIP39 mnemonic of 12 or 24 words.
func GenerateMnemonic(wordCount int) (string, error) {
	return keys.GenerateMnemonic(wordCount)
}

// NewHDWallet derives the wallet master key from a mnemonic and an
// optional passphrase.
func NewHDWallet(mnemonic, passphrase string) (*HDWallet, error) {
	return keys.NewHDWallet(mnemonic, passphrase)
}

// MnemonicToSeed derives the BIP39 seed bytes for sealing.
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	return keys.MnemonicToSeed(mnemonic, passphrase)
}

// SealSeed encrypts a wallet seed under a password for engine use.
func SealSeed(seed []byte, password string) ([]byte, error) {
	return keys.SealSeed(seed, password)
}

// Config is the wallet core configuration.
type Config = config.Config

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config { return config.Defaults() }
