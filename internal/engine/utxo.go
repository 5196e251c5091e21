package engine

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"github.com/quillwallet/quill/internal/chain"
	"github.com/quillwallet/quill/internal/chain/utxo"
	"github.com/quillwallet/quill/internal/keys"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// defaultKeyScanLimit bounds the address scan when resolving signing
// keys, matching the BIP44 gap limit.
const defaultKeyScanLimit = 20

// UTXOConfig carries the static parameters of a UTXO-chain engine.
type UTXOConfig struct {
	Chain        chain.ID
	Scheme       keys.Scheme
	FiatCurrency string

	// LargeTxThreshold raises the large-transaction warning when the
	// amount in satoshis reaches it. Zero disables the warning.
	LargeTxThreshold uint64

	KeyScanLimit uint32

	// Retry bounds the collaborator fetches. Zero values take the
	// package defaults.
	Retry chain.RetryConfig
}

// UTXODeps are the injected collaborators of a UTXO-chain engine.
type UTXODeps struct {
	UTXOs       utxo.UTXOService
	Fees        utxo.FeeService
	Broadcaster utxo.Broadcaster
	Rates       chain.ExchangeRateService

	// Limiter paces outbound collaborator calls per endpoint; nil
	// disables pacing.
	Limiter *chain.RateLimiter

	// SealedSeed is the age-encrypted wallet seed; Execute opens it
	// with the caller's second password.
	SealedSeed []byte

	Logger *zap.Logger
}

// UTXOEngine owns the single pending transaction of a UTXO-chain
// account. All operations require the engine to be armed via Start.
type UTXOEngine struct {
	cfg  UTXOConfig
	deps UTXODeps
	log  *zap.Logger

	mu         sync.Mutex
	started    bool
	source     Source
	target     Target
	feeLevel   chain.FeeLevel
	customRate uint64
}

// NewUTXOEngine creates an unarmed engine.
func NewUTXOEngine(cfg UTXOConfig, deps UTXODeps) *UTXOEngine {
	if cfg.KeyScanLimit == 0 {
		cfg.KeyScanLimit = defaultKeyScanLimit
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = chain.DefaultRetryConfig()
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &UTXOEngine{
		cfg:      cfg,
		deps:     deps,
		log:      log.With(zap.String("chain", cfg.Chain.String())),
		feeLevel: chain.FeeLevelRegular,
	}
}

// Start arms the engine with a source/target pair.
func (e *UTXOEngine) Start(source Source, target Target) error {
	if source.Asset.Chain != e.cfg.Chain {
		return qerr.WithDetails(qerr.ErrCurrencyMismatch, map[string]string{
			"engine_chain": e.cfg.Chain.String(),
			"source_chain": source.Asset.Chain.String(),
		})
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	e.source = source
	e.target = target
	return nil
}

// SetTarget re-arms the engine with a new target after Restart.
func (e *UTXOEngine) SetTarget(target Target) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.target = target
}

func (e *UTXOEngine) armed() bool {
	return e.started && e.target.Address != ""
}

// InitializeTransaction returns a fresh zero-amount pending transaction
// in the source asset, carrying the configured display currency.
func (e *UTXOEngine) InitializeTransaction() (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return nil, qerr.ErrEngineNotStarted
	}
	return &PendingTransaction{
		Amount:               chain.ZeroAmount(e.source.Asset),
		Available:            chain.ZeroAmount(e.source.Asset),
		Fees:                 chain.ZeroAmount(e.source.Asset),
		FeeLevel:             e.feeLevel,
		SelectedFiatCurrency: e.cfg.FiatCurrency,
		State:                StateUninitialized,
	}, nil
}

// Update recomputes available balance and fees for a candidate amount
// by running coin selection. Classified selection failures degrade to
// the sweep candidate's figures instead of erroring. Called before the
// engine is armed, it returns the transaction unchanged with a typed
// error.
func (e *UTXOEngine) Update(ctx context.Context, tx *PendingTransaction, amount chain.Amount) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(ctx, tx, amount)
}

// UpdateDecimal parses a human-entered decimal string in the source
// asset's precision and runs Update with it.
func (e *UTXOEngine) UpdateDecimal(ctx context.Context, tx *PendingTransaction, text string) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return tx, qerr.ErrEngineNotStarted
	}
	value, err := chain.ParseDecimalAmount(text, e.source.Asset.Decimals)
	if err != nil {
		return tx, err
	}
	return e.update(ctx, tx, chain.NewAmount(e.source.Asset, value))
}

func (e *UTXOEngine) update(ctx context.Context, tx *PendingTransaction, amount chain.Amount) (*PendingTransaction, error) {
	if !e.armed() {
		return tx, qerr.ErrEngineNotStarted
	}
	if !amount.SameCurrency(chain.Amount{Asset: e.source.Asset}) {
		return tx, qerr.WithDetails(qerr.ErrCurrencyMismatch, map[string]string{
			"expected": e.source.Asset.Symbol,
			"got":      amount.Asset.Symbol,
		})
	}

	rate, err := e.currentRate(ctx)
	if err != nil {
		return tx, err
	}
	outputs, err := chain.RetryWithConfig(ctx, e.cfg.Retry, func() ([]chain.UTXO, error) {
		if err := e.wait(ctx, "utxos"); err != nil {
			return nil, err
		}
		return e.deps.UTXOs.SpendableOutputs(ctx, e.source.Address)
	})
	if err != nil {
		return tx, qerr.Wrap(err, "fetching spendable outputs")
	}

	proposal := utxo.Proposal{
		To:       e.target.Address,
		ChangeTo: e.source.ChangeAddress,
		Amount:   satoshis(amount),
		FeeRate:  rate,
		Source:   e.source.Address,
	}

	// The sweep over all outputs is the maximum sendable amount.
	sweep := utxo.SweepCandidate(proposal, outputs)
	fees := sweep.SweepFee

	candidate, err := utxo.SelectCoins(proposal, outputs, e.cfg.Chain.DustLimit())
	switch {
	case err == nil:
		fees = candidate.Fee
	default:
		var selErr *utxo.SelectionError
		if !qerr.As(err, &selErr) {
			return tx, err
		}
		e.log.Debug("coin selection degraded to sweep",
			zap.String("reason", selErr.Reason.String()),
			zap.Uint64("sweep_amount", sweep.SweepAmount))
	}

	tx.Amount = amount
	tx.Available = chain.NewAmount(e.source.Asset, chain.AmountToBigInt(sweep.SweepAmount))
	tx.Fees = chain.NewAmount(e.source.Asset, chain.AmountToBigInt(fees))
	tx.FeeLevel = e.feeLevel
	tx.LargeTransactionWarning = e.cfg.LargeTxThreshold > 0 && satoshis(amount) >= e.cfg.LargeTxThreshold
	tx.State = StateBuilt
	return tx, nil
}

// ValidateAmount runs the ordered amount checks: positive amount, dust,
// max supply, then balance.
func (e *UTXOEngine) ValidateAmount(tx *PendingTransaction) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return tx, qerr.ErrEngineNotStarted
	}
	return runChecks(tx, e.amountChecks()...), nil
}

// DoValidateAll runs the full validation chain: the amount checks plus
// target-address shape and option acknowledgement. All checks are local;
// UTXO chains have no in-flight transaction rule.
func (e *UTXOEngine) DoValidateAll(_ context.Context, tx *PendingTransaction) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return tx, qerr.ErrEngineNotStarted
	}
	if _, err := btcutil.DecodeAddress(e.target.Address, e.params()); err != nil {
		return tx, qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
			"address": e.target.Address,
		})
	}
	checks := append(e.amountChecks(), checkOptions)
	return runChecks(tx, checks...), nil
}

func (e *UTXOEngine) amountChecks() []checkFn {
	return []checkFn{
		checkPositiveAmount,
		checkDust(e.cfg.Chain.DustLimit()),
		checkMaxSupply(e.cfg.Chain.MaxSupply()),
		checkBalance,
	}
}

// DoBuildConfirmations fills the transaction's confirmation line items.
func (e *UTXOEngine) DoBuildConfirmations(ctx context.Context, tx *PendingTransaction) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return tx, qerr.ErrEngineNotStarted
	}
	items, err := buildConfirmations(ctx, tx, e.source, e.target, e.deps.Rates)
	if err != nil {
		return tx, err
	}
	tx.Confirmations = items
	return tx, nil
}

// DoUpdateFeeLevel switches the fee level and reprices the pending
// transaction at its current amount.
func (e *UTXOEngine) DoUpdateFeeLevel(ctx context.Context, tx *PendingTransaction, level chain.FeeLevel, customRate uint64) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feeLevel = level
	e.customRate = customRate
	return e.update(ctx, tx, tx.Amount)
}

// Execute re-derives the candidate from the current pending
// transaction, opens the sealed seed with the second password, signs
// every input, and broadcasts. The transaction must have passed
// DoValidateAll.
func (e *UTXOEngine) Execute(ctx context.Context, tx *PendingTransaction, secondPassword string) (*TransactionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return nil, qerr.ErrEngineNotStarted
	}
	if err := requireExecutable(tx); err != nil {
		return nil, err
	}
	tx.State = StateExecuting

	result, err := e.execute(ctx, tx, secondPassword)
	if err != nil {
		tx.State = StateFailed
		e.log.Warn("execution failed", zap.Error(err))
		return nil, err
	}
	tx.State = StateExecuted
	e.log.Info("transaction broadcast",
		zap.String("hash", result.Hash),
		zap.String("amount", result.Amount.String()))
	return result, nil
}

func (e *UTXOEngine) execute(ctx context.Context, tx *PendingTransaction, secondPassword string) (*TransactionResult, error) {
	rate, err := e.currentRate(ctx)
	if err != nil {
		return nil, err
	}
	proposal := utxo.Proposal{
		To:       e.target.Address,
		ChangeTo: e.source.ChangeAddress,
		Amount:   satoshis(tx.Amount),
		FeeRate:  rate,
		Source:   e.source.Address,
	}
	if err := e.wait(ctx, "utxos"); err != nil {
		return nil, err
	}
	candidate, err := utxo.BuildCandidate(ctx, e.deps.UTXOs, proposal, e.cfg.Chain.DustLimit())
	if err != nil {
		return nil, err
	}

	seed, err := keys.OpenSeed(e.deps.SealedSeed, secondPassword)
	if err != nil {
		return nil, err
	}
	defer keys.ZeroBytes(seed)

	wallet, err := keys.NewHDWalletFromSeed(seed)
	if err != nil {
		return nil, err
	}
	deriv, err := wallet.Account(e.cfg.Chain, e.source.AccountIndex, e.cfg.Scheme)
	if err != nil {
		return nil, err
	}

	signed, err := utxo.Sign(candidate, &derivationKeySource{deriv: deriv, limit: e.cfg.KeyScanLimit}, e.params())
	if err != nil {
		return nil, err
	}
	if err := e.wait(ctx, "broadcast"); err != nil {
		return nil, err
	}
	hash, err := utxo.Publish(ctx, e.deps.Broadcaster, signed)
	if err != nil {
		return nil, err
	}
	sent := chain.NewAmount(e.source.Asset, chain.AmountToBigInt(candidate.Amount()))
	return &TransactionResult{Hash: hash, Amount: sent}, nil
}

// Restart resets only the transaction target, reusing the balance and
// fee data already on the pending transaction.
func (e *UTXOEngine) Restart(tx *PendingTransaction) *PendingTransaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.target = Target{}
	tx.Amount = chain.ZeroAmount(e.source.Asset)
	tx.Confirmations = nil
	tx.LargeTransactionWarning = false
	tx.LargeTransactionAcknowledged = false
	tx.State = StateUninitialized
	return tx
}

func (e *UTXOEngine) currentRate(ctx context.Context) (uint64, error) {
	fees, err := chain.RetryWithConfig(ctx, e.cfg.Retry, func() (*utxo.NetworkFees, error) {
		if err := e.wait(ctx, "fees"); err != nil {
			return nil, err
		}
		return e.deps.Fees.Fees(ctx)
	})
	if err != nil {
		return 0, qerr.Wrap(err, "fetching network fees")
	}
	return utxo.NewFeeModel(fees).Rate(e.feeLevel, e.customRate)
}

// wait paces an outbound collaborator call on the shared limiter.
func (e *UTXOEngine) wait(ctx context.Context, endpoint string) error {
	if e.deps.Limiter == nil {
		return nil
	}
	return e.deps.Limiter.Wait(ctx, endpoint)
}

func (e *UTXOEngine) params() *chaincfg.Params {
	return &chaincfg.MainNetParams
}

// satoshis clamps an amount to a non-negative satoshi count.
func satoshis(a chain.Amount) uint64 {
	if a.Value == nil || a.Value.Sign() <= 0 || !a.Value.IsUint64() {
		return 0
	}
	return a.Value.Uint64()
}

// derivationKeySource resolves signing keys by scanning the receive and
// change branches of the source account's derivation.
type derivationKeySource struct {
	deriv *keys.Derivation
	limit uint32
}

func (s *derivationKeySource) PrivateKey(address string) (*btcec.PrivateKey, error) {
	for index := uint32(0); index < s.limit; index++ {
		for _, branch := range []uint32{keys.ReceiveBranch, keys.ChangeBranch} {
			derived, err := s.addressAt(branch, index)
			if err != nil {
				return nil, err
			}
			if derived == address {
				return s.deriv.ChildPrivateKey(branch, index)
			}
		}
	}
	return nil, qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
		"address": address,
		"reason":  "no key found within scan limit",
	})
}

func (s *derivationKeySource) addressAt(branch, index uint32) (string, error) {
	if branch == keys.ChangeBranch {
		return s.deriv.ChangeAddress(index)
	}
	return s.deriv.ReceiveAddress(index)
}
