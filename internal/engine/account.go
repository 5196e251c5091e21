package engine

import (
	"context"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/quillwallet/quill/internal/chain"
	"github.com/quillwallet/quill/internal/chain/eth"
	"github.com/quillwallet/quill/internal/keys"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// AccountConfig carries the static parameters of an account-chain
// engine.
type AccountConfig struct {
	// ChainID is the EIP-155 chain id used for replay-protected signing.
	ChainID *big.Int

	// ExtraGasLimit is added in wei on top of price*limit, covering
	// bridge surcharges.
	ExtraGasLimit uint64

	FiatCurrency string

	// LargeTxThreshold raises the large-transaction warning when the
	// amount in smallest units reaches it. Nil disables the warning.
	LargeTxThreshold *big.Int

	// AddressIndex selects the receive-branch index of the signing key.
	AddressIndex uint32

	// Retry bounds the collaborator fetches. Zero values take the
	// package defaults.
	Retry chain.RetryConfig
}

// AccountDeps are the injected collaborators of an account-chain
// engine.
type AccountDeps struct {
	Fees        eth.FeeService
	Balances    eth.BalanceService
	Nonces      eth.NonceSource
	Broadcaster eth.Broadcaster
	Rates       chain.ExchangeRateService

	// Limiter paces outbound collaborator calls per endpoint; nil
	// disables pacing.
	Limiter *chain.RateLimiter

	// SealedSeed is the age-encrypted wallet seed; Execute opens it
	// with the caller's second password.
	SealedSeed []byte

	Logger *zap.Logger
}

// AccountEngine owns the single pending transaction of an
// account-based (Ethereum family) account. The transferred asset may be
// the native coin or an ERC20 token; gas is always paid in the native
// coin, and the two balances are validated independently.
type AccountEngine struct {
	cfg  AccountConfig
	deps AccountDeps
	log  *zap.Logger

	mu         sync.Mutex
	started    bool
	source     Source
	target     Target
	feeLevel   chain.FeeLevel
	customGwei uint64
}

// NewAccountEngine creates an unarmed engine.
func NewAccountEngine(cfg AccountConfig, deps AccountDeps) *AccountEngine {
	if cfg.ChainID == nil {
		cfg.ChainID = big.NewInt(1)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = chain.DefaultRetryConfig()
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountEngine{
		cfg:      cfg,
		deps:     deps,
		log:      log.With(zap.String("chain", chain.ETH.String())),
		feeLevel: chain.FeeLevelRegular,
	}
}

// Start arms the engine with a source/target pair.
func (e *AccountEngine) Start(source Source, target Target) error {
	if source.Asset.Chain != chain.ETH {
		return qerr.WithDetails(qerr.ErrCurrencyMismatch, map[string]string{
			"engine_chain": chain.ETH.String(),
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
func (e *AccountEngine) SetTarget(target Target) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.target = target
}

func (e *AccountEngine) armed() bool {
	return e.started && e.target.Address != ""
}

// InitializeTransaction returns a fresh zero-amount pending transaction
// in the source asset.
func (e *AccountEngine) InitializeTransaction() (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return nil, qerr.ErrEngineNotStarted
	}
	native := chain.NativeAsset(chain.ETH)
	return &PendingTransaction{
		Amount:               chain.ZeroAmount(e.source.Asset),
		Available:            chain.ZeroAmount(e.source.Asset),
		Fees:                 chain.ZeroAmount(native),
		GasAvailable:         chain.ZeroAmount(native),
		FeeLevel:             e.feeLevel,
		SelectedFiatCurrency: e.cfg.FiatCurrency,
		State:                StateUninitialized,
	}, nil
}

// Update recomputes the fee, the spendable balance of the transferred
// asset, and the gas-paying native balance for a candidate amount.
// Called before the engine is armed, it returns the transaction
// unchanged with a typed error.
func (e *AccountEngine) Update(ctx context.Context, tx *PendingTransaction, amount chain.Amount) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(ctx, tx, amount)
}

// UpdateDecimal parses a human-entered decimal string in the source
// asset's precision and runs Update with it.
func (e *AccountEngine) UpdateDecimal(ctx context.Context, tx *PendingTransaction, text string) (*PendingTransaction, error) {
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

func (e *AccountEngine) update(ctx context.Context, tx *PendingTransaction, amount chain.Amount) (*PendingTransaction, error) {
	if !e.armed() {
		return tx, qerr.ErrEngineNotStarted
	}
	if !amount.SameCurrency(chain.Amount{Asset: e.source.Asset}) {
		return tx, qerr.WithDetails(qerr.ErrCurrencyMismatch, map[string]string{
			"expected": e.source.Asset.Symbol,
			"got":      amount.Asset.Symbol,
		})
	}

	model, err := e.feeModel(ctx)
	if err != nil {
		return tx, err
	}
	isContract := e.source.Asset.IsToken()
	if err := model.Validate(e.feeLevel, e.customGwei, isContract); err != nil {
		return tx, err
	}
	fee := model.AbsoluteFee(e.feeLevel, e.customGwei, isContract)

	native, err := chain.RetryWithConfig(ctx, e.cfg.Retry, func() (*big.Int, error) {
		if err := e.wait(ctx, "balances"); err != nil {
			return nil, err
		}
		return e.deps.Balances.NativeBalance(ctx, e.source.Address)
	})
	if err != nil {
		return tx, qerr.Wrap(err, "fetching native balance")
	}

	available := new(big.Int)
	if isContract {
		tokenBalance, err := chain.RetryWithConfig(ctx, e.cfg.Retry, func() (*big.Int, error) {
			if err := e.wait(ctx, "balances"); err != nil {
				return nil, err
			}
			return e.deps.Balances.TokenBalance(ctx, e.source.Address, e.source.Asset.Contract)
		})
		if err != nil {
			return tx, qerr.Wrap(err, "fetching token balance")
		}
		available.Set(tokenBalance)
	} else {
		// Max spendable native amount is the balance net of the fee.
		available.Sub(native, fee)
		if available.Sign() < 0 {
			available.SetInt64(0)
		}
	}

	nativeAsset := chain.NativeAsset(chain.ETH)
	tx.Amount = amount
	tx.Available = chain.NewAmount(e.source.Asset, available)
	tx.Fees = chain.NewAmount(nativeAsset, fee)
	tx.GasAvailable = chain.NewAmount(nativeAsset, native)
	tx.FeeLevel = e.feeLevel
	tx.LargeTransactionWarning = e.cfg.LargeTxThreshold != nil &&
		amount.Value != nil && amount.Value.Cmp(e.cfg.LargeTxThreshold) >= 0
	tx.State = StateBuilt
	return tx, nil
}

// ValidateAmount runs the ordered amount checks: positive amount, max
// supply, balance, then gas sufficiency.
func (e *AccountEngine) ValidateAmount(tx *PendingTransaction) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return tx, qerr.ErrEngineNotStarted
	}
	return runChecks(tx, e.amountChecks()...), nil
}

// DoValidateAll runs the full validation chain: the amount checks plus
// target-address shape, the in-flight transaction rule, and option
// acknowledgement.
func (e *AccountEngine) DoValidateAll(ctx context.Context, tx *PendingTransaction) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed() {
		return tx, qerr.ErrEngineNotStarted
	}
	if !eth.IsValidAddress(e.target.Address) {
		return tx, qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
			"address": e.target.Address,
		})
	}

	inFlight, err := e.deps.Broadcaster.IsTransactionInFlight(ctx, e.source.Address)
	if err != nil {
		return tx, qerr.Wrap(err, "checking in-flight transaction")
	}

	checks := e.amountChecks()
	checks = append(checks, func(tx *PendingTransaction) ValidationState {
		if inFlight {
			return StateTransactionInFlight
		}
		return StateCanExecute
	}, checkOptions)
	return runChecks(tx, checks...), nil
}

func (e *AccountEngine) amountChecks() []checkFn {
	return []checkFn{
		checkPositiveAmount,
		checkMaxSupply(chain.ETH.MaxSupply()),
		checkBalance,
		checkGas,
	}
}

// DoBuildConfirmations fills the transaction's confirmation line items.
func (e *AccountEngine) DoBuildConfirmations(ctx context.Context, tx *PendingTransaction) (*PendingTransaction, error) {
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
func (e *AccountEngine) DoUpdateFeeLevel(ctx context.Context, tx *PendingTransaction, level chain.FeeLevel, customGwei uint64) (*PendingTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feeLevel = level
	e.customGwei = customGwei
	return e.update(ctx, tx, tx.Amount)
}

// Execute re-derives the costed candidate from the current pending
// transaction, opens the sealed seed with the second password, signs
// with the account's key, and publishes with the local/reported hash
// cross-check. The transaction must have passed DoValidateAll.
func (e *AccountEngine) Execute(ctx context.Context, tx *PendingTransaction, secondPassword string) (*TransactionResult, error) {
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

func (e *AccountEngine) execute(ctx context.Context, tx *PendingTransaction, secondPassword string) (*TransactionResult, error) {
	model, err := e.feeModel(ctx)
	if err != nil {
		return nil, err
	}
	isContract := e.source.Asset.IsToken()
	gasPrice := model.GasPrice(e.feeLevel, e.customGwei)
	gasLimit := model.GasLimit(isContract)

	if err := e.wait(ctx, "nonce"); err != nil {
		return nil, err
	}
	nonce, err := e.deps.Nonces.NextNonce(ctx, e.source.Address)
	if err != nil {
		return nil, qerr.Wrap(err, "fetching nonce")
	}

	var candidate *eth.Candidate
	if isContract {
		candidate = eth.NewERC20Candidate(e.source.Asset.Contract, e.target.Address, tx.Amount.Value, nonce, gasPrice, gasLimit)
	} else {
		candidate = eth.NewTransferCandidate(e.target.Address, tx.Amount.Value, nonce, gasPrice, gasLimit, nil)
	}
	input, err := candidate.Cost(e.cfg.ChainID)
	if err != nil {
		return nil, err
	}

	privateKey, err := e.signingKey(secondPassword)
	if err != nil {
		return nil, err
	}
	signed, err := eth.Sign(input, privateKey)
	if err != nil {
		return nil, err
	}
	if err := e.wait(ctx, "broadcast"); err != nil {
		return nil, err
	}
	hash, err := eth.Publish(ctx, e.deps.Broadcaster, signed)
	if err != nil {
		return nil, err
	}
	return &TransactionResult{Hash: hash, Amount: tx.Amount}, nil
}

// signingKey opens the sealed seed and derives the account's private
// key bytes. eth.Sign zeroes the returned slice.
func (e *AccountEngine) signingKey(secondPassword string) ([]byte, error) {
	seed, err := keys.OpenSeed(e.deps.SealedSeed, secondPassword)
	if err != nil {
		return nil, err
	}
	defer keys.ZeroBytes(seed)

	wallet, err := keys.NewHDWalletFromSeed(seed)
	if err != nil {
		return nil, err
	}
	deriv, err := wallet.Account(chain.ETH, e.source.AccountIndex, keys.Legacy)
	if err != nil {
		return nil, err
	}
	priv, err := deriv.ChildPrivateKey(keys.ReceiveBranch, e.cfg.AddressIndex)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()
	return append([]byte(nil), priv.Serialize()...), nil
}

// Restart resets only the transaction target, reusing the balance and
// fee data already on the pending transaction.
func (e *AccountEngine) Restart(tx *PendingTransaction) *PendingTransaction {
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

func (e *AccountEngine) feeModel(ctx context.Context) (*eth.FeeModel, error) {
	fees, err := chain.RetryWithConfig(ctx, e.cfg.Retry, func() (*eth.NetworkFees, error) {
		if err := e.wait(ctx, "fees"); err != nil {
			return nil, err
		}
		return e.deps.Fees.Fees(ctx)
	})
	if err != nil {
		return nil, qerr.Wrap(err, "fetching network fees")
	}
	return eth.NewFeeModel(*fees, e.cfg.ExtraGasLimit), nil
}

// wait paces an outbound collaborator call on the shared limiter.
func (e *AccountEngine) wait(ctx context.Context, endpoint string) error {
	if e.deps.Limiter == nil {
		return nil
	}
	return e.deps.Limiter.Wait(ctx, endpoint)
}
