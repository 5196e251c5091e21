package engine

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/quillwallet/quill/internal/chain"
	"github.com/quillwallet/quill/internal/chain/eth"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

const (
	testEthAddress    = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	testEthRecipient  = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	testUSDCContract  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	oneEther          = 1e18
	testNativeBalance = 2 * oneEther
)

func ethAmountWei(wei int64) chain.Amount {
	return chain.NewAmount(chain.NativeAsset(chain.ETH), big.NewInt(wei))
}

type stubEthFeeService struct {
	fees *eth.NetworkFees
	err  error
}

func (s *stubEthFeeService) Fees(_ context.Context) (*eth.NetworkFees, error) {
	return s.fees, s.err
}

type stubBalanceService struct {
	native   *big.Int
	token    *big.Int
	err      error
	failures int
	calls    int
}

func (s *stubBalanceService) NativeBalance(_ context.Context, _ string) (*big.Int, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, qerr.ErrNetworkError
	}
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.native), nil
}

func (s *stubBalanceService) TokenBalance(_ context.Context, _, _ string) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.token), nil
}

type stubNonceSource struct{ nonce uint64 }

func (s *stubNonceSource) NextNonce(_ context.Context, _ string) (uint64, error) {
	return s.nonce, nil
}

// stubEthBroadcaster echoes the keccak hash of whatever it receives,
// mimicking a well-behaved node.
type stubEthBroadcaster struct {
	inFlight    bool
	inFlightErr error
	corrupt     bool
	gotRaw      []byte
}

func (s *stubEthBroadcaster) Broadcast(_ context.Context, encoded []byte) (string, error) {
	s.gotRaw = encoded
	if s.corrupt {
		return "0x" + hex.EncodeToString(make([]byte, 32)), nil
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(encoded)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

func (s *stubEthBroadcaster) IsTransactionInFlight(_ context.Context, _ string) (bool, error) {
	return s.inFlight, s.inFlightErr
}

type accountFixture struct {
	engine      *AccountEngine
	fees        *stubEthFeeService
	balances    *stubBalanceService
	broadcaster *stubEthBroadcaster
}

func newAccountFixture(t *testing.T, sealed []byte) *accountFixture {
	t.Helper()
	f := &accountFixture{
		fees: &stubEthFeeService{fees: &eth.NetworkFees{
			RegularGwei:      20,
			PriorityGwei:     40,
			GasLimit:         21_000,
			GasLimitContract: 65_000,
		}},
		balances: &stubBalanceService{
			native: big.NewInt(testNativeBalance),
			token:  big.NewInt(500_000_000), // 500 USDC
		},
		broadcaster: &stubEthBroadcaster{},
	}
	f.engine = NewAccountEngine(
		AccountConfig{ChainID: big.NewInt(1), FiatCurrency: "USD", Retry: testRetryConfig()},
		AccountDeps{
			Fees:        f.fees,
			Balances:    f.balances,
			Nonces:      &stubNonceSource{nonce: 7},
			Broadcaster: f.broadcaster,
			Rates:       &fixedRateService{rate: decimal.NewFromInt(3_000)},
			Limiter:     chain.NewRateLimiter(1000, 1000),
			SealedSeed:  sealed,
		},
	)
	return f
}

func (f *accountFixture) start(t *testing.T, asset chain.Asset) {
	t.Helper()
	source := Source{Asset: asset, Address: testEthAddress}
	require.NoError(t, f.engine.Start(source, Target{Address: testEthRecipient}))
}

func TestAccountEngineUnstartedOperations(t *testing.T) {
	f := newAccountFixture(t, nil)

	_, err := f.engine.InitializeTransaction()
	assert.ErrorIs(t, err, qerr.ErrEngineNotStarted)

	original := &PendingTransaction{State: StateUninitialized}
	got, err := f.engine.Update(context.Background(), original, ethAmountWei(1))
	assert.ErrorIs(t, err, qerr.ErrEngineNotStarted)
	assert.Same(t, original, got)
}

func TestAccountEngineUpdateNative(t *testing.T) {
	f := newAccountFixture(t, nil)
	f.start(t, chain.NativeAsset(chain.ETH))

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)

	tx, err = f.engine.Update(context.Background(), tx, ethAmountWei(oneEther))
	require.NoError(t, err)

	// 20 gwei * 21000 gas.
	expectedFee := new(big.Int).Mul(big.NewInt(20e9), big.NewInt(21_000))
	assert.Equal(t, StateBuilt, tx.State)
	assert.Equal(t, expectedFee, tx.Fees.Value)
	assert.Equal(t, new(big.Int).Sub(big.NewInt(testNativeBalance), expectedFee), tx.Available.Value)
	assert.Equal(t, big.NewInt(testNativeBalance), tx.GasAvailable.Value)

	tx, err = f.engine.ValidateAmount(tx)
	require.NoError(t, err)
	assert.Equal(t, StateCanExecute, tx.State)
}

func TestAccountEngineUpdateToken(t *testing.T) {
	f := newAccountFixture(t, nil)
	token := chain.TokenAsset(chain.ETH, "USDC", testUSDCContract, 6)
	f.start(t, token)

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)

	amount := chain.NewAmount(token, big.NewInt(100_000_000)) // 100 USDC
	tx, err = f.engine.Update(context.Background(), tx, amount)
	require.NoError(t, err)

	// Token moves price the contract gas limit; available is the token
	// balance while gas lives on the native balance.
	expectedFee := new(big.Int).Mul(big.NewInt(20e9), big.NewInt(65_000))
	assert.Equal(t, expectedFee, tx.Fees.Value)
	assert.Equal(t, big.NewInt(500_000_000), tx.Available.Value)
	assert.Equal(t, big.NewInt(testNativeBalance), tx.GasAvailable.Value)
}

func TestAccountEngineRetriesTransientBalanceFetch(t *testing.T) {
	f := newAccountFixture(t, nil)
	f.start(t, chain.NativeAsset(chain.ETH))
	f.balances.failures = 1

	tx := &PendingTransaction{State: StateUninitialized}
	tx, err := f.engine.Update(context.Background(), tx, ethAmountWei(oneEther))
	require.NoError(t, err)
	assert.Equal(t, StateBuilt, tx.State)
	assert.Equal(t, 2, f.balances.calls, "first attempt fails, retry succeeds")
}

func TestAccountEngineUpdateDecimal(t *testing.T) {
	f := newAccountFixture(t, nil)
	token := chain.TokenAsset(chain.ETH, "USDC", testUSDCContract, 6)
	f.start(t, token)

	tx := &PendingTransaction{State: StateUninitialized}
	tx, err := f.engine.UpdateDecimal(context.Background(), tx, "1.5")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_500_000), tx.Amount.Value, "parsed in the token's six decimals")
	assert.Equal(t, StateBuilt, tx.State)

	original := &PendingTransaction{State: StateUninitialized}
	got, err := f.engine.UpdateDecimal(context.Background(), original, "-1")
	assert.ErrorIs(t, err, qerr.ErrInvalidAmount)
	assert.Same(t, original, got)
}

func TestAccountEngineGasCheckedIndependentlyOfTokenBalance(t *testing.T) {
	f := newAccountFixture(t, nil)
	token := chain.TokenAsset(chain.ETH, "USDC", testUSDCContract, 6)
	f.start(t, token)

	// Plenty of tokens, almost no ETH for gas.
	f.balances.native = big.NewInt(1_000)

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)
	tx, err = f.engine.Update(context.Background(), tx, chain.NewAmount(token, big.NewInt(100_000_000)))
	require.NoError(t, err)

	tx, err = f.engine.ValidateAmount(tx)
	require.NoError(t, err)
	assert.Equal(t, StateInsufficientGas, tx.State)
}

func TestAccountEngineBalancePrecedesGas(t *testing.T) {
	f := newAccountFixture(t, nil)
	token := chain.TokenAsset(chain.ETH, "USDC", testUSDCContract, 6)
	f.start(t, token)

	// Both token balance and gas are short; balance must win.
	f.balances.native = big.NewInt(1_000)
	f.balances.token = big.NewInt(1_000)

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)
	tx, err = f.engine.Update(context.Background(), tx, chain.NewAmount(token, big.NewInt(100_000_000)))
	require.NoError(t, err)

	tx, err = f.engine.ValidateAmount(tx)
	require.NoError(t, err)
	assert.Equal(t, StateInsufficientFunds, tx.State)
}

func TestAccountEngineUpdateRejectsZeroGasPrice(t *testing.T) {
	f := newAccountFixture(t, nil)
	f.start(t, chain.NativeAsset(chain.ETH))
	f.fees.fees.RegularGwei = 0

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)
	_, err = f.engine.Update(context.Background(), tx, ethAmountWei(oneEther))
	assert.ErrorIs(t, err, qerr.ErrNoGasPrice)
}

func TestAccountEngineDoValidateAllInFlight(t *testing.T) {
	f := newAccountFixture(t, nil)
	f.start(t, chain.NativeAsset(chain.ETH))
	f.broadcaster.inFlight = true

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)
	tx, err = f.engine.Update(context.Background(), tx, ethAmountWei(oneEther))
	require.NoError(t, err)

	tx, err = f.engine.DoValidateAll(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateTransactionInFlight, tx.State)
}

func TestAccountEngineDoValidateAllTargetShape(t *testing.T) {
	f := newAccountFixture(t, nil)
	source := Source{Asset: chain.NativeAsset(chain.ETH), Address: testEthAddress}
	require.NoError(t, f.engine.Start(source, Target{Address: "0xnothex"}))

	tx := &PendingTransaction{State: StateBuilt}
	_, err := f.engine.DoValidateAll(context.Background(), tx)
	assert.ErrorIs(t, err, qerr.ErrInvalidAddress)
}

func TestAccountEngineExecute(t *testing.T) {
	f := newAccountFixture(t, sealedTestSeed(t))
	f.start(t, chain.NativeAsset(chain.ETH))

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)
	tx, err = f.engine.Update(context.Background(), tx, ethAmountWei(oneEther))
	require.NoError(t, err)
	tx, err = f.engine.DoValidateAll(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, StateCanExecute, tx.State)

	result, err := f.engine.Execute(context.Background(), tx, testSecondPassword)
	require.NoError(t, err)

	assert.Equal(t, StateExecuted, tx.State)
	assert.True(t, len(result.Hash) == 66 && result.Hash[:2] == "0x")
	assert.NotEmpty(t, f.broadcaster.gotRaw)
}

func TestAccountEngineExecuteHashMismatch(t *testing.T) {
	f := newAccountFixture(t, sealedTestSeed(t))
	f.start(t, chain.NativeAsset(chain.ETH))
	f.broadcaster.corrupt = true

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)
	tx, err = f.engine.Update(context.Background(), tx, ethAmountWei(oneEther))
	require.NoError(t, err)
	tx, err = f.engine.DoValidateAll(context.Background(), tx)
	require.NoError(t, err)

	_, err = f.engine.Execute(context.Background(), tx, testSecondPassword)
	assert.ErrorIs(t, err, qerr.ErrInvalidResponseHash)
	assert.Equal(t, StateFailed, tx.State)
}

func TestAccountEngineDoUpdateFeeLevel(t *testing.T) {
	f := newAccountFixture(t, nil)
	f.start(t, chain.NativeAsset(chain.ETH))

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)
	tx, err = f.engine.Update(context.Background(), tx, ethAmountWei(oneEther))
	require.NoError(t, err)

	tx, err = f.engine.DoUpdateFeeLevel(context.Background(), tx, chain.FeeLevelPriority, 0)
	require.NoError(t, err)
	expectedFee := new(big.Int).Mul(big.NewInt(40e9), big.NewInt(21_000))
	assert.Equal(t, expectedFee, tx.Fees.Value)
	assert.Equal(t, chain.FeeLevelPriority, tx.FeeLevel)
}

func TestAccountEngineRestartResetsOnlyTarget(t *testing.T) {
	f := newAccountFixture(t, nil)
	f.start(t, chain.NativeAsset(chain.ETH))

	tx, err := f.engine.InitializeTransaction()
	require.NoError(t, err)
	tx, err = f.engine.Update(context.Background(), tx, ethAmountWei(oneEther))
	require.NoError(t, err)
	gasAvailable := new(big.Int).Set(tx.GasAvailable.Value)

	tx = f.engine.Restart(tx)
	assert.True(t, tx.Amount.IsZero())
	assert.Equal(t, gasAvailable, tx.GasAvailable.Value)

	_, err = f.engine.Update(context.Background(), tx, ethAmountWei(1))
	assert.ErrorIs(t, err, qerr.ErrEngineNotStarted)
}
