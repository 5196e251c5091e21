package quotes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

func testPair() Pair {
	return Pair{
		Base:    chain.NativeAsset(chain.BTC),
		Counter: chain.NativeAsset(chain.ETH),
	}
}

type stubQuoteService struct {
	mu       sync.Mutex
	calls    int
	ttl      time.Duration
	failures int
	err      error
}

func (s *stubQuoteService) Quote(_ context.Context, _ Direction, _ Pair) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, qerr.ErrNetworkError
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Quote{
		Identifier:           "quote-1",
		Tiers:                testTiers(),
		NetworkFee:           dec("0.0001"),
		StaticFee:            dec("0.5"),
		SampleDepositAddress: "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu",
		ExpiresAt:            time.Now().Add(s.ttl),
	}, nil
}

func (s *stubQuoteService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastRetry() chain.RetryConfig {
	return chain.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestEngine(svc QuoteService) *Engine {
	return NewEngine(svc, Config{
		RefreshThreshold: time.Millisecond,
		MaxRefreshCap:    50 * time.Millisecond,
		Retry:            fastRetry(),
	}, nil, nil)
}

func TestEngineStartAndLatest(t *testing.T) {
	svc := &stubQuoteService{ttl: time.Minute}
	e := newTestEngine(svc)
	defer e.Stop()

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))

	priced, err := e.Latest()
	require.NoError(t, err)
	assert.Equal(t, "quote-1", priced.Identifier)
	assert.True(t, dec("100").Equal(priced.Price), "zero amount interpolates the first tier")
	assert.False(t, priced.IsStale(time.Now()))
}

func TestEngineFetchesThroughRateLimiter(t *testing.T) {
	svc := &stubQuoteService{ttl: time.Minute}
	limiter := chain.NewRateLimiter(1000, 1000)
	e := NewEngine(svc, Config{
		RefreshThreshold: time.Millisecond,
		MaxRefreshCap:    50 * time.Millisecond,
		Retry:            fastRetry(),
	}, limiter, nil)
	defer e.Stop()

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))
	_, err := e.Latest()
	require.NoError(t, err)

	// The initial fetch consumed a token from the shared quotes bucket.
	assert.True(t, limiter.Allow("quotes"))

	// An exhausted bucket stalls the fetch until the context expires.
	starved := chain.NewRateLimiter(0, 0)
	e2 := newTestEngine(&stubQuoteService{ttl: time.Minute})
	e2.limiter = starved
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, e2.Start(ctx, Buy, testPair()))
}

func TestEngineLatestBeforeStart(t *testing.T) {
	e := newTestEngine(&stubQuoteService{ttl: time.Minute})
	_, err := e.Latest()
	assert.ErrorIs(t, err, qerr.ErrNoQuote)
}

func TestEngineDoubleStart(t *testing.T) {
	svc := &stubQuoteService{ttl: time.Minute}
	e := newTestEngine(svc)
	defer e.Stop()

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))
	err := e.Start(context.Background(), Buy, testPair())
	assert.ErrorIs(t, err, qerr.ErrAlreadyPolling)
}

func TestEngineStartRetriesTransientFailures(t *testing.T) {
	svc := &stubQuoteService{ttl: time.Minute, failures: 2}
	e := newTestEngine(svc)
	defer e.Stop()

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))
	assert.Equal(t, 3, svc.callCount())
}

func TestEngineStartFailsAfterRetryBudget(t *testing.T) {
	svc := &stubQuoteService{ttl: time.Minute, failures: 10}
	e := newTestEngine(svc)

	err := e.Start(context.Background(), Buy, testPair())
	assert.ErrorIs(t, err, qerr.ErrNetworkError)

	// The failed start leaves the engine restartable.
	svc.mu.Lock()
	svc.failures = 0
	svc.mu.Unlock()
	require.NoError(t, e.Start(context.Background(), Buy, testPair()))
	e.Stop()
}

func TestEngineRefreshesBeforeExpiry(t *testing.T) {
	svc := &stubQuoteService{ttl: 10 * time.Millisecond}
	e := newTestEngine(svc)
	defer e.Stop()

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))

	assert.Eventually(t, func() bool {
		return svc.callCount() >= 3
	}, 2*time.Second, 5*time.Millisecond, "loop keeps refreshing as quotes expire")
}

func TestEngineUpdateAffectsOnlyInterpolation(t *testing.T) {
	svc := &stubQuoteService{ttl: time.Minute}
	e := newTestEngine(svc)
	defer e.Stop()

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))
	callsAfterStart := svc.callCount()

	e.Update(dec("55"))

	priced, err := e.Latest()
	require.NoError(t, err)
	assert.True(t, dec("96.5").Equal(priced.Price))
	assert.Equal(t, callsAfterStart, svc.callCount(), "Update never triggers a fetch")
}

func TestEngineStopClearsQuoteAndAllowsRestart(t *testing.T) {
	svc := &stubQuoteService{ttl: time.Minute}
	e := newTestEngine(svc)

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))
	e.Stop()

	_, err := e.Latest()
	assert.ErrorIs(t, err, qerr.ErrNoQuote)

	calls := svc.callCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, svc.callCount(), "no emissions after Stop returns")

	require.NoError(t, e.Start(context.Background(), Sell, testPair()))
	e.Stop()
}

func TestEngineStopIsIdempotent(t *testing.T) {
	svc := &stubQuoteService{ttl: time.Minute}
	e := newTestEngine(svc)

	e.Stop() // never started

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))
	e.Stop()
	e.Stop()
}

func TestEngineStopFromAnotherGoroutine(t *testing.T) {
	svc := &stubQuoteService{ttl: 10 * time.Millisecond}
	e := newTestEngine(svc)

	require.NoError(t, e.Start(context.Background(), Buy, testPair()))

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	_, err := e.Latest()
	assert.ErrorIs(t, err, qerr.ErrNoQuote)
}
