package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// Engine timing defaults.
const (
	// DefaultRefreshThreshold is how long before expiry a quote is
	// refreshed.
	DefaultRefreshThreshold = 5 * time.Second

	// MaxRefreshCap bounds the delay between polls regardless of how
	// far away the expiry is.
	MaxRefreshCap = 31 * time.Second
)

// Config carries the engine's timing and retry parameters. Zero values
// take the package defaults.
type Config struct {
	RefreshThreshold time.Duration
	MaxRefreshCap    time.Duration
	Retry            chain.RetryConfig
}

// Engine runs one poll loop per instance for a (direction, pair) and
// interpolates prices against the live trade amount. Exactly one loop
// is active at a time; a second Start without an intervening Stop is a
// typed error.
type Engine struct {
	svc     QuoteService
	limiter *chain.RateLimiter
	log     *zap.Logger
	cfg     Config

	mu      sync.Mutex
	polling bool
	cancel  context.CancelFunc
	done    chan struct{}
	amount  decimal.Decimal
	latest  *Quote
}

// NewEngine creates a stopped engine. The limiter paces outbound quote
// fetches under the "quotes" endpoint; nil disables pacing.
func NewEngine(svc QuoteService, cfg Config, limiter *chain.RateLimiter, log *zap.Logger) *Engine {
	if cfg.RefreshThreshold == 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	if cfg.MaxRefreshCap == 0 {
		cfg.MaxRefreshCap = MaxRefreshCap
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = chain.DefaultRetryConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{svc: svc, limiter: limiter, log: log, cfg: cfg}
}

// Start fetches an initial quote with bounded retry and begins the
// refresh loop. It returns ErrAlreadyPolling if a loop is already
// running, and the fetch error if the initial quote cannot be obtained.
func (e *Engine) Start(ctx context.Context, direction Direction, pair Pair) error {
	e.mu.Lock()
	if e.polling {
		e.mu.Unlock()
		return qerr.ErrAlreadyPolling
	}
	e.polling = true
	e.mu.Unlock()

	quote, err := e.fetch(ctx, direction, pair)
	if err != nil {
		e.mu.Lock()
		e.polling = false
		e.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	if !e.polling {
		// Stopped while the initial fetch was in flight.
		e.mu.Unlock()
		cancel()
		return nil
	}
	e.latest = quote
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.loop(loopCtx, direction, pair, quote, done)
	e.log.Debug("quote polling started",
		zap.String("direction", direction.String()),
		zap.String("pair", pair.Base.Symbol+"/"+pair.Counter.Symbol))
	return nil
}

// loop refreshes the quote shortly before each expiry. Persistent fetch
// failure ends the loop silently; callers observe staleness through the
// expiration date of the last quote.
func (e *Engine) loop(ctx context.Context, direction Direction, pair Pair, current *Quote, done chan struct{}) {
	defer close(done)

	for {
		delay := NextRefreshDelay(current.ExpiresAt, time.Now(), e.cfg.RefreshThreshold, e.cfg.MaxRefreshCap)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		quote, err := e.fetch(ctx, direction, pair)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Warn("quote refresh failed, stream stopping", zap.Error(err))
			return
		}

		e.mu.Lock()
		if ctx.Err() != nil {
			// Stopped while fetching; the quote must not be emitted.
			e.mu.Unlock()
			return
		}
		e.latest = quote
		current = quote
		e.mu.Unlock()
	}
}

func (e *Engine) fetch(ctx context.Context, direction Direction, pair Pair) (*Quote, error) {
	return chain.RetryWithConfig(ctx, e.cfg.Retry, func() (*Quote, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, "quotes"); err != nil {
				return nil, err
			}
		}
		return e.svc.Quote(ctx, direction, pair)
	})
}

// Update sets the live trade amount. It only affects the next
// interpolation, never the fetch cadence, and is safe from any
// goroutine.
func (e *Engine) Update(amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.amount = amount
}

// Latest interpolates the last fetched quote at the live amount. It
// returns ErrNoQuote before the first fetch and after Stop.
func (e *Engine) Latest() (*PricedQuote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		return nil, qerr.ErrNoQuote
	}
	return &PricedQuote{
		Identifier:           e.latest.Identifier,
		Price:                InterpolateRate(e.latest.Tiers, e.amount),
		NetworkFee:           e.latest.NetworkFee,
		StaticFee:            e.latest.StaticFee,
		SampleDepositAddress: e.latest.SampleDepositAddress,
		ExpirationDate:       e.latest.ExpiresAt,
	}, nil
}

// Stop cancels the poll loop, waits for it to finish, and clears the
// last quote. Safe to call from any goroutine and idempotent; after it
// returns no further quotes are emitted.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.polling {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	if cancel == nil {
		// Start's initial fetch has not finished; flag the stop and let
		// Start abandon the loop.
		e.polling = false
		e.latest = nil
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	cancel()
	<-done

	e.mu.Lock()
	e.polling = false
	e.cancel = nil
	e.done = nil
	e.latest = nil
	e.mu.Unlock()
	e.log.Debug("quote polling stopped")
}
