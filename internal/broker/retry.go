package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// HealthStatus reflects broker connectivity as seen by the retrying wrapper.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// HealthReporter is implemented by clients that track their own connectivity
// from call outcomes.
type HealthReporter interface {
	Health() HealthStatus
	ConsecutiveFailures() int
	LastError() error
}

// RetryConfig controls the per-call timeout and retry policy.
type RetryConfig struct {
	CallTimeout     time.Duration `json:"call_timeout"`
	MaxAttempts     int           `json:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`

	// DownThreshold is the number of consecutive exhausted calls after which
	// health is reported as down.
	DownThreshold int `json:"down_threshold"`
}

// DefaultRetryConfig returns the policy used when the config file omits one.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		CallTimeout:     10 * time.Second,
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		DownThreshold:   3,
	}
}

// RetryingClient wraps a Client with a per-call timeout and bounded
// exponential backoff so one symbol's failure does not halt the cycle for
// others. Order placement, modification and closing are never retried:
// a lost acknowledgement could mean a duplicate trade. Rejections are
// permanent by definition and also pass through untouched.
type RetryingClient struct {
	inner  Client
	config *RetryConfig
	logger zerolog.Logger

	mu           sync.RWMutex
	consecFails  int
	lastFailure  time.Time
	lastErr      error
}

// NewRetryingClient wraps a client with the retry policy.
func NewRetryingClient(inner Client, config *RetryConfig, logger zerolog.Logger) *RetryingClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryingClient{
		inner:  inner,
		config: config,
		logger: logger.With().Str("component", "broker").Logger(),
	}
}

// Health reports connectivity derived from recent call outcomes.
func (rc *RetryingClient) Health() HealthStatus {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	switch {
	case rc.consecFails >= rc.config.DownThreshold:
		return HealthDown
	case rc.consecFails > 0:
		return HealthDegraded
	default:
		return HealthOK
	}
}

// ConsecutiveFailures returns the current run of exhausted calls.
func (rc *RetryingClient) ConsecutiveFailures() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.consecFails
}

// LastError returns the most recent exhausted-retry error, if any.
func (rc *RetryingClient) LastError() error {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.lastErr
}

func (rc *RetryingClient) recordOutcome(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	// A rejection or data-unavailable answer means the venue was reached,
	// so connectivity is fine.
	if err == nil || !retryable(err) {
		rc.consecFails = 0
		rc.lastErr = nil
		return
	}
	rc.consecFails++
	rc.lastFailure = time.Now()
	rc.lastErr = err
}

// retryable reports whether an error class is worth another attempt.
// Data-unavailable and rejections are venue answers, not transport failures.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrDataUnavailable),
		errors.Is(err, ErrInsufficientHistory),
		errors.Is(err, ErrOrderRejected),
		errors.Is(err, ErrModifyRejected),
		errors.Is(err, ErrCloseRejected):
		return false
	}
	return true
}

// call runs fn under the timeout/backoff policy.
func (rc *RetryingClient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     rc.config.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         rc.config.MaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, uint64(rc.config.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, rc.config.CallTimeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		rc.logger.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Err(err).
			Msg("Broker call failed, retrying")
		return err
	}, policy)

	rc.recordOutcome(err)
	return err
}

// GetHistory implements Client.
func (rc *RetryingClient) GetHistory(ctx context.Context, symbol, timeframe string, barCount int) ([]Bar, error) {
	var bars []Bar
	err := rc.call(ctx, "get_history", func(ctx context.Context) error {
		var err error
		bars, err = rc.inner.GetHistory(ctx, symbol, timeframe, barCount)
		return err
	})
	return bars, err
}

// GetAccountInfo implements Client.
func (rc *RetryingClient) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info *AccountInfo
	err := rc.call(ctx, "get_account_info", func(ctx context.Context) error {
		var err error
		info, err = rc.inner.GetAccountInfo(ctx)
		return err
	})
	return info, err
}

// GetSymbolSpec implements Client.
func (rc *RetryingClient) GetSymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error) {
	var spec *SymbolSpec
	err := rc.call(ctx, "get_symbol_spec", func(ctx context.Context) error {
		var err error
		spec, err = rc.inner.GetSymbolSpec(ctx, symbol)
		return err
	})
	return spec, err
}

// GetCurrentPrice implements Client.
func (rc *RetryingClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := rc.call(ctx, "get_current_price", func(ctx context.Context) error {
		var err error
		price, err = rc.inner.GetCurrentPrice(ctx, symbol)
		return err
	})
	return price, err
}

// PlaceOrder implements Client. Single attempt only.
func (rc *RetryingClient) PlaceOrder(ctx context.Context, req OrderRequest) (*PositionRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, rc.config.CallTimeout)
	defer cancel()
	pos, err := rc.inner.PlaceOrder(callCtx, req)
	rc.recordOutcome(err)
	return pos, err
}

// ModifyPosition implements Client. Single attempt only.
func (rc *RetryingClient) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	callCtx, cancel := context.WithTimeout(ctx, rc.config.CallTimeout)
	defer cancel()
	err := rc.inner.ModifyPosition(callCtx, ticket, stopLoss, takeProfit)
	rc.recordOutcome(err)
	return err
}

// ClosePosition implements Client. Single attempt only.
func (rc *RetryingClient) ClosePosition(ctx context.Context, ticket int64, quantity float64) error {
	callCtx, cancel := context.WithTimeout(ctx, rc.config.CallTimeout)
	defer cancel()
	err := rc.inner.ClosePosition(callCtx, ticket, quantity)
	rc.recordOutcome(err)
	return err
}

// ListOpenPositions implements Client.
func (rc *RetryingClient) ListOpenPositions(ctx context.Context) ([]PositionRecord, error) {
	var positions []PositionRecord
	err := rc.call(ctx, "list_open_positions", func(ctx context.Context) error {
		var err error
		positions, err = rc.inner.ListOpenPositions(ctx)
		return err
	})
	return positions, err
}

var (
	_ Client         = (*RetryingClient)(nil)
	_ HealthReporter = (*RetryingClient)(nil)
)
