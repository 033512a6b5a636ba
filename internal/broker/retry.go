package broker

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"tickerplant/internal/schema"
)

// RetryConfig bounds the auth-expiry recovery performed around every
// broker call.
type RetryConfig struct {
	// AuthRetries is how many re-login plus resend cycles a single call
	// may consume before the auth failure escalates.
	AuthRetries int
	CallTimeout time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.AuthRetries <= 0 {
		c.AuthRetries = 1
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	return c
}

// Retrier wraps a Broker so that AuthExpired failures trigger re-login
// and a bounded resend instead of reaching strategy hooks. Exhausted
// retries resolve as FailureRejected so the caller releases its reserved
// budget.
type Retrier struct {
	cfg   RetryConfig
	inner Broker
}

var _ Broker = (*Retrier)(nil)

// NewRetrier wraps a broker with the auth-retry policy.
func NewRetrier(cfg RetryConfig, inner Broker) *Retrier {
	return &Retrier{cfg: cfg.withDefaults(), inner: inner}
}

// SetMark forwards mark prices when the wrapped broker accepts them.
func (r *Retrier) SetMark(symbolID schema.SymbolID, price schema.Price) {
	if ms, ok := r.inner.(MarkSetter); ok {
		ms.SetMark(symbolID, price)
	}
}

// Login delegates to the wrapped broker.
func (r *Retrier) Login(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.inner.Login(ctx)
}

// PlaceOrder places an order, recovering from expired auth.
func (r *Retrier) PlaceOrder(ctx context.Context, order Order) (Fill, error) {
	var fill Fill
	err := r.call(ctx, "place order", func(callCtx context.Context) error {
		var callErr error
		fill, callErr = r.inner.PlaceOrder(callCtx, order)
		return callErr
	})
	return fill, err
}

// CancelOrder cancels an order, recovering from expired auth.
func (r *Retrier) CancelOrder(ctx context.Context, orderID string) error {
	return r.call(ctx, "cancel order", func(callCtx context.Context) error {
		return r.inner.CancelOrder(callCtx, orderID)
	})
}

// GetPositions queries open positions, recovering from expired auth.
func (r *Retrier) GetPositions(ctx context.Context) ([]schema.Position, error) {
	var positions []schema.Position
	err := r.call(ctx, "get positions", func(callCtx context.Context) error {
		var callErr error
		positions, callErr = r.inner.GetPositions(callCtx)
		return callErr
	})
	return positions, err
}

// GetOrderStatus queries one order, recovering from expired auth.
func (r *Retrier) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	var status OrderStatus
	err := r.call(ctx, "get order status", func(callCtx context.Context) error {
		var callErr error
		status, callErr = r.inner.GetOrderStatus(callCtx, orderID)
		return callErr
	})
	return status, err
}

func (r *Retrier) call(ctx context.Context, name string, fn func(context.Context) error) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		return fn(callCtx)
	}

	err := attempt()
	for retries := 0; retries < r.cfg.AuthRetries && KindOf(err) == FailureAuthExpired; retries++ {
		logs.Warnf("broker auth expired, re-login and retry %s", name)
		if loginErr := r.Login(ctx); loginErr != nil {
			return Failure(FailureRejected, "re-login failed: "+loginErr.Error())
		}
		err = attempt()
	}
	if KindOf(err) == FailureAuthExpired {
		return Failure(FailureRejected, "auth retries exhausted: "+err.Error())
	}
	return err
}
