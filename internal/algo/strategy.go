// Package algo drives one strategy instance against a subscribed feed,
// live or replayed, and mediates every trade intent through the risk
// assessor and the broker boundary.
package algo

import (
	"errors"

	"tickerplant/internal/broker"
	"tickerplant/internal/resampler"
	"tickerplant/internal/schema"
)

var (
	// ErrIntentRejected reports an intent denied by the risk assessor.
	// Never retried automatically.
	ErrIntentRejected = errors.New("algo: intent rejected")
	// ErrOrderFailed reports a broker failure on an approved intent. The
	// reserved budget has already been released.
	ErrOrderFailed = errors.New("algo: order failed")
	// ErrNoPosition reports a close intent without an open position.
	ErrNoPosition = errors.New("algo: no open position")
	// ErrPositionPending reports an open intent while a previous order for
	// the instrument is still in flight.
	ErrPositionPending = errors.New("algo: position pending")
)

// Strategy is the fixed hook set the runtime dispatches into. Hooks for
// one instrument are always invoked sequentially; hooks for different
// instruments may run concurrently in live mode.
type Strategy interface {
	OnStart(h *Handle)
	OnTick(h *Handle, tick schema.Tick)
	OnQuote(h *Handle, quote schema.Quote)
	OnOrderBook(h *Handle, book schema.OrderBookSnapshot)
	OnBar(h *Handle, bar schema.Bar)
	OnFill(h *Handle, fill broker.Fill)
}

// BaseStrategy provides no-op hooks so strategies implement only what
// they need.
type BaseStrategy struct{}

func (BaseStrategy) OnStart(*Handle)                               {}
func (BaseStrategy) OnTick(*Handle, schema.Tick)                   {}
func (BaseStrategy) OnQuote(*Handle, schema.Quote)                 {}
func (BaseStrategy) OnOrderBook(*Handle, schema.OrderBookSnapshot) {}
func (BaseStrategy) OnBar(*Handle, schema.Bar)                     {}
func (BaseStrategy) OnFill(*Handle, broker.Fill)                   {}

// Handle is the per-instrument view a strategy trades through. It owns
// the instrument's rolling windows and position; it is only valid inside
// hook invocations for its instrument.
type Handle struct {
	rt   *Runtime
	inst schema.Instrument
	rs   *resampler.Resampler

	lastPrice schema.Price
	lastQuote schema.Quote

	position      schema.Position
	hasPosition   bool
	pending       bool
	lastReconcile int64
}

// Instrument returns the immutable instrument description.
func (h *Handle) Instrument() schema.Instrument {
	return h.inst
}

// Ticks returns the rolling tick window.
func (h *Handle) Ticks() *resampler.Window[schema.Tick] {
	return h.rs.Ticks()
}

// Bars returns the rolling window of sealed bars.
func (h *Handle) Bars() *resampler.Window[schema.Bar] {
	return h.rs.Bars()
}

// LastPrice returns the most recent trade price, zero before the first
// tick.
func (h *Handle) LastPrice() schema.Price {
	return h.lastPrice
}

// LastQuote returns the most recent top-of-book update.
func (h *Handle) LastQuote() schema.Quote {
	return h.lastQuote
}

// Position returns the open position, if any.
func (h *Handle) Position() (schema.Position, bool) {
	return h.position, h.hasPosition
}

// Open proposes a new position. The intent is sized and gated by the
// risk assessor before any order reaches the broker; a denial returns
// ErrIntentRejected and nothing executes.
func (h *Handle) Open(direction schema.Direction, stop schema.Price) error {
	return h.rt.openIntent(h, direction, stop)
}

// Adjust resizes the open position to qty at market. Like Open, the
// intent is gated by the risk assessor first: growing needs budget
// headroom, shrinking realizes the trimmed quantity's profit.
func (h *Handle) Adjust(qty int64) error {
	return h.rt.adjustIntent(h, qty)
}

// ClosePosition exits the open position at market.
func (h *Handle) ClosePosition() error {
	return h.rt.closeIntent(h)
}
