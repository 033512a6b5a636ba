package algo

import (
	"errors"

	"github.com/yanun0323/logs"

	"tickerplant/internal/broker"
	"tickerplant/internal/schema"
)

// Momentum is a reference strategy: it opens long when a sealed bar
// closes above the rolling average of recent closes, and exits when the
// market reaches the sized target or the stop.
type Momentum struct {
	BaseStrategy
	// Lookback is how many sealed bars feed the average.
	Lookback int
}

// NewMomentum creates the reference strategy.
func NewMomentum(lookback int) *Momentum {
	if lookback <= 0 {
		lookback = 20
	}
	return &Momentum{Lookback: lookback}
}

// OnStart logs the warmed-up window.
func (m *Momentum) OnStart(h *Handle) {
	logs.Infof("momentum start, instrument: %s, preloaded bars: %d",
		h.Instrument().Symbol, h.Bars().Len())
}

// OnTick manages the open position against its stop and target.
func (m *Momentum) OnTick(h *Handle, tick schema.Tick) {
	pos, ok := h.Position()
	if !ok {
		return
	}
	if tick.Price <= pos.StopPrice || tick.Price >= pos.Target {
		if err := h.ClosePosition(); err != nil {
			logs.Warnf("close %s, err: %+v", h.Instrument().Symbol, err)
		}
	}
}

// OnBar opens a long position on upward momentum.
func (m *Momentum) OnBar(h *Handle, bar schema.Bar) {
	if _, open := h.Position(); open {
		return
	}
	bars := h.Bars()
	if bars.Len() < m.Lookback {
		return
	}

	var sum int64
	for i := bars.Len() - m.Lookback; i < bars.Len(); i++ {
		b, ok := bars.At(i)
		if !ok {
			return
		}
		sum += int64(b.Close)
	}
	avg := schema.Price(sum / int64(m.Lookback))
	if bar.Close <= avg {
		return
	}

	if err := h.Open(schema.DirectionLong, bar.Low); err != nil {
		if errors.Is(err, ErrIntentRejected) {
			return
		}
		logs.Warnf("open %s, err: %+v", h.Instrument().Symbol, err)
	}
}

// OnFill logs executions.
func (m *Momentum) OnFill(h *Handle, fill broker.Fill) {
	logs.Infof("fill %s %s qty=%d price=%s",
		h.Instrument().Symbol, fill.Direction, fill.Qty,
		fill.Price.Format(int(h.Instrument().PriceScale)))
}
