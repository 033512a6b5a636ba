// Package resampler folds per-instrument tick streams into OHLCV bars
// under time, tick-count or volume resolution policies, and maintains the
// bounded rolling windows a strategy reads from.
package resampler

import (
	"errors"

	"tickerplant/internal/schema"
)

var (
	// ErrInvalidResolution reports a resolution whose kind and threshold
	// do not match.
	ErrInvalidResolution = errors.New("resampler: invalid resolution")
	// ErrSymbolMismatch reports a tick routed to the wrong resampler.
	ErrSymbolMismatch = errors.New("resampler: symbol mismatch")
)

// ValidateResolution checks that exactly the threshold matching the kind
// is set.
func ValidateResolution(res schema.Resolution) error {
	switch res.Kind {
	case schema.ResolutionTime:
		if res.Interval <= 0 {
			return ErrInvalidResolution
		}
	case schema.ResolutionTicks:
		if res.TickCount <= 0 {
			return ErrInvalidResolution
		}
	case schema.ResolutionVolume:
		if res.Volume <= 0 {
			return ErrInvalidResolution
		}
	default:
		return ErrInvalidResolution
	}
	return nil
}

// Resampler folds ticks for one (instrument, resolution) pair. It cycles
// between collecting and sealing: every tick updates the in-progress bar,
// and when the policy's close condition is met the bar is sealed, pushed
// into the bar window and returned to the caller.
type Resampler struct {
	symbolID schema.SymbolID
	res      schema.Resolution

	cur    schema.Bar
	active bool

	ticks *Window[schema.Tick]
	bars  *Window[schema.Bar]
}

// New creates a resampler with bounded tick and bar windows.
func New(symbolID schema.SymbolID, res schema.Resolution, tickWindow, barWindow int) (*Resampler, error) {
	if err := ValidateResolution(res); err != nil {
		return nil, err
	}
	return &Resampler{
		symbolID: symbolID,
		res:      res,
		ticks:    NewWindow[schema.Tick](tickWindow),
		bars:     NewWindow[schema.Bar](barWindow),
	}, nil
}

// SymbolID returns the instrument this resampler folds.
func (r *Resampler) SymbolID() schema.SymbolID {
	return r.symbolID
}

// Resolution returns the active close policy.
func (r *Resampler) Resolution() schema.Resolution {
	return r.res
}

// Ticks returns the rolling tick window.
func (r *Resampler) Ticks() *Window[schema.Tick] {
	return r.ticks
}

// Bars returns the rolling window of sealed bars.
func (r *Resampler) Bars() *Window[schema.Bar] {
	return r.bars
}

// Preload pushes a historical sealed bar into the bar window. Used before
// the first live tick so strategies start with warm indicators.
func (r *Resampler) Preload(bar schema.Bar) {
	r.bars.Push(bar)
}

// OnTick folds one tick and returns the sealed bar when the fold crossed
// a close boundary. Out-of-order ticks are folded into the in-progress
// bar but never trigger boundary evaluation, so one late tick cannot
// close or reopen a bar.
func (r *Resampler) OnTick(tick schema.Tick) (schema.Bar, bool, error) {
	if tick.SymbolID != r.symbolID {
		return schema.Bar{}, false, ErrSymbolMismatch
	}
	r.ticks.Push(tick)

	if tick.OutOfOrder() {
		if r.active {
			r.fold(tick, false)
		}
		return schema.Bar{}, false, nil
	}

	var sealed schema.Bar
	var ready bool

	if r.res.Kind == schema.ResolutionTime {
		// Time bars seal before the tick that crosses the boundary is
		// folded, so the crossing tick opens the next window.
		if r.active && tick.TsEvent >= r.cur.WindowEnd {
			sealed, ready = r.seal()
		}
	}

	if !r.active {
		r.open(tick)
	}
	r.fold(tick, true)

	switch r.res.Kind {
	case schema.ResolutionTicks:
		if r.cur.TickCount >= int64(r.res.TickCount) {
			sealed, ready = r.seal()
		}
	case schema.ResolutionVolume:
		if r.cur.Volume >= r.res.Volume {
			sealed, ready = r.seal()
		}
	}
	return sealed, ready, nil
}

// Flush seals and returns the in-progress bar, if any. Called at backtest
// end so the final partial bar is not lost.
func (r *Resampler) Flush() (schema.Bar, bool) {
	if !r.active {
		return schema.Bar{}, false
	}
	return r.seal()
}

func (r *Resampler) open(tick schema.Tick) {
	windowOpen := tick.TsEvent
	windowEnd := int64(0)
	if r.res.Kind == schema.ResolutionTime {
		interval := r.res.Interval.Nanoseconds()
		windowOpen = tick.TsEvent - tick.TsEvent%interval
		windowEnd = windowOpen + interval
	}
	r.cur = schema.Bar{
		SymbolID:   r.symbolID,
		Kind:       r.res.Kind,
		Span:       r.res.Span(),
		Open:       tick.Price,
		High:       tick.Price,
		Low:        tick.Price,
		Close:      tick.Price,
		WindowOpen: windowOpen,
		WindowEnd:  windowEnd,
	}
	r.active = true
}

func (r *Resampler) fold(tick schema.Tick, inOrder bool) {
	if tick.Price > r.cur.High {
		r.cur.High = tick.Price
	}
	if tick.Price < r.cur.Low {
		r.cur.Low = tick.Price
	}
	if inOrder {
		r.cur.Close = tick.Price
	}
	r.cur.Volume += tick.Size
	r.cur.TickCount++
}

func (r *Resampler) seal() (schema.Bar, bool) {
	sealed := r.cur
	if sealed.WindowEnd == 0 {
		last, ok := r.ticks.Last()
		if ok {
			sealed.WindowEnd = last.TsEvent
		}
	}
	r.bars.Push(sealed)
	r.active = false
	r.cur = schema.Bar{}
	return sealed, true
}
