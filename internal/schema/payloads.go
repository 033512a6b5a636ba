package schema

import "time"

// SymbolID identifies an instrument inside the registry.
type SymbolID uint32

// Tick is a single trade print for an instrument. Bid/ask fields are
// optional and zero when the feed does not attach quote context.
type Tick struct {
	SymbolID SymbolID
	TsEvent  int64
	TsRecv   int64
	Flags    uint16
	Price    Price
	Size     Quantity
	BidPrice Price
	BidSize  Quantity
	AskPrice Price
	AskSize  Quantity
}

// OutOfOrder reports whether the tick arrived with a backwards timestamp.
func (t Tick) OutOfOrder() bool {
	return t.Flags&FlagOutOfOrder != 0
}

// Quote is a top-of-book update.
type Quote struct {
	SymbolID SymbolID
	TsEvent  int64
	TsRecv   int64
	Flags    uint16
	BidPrice Price
	BidSize  Quantity
	AskPrice Price
	AskSize  Quantity
}

// BookLevel is one (price, size) entry on a book side.
type BookLevel struct {
	Price Price
	Size  Quantity
}

// OrderBookSnapshot replaces the previous book for its instrument.
// Levels are ordered best-first per side.
type OrderBookSnapshot struct {
	SymbolID SymbolID
	TsEvent  int64
	TsRecv   int64
	Flags    uint16
	Bids     []BookLevel
	Asks     []BookLevel
}

// ResolutionKind selects the bar close policy.
type ResolutionKind uint16

const (
	ResolutionUnknown ResolutionKind = iota
	ResolutionTime
	ResolutionTicks
	ResolutionVolume
)

// Resolution describes when a bar closes. Exactly one of Interval,
// TickCount or Volume is meaningful, matching Kind.
type Resolution struct {
	Kind      ResolutionKind
	Interval  time.Duration
	TickCount int
	Volume    Quantity
}

// Span returns the close threshold as a single integer: the interval in
// nanoseconds for time bars, the tick count for tick bars, the volume
// threshold for volume bars. Bars record it so history queries can tell
// apart bars of the same kind but different resolution.
func (r Resolution) Span() int64 {
	switch r.Kind {
	case ResolutionTime:
		return r.Interval.Nanoseconds()
	case ResolutionTicks:
		return int64(r.TickCount)
	case ResolutionVolume:
		return int64(r.Volume)
	default:
		return 0
	}
}

// Bar is an OHLCV aggregate over one resolution window. Span is the
// resolution threshold the bar was folded under, see Resolution.Span.
type Bar struct {
	SymbolID   SymbolID
	Kind       ResolutionKind
	Span       int64
	Open       Price
	High       Price
	Low        Price
	Close      Price
	Volume     Quantity
	TickCount  int64
	WindowOpen int64
	WindowEnd  int64
}

// Direction is the side of a position.
type Direction uint16

const (
	DirectionUnknown Direction = iota
	DirectionLong
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Position is the runtime view of an open or closed trade. Quantity is in
// whole units; prices are scaled per the instrument.
type Position struct {
	SymbolID   SymbolID
	Direction  Direction
	Qty        int64
	EntryPrice Price
	StopPrice  Price
	Target     Price
	ExitPrice  Price
	EntryTs    int64
	ExitTs     int64
}

// Open reports whether the position has not been exited yet.
func (p Position) Open() bool {
	return p.ExitTs == 0
}

// UnrealizedPnL computes mark-to-market profit at the given price.
func (p Position) UnrealizedPnL(last Price) Notional {
	return p.pnlAt(last)
}

// RealizedPnL computes profit at the recorded exit price.
func (p Position) RealizedPnL() Notional {
	return p.pnlAt(p.ExitPrice)
}

func (p Position) pnlAt(price Price) Notional {
	if price == 0 || p.EntryPrice == 0 {
		return 0
	}
	diff := int64(price) - int64(p.EntryPrice)
	if p.Direction == DirectionShort {
		diff = -diff
	}
	n, overflow := MulNotional(Price(diff), p.Qty)
	if overflow {
		return 0
	}
	return n
}

// Control is a command delivered on the control topic.
type Control struct {
	Command string
	Args    []string
}

// Control commands accepted by the runtime.
const (
	ControlReport   = "report"
	ControlResetRMS = "resetrms"
	ControlStop     = "stop"
)
