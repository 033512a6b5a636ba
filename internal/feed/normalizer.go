package feed

import (
	"time"

	"tickerplant/internal/schema"
)

// Record is one normalized canonical record. Exactly one of Tick, Quote
// or Book is set, matching the header type.
type Record struct {
	Topic  string
	Header schema.EventHeader
	Tick   schema.Tick
	Quote  schema.Quote
	Book   schema.OrderBookSnapshot
}

type tickKey struct {
	ts    int64
	price schema.Price
	size  schema.Quantity
}

// Normalizer converts raw feed events into canonical records. It assigns
// per-instrument monotonically non-decreasing timestamps; late events are
// still emitted but flagged out-of-order. It has no side effects beyond
// producing the record: persistence and publication belong to the blotter.
type Normalizer struct {
	reg      *schema.Registry
	source   uint16
	seq      uint64
	lastTs   map[schema.SymbolID]int64
	lastTick map[schema.SymbolID]tickKey
}

// NewNormalizer creates a normalizer bound to a registry.
func NewNormalizer(reg *schema.Registry, source uint16) *Normalizer {
	return &Normalizer{
		reg:      reg,
		source:   source,
		lastTs:   make(map[schema.SymbolID]int64),
		lastTick: make(map[schema.SymbolID]tickKey),
	}
}

// Normalize converts one raw event. Errors are non-fatal: the caller logs
// and drops the event.
func (n *Normalizer) Normalize(raw RawEvent) (Record, error) {
	symbolID, ok := n.reg.IDBySymbol(raw.Symbol)
	if !ok {
		return Record{}, ErrUnknownSymbol
	}

	tsRecv := raw.TsRecv
	if tsRecv == 0 {
		tsRecv = time.Now().UTC().UnixNano()
	}
	tsEvent := raw.TsEvent
	if tsEvent == 0 {
		tsEvent = tsRecv
	}

	var flags uint16
	if last := n.lastTs[symbolID]; tsEvent < last {
		flags |= schema.FlagOutOfOrder
	} else {
		n.lastTs[symbolID] = tsEvent
	}

	switch raw.Kind {
	case RawTrade:
		if raw.Price <= 0 || raw.Size < 0 {
			return Record{}, ErrMalformedFeedEvent
		}
		key := tickKey{ts: tsEvent, price: raw.Price, size: raw.Size}
		if n.lastTick[symbolID] == key {
			return Record{}, ErrStaleTick
		}
		n.lastTick[symbolID] = key
		n.seq++
		return Record{
			Topic:  raw.Symbol,
			Header: n.header(schema.EventTick, flags, tsEvent, tsRecv),
			Tick: schema.Tick{
				SymbolID: symbolID,
				TsEvent:  tsEvent,
				TsRecv:   tsRecv,
				Flags:    flags,
				Price:    raw.Price,
				Size:     raw.Size,
				BidPrice: raw.BidPrice,
				BidSize:  raw.BidSize,
				AskPrice: raw.AskPrice,
				AskSize:  raw.AskSize,
			},
		}, nil

	case RawQuote:
		if raw.BidPrice <= 0 && raw.AskPrice <= 0 {
			return Record{}, ErrMalformedFeedEvent
		}
		n.seq++
		return Record{
			Topic:  raw.Symbol,
			Header: n.header(schema.EventQuote, flags, tsEvent, tsRecv),
			Quote: schema.Quote{
				SymbolID: symbolID,
				TsEvent:  tsEvent,
				TsRecv:   tsRecv,
				Flags:    flags,
				BidPrice: raw.BidPrice,
				BidSize:  raw.BidSize,
				AskPrice: raw.AskPrice,
				AskSize:  raw.AskSize,
			},
		}, nil

	case RawBook:
		if len(raw.Bids) == 0 && len(raw.Asks) == 0 {
			return Record{}, ErrMalformedFeedEvent
		}
		n.seq++
		return Record{
			Topic:  raw.Symbol,
			Header: n.header(schema.EventOrderBook, flags, tsEvent, tsRecv),
			Book: schema.OrderBookSnapshot{
				SymbolID: symbolID,
				TsEvent:  tsEvent,
				TsRecv:   tsRecv,
				Flags:    flags,
				Bids:     raw.Bids,
				Asks:     raw.Asks,
			},
		}, nil

	default:
		return Record{}, ErrMalformedFeedEvent
	}
}

func (n *Normalizer) header(eventType schema.EventType, flags uint16, tsEvent, tsRecv int64) schema.EventHeader {
	h := schema.NewHeader(eventType, n.source, n.seq, tsEvent, tsRecv)
	h.Flags = flags
	return h
}
