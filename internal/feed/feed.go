// Package feed defines the adapter boundary for venue market data and the
// normalizer that turns raw events into canonical records.
package feed

import (
	"context"
	"errors"

	"tickerplant/internal/schema"
)

var (
	// ErrMalformedFeedEvent marks a raw event that cannot be normalized.
	// It is logged and dropped, never fatal.
	ErrMalformedFeedEvent = errors.New("feed: malformed feed event")
	// ErrStaleTick marks an exact duplicate of the previous tick for the
	// same instrument. Dropped silently.
	ErrStaleTick = errors.New("feed: stale tick")
	// ErrUnknownSymbol marks an event for a symbol outside the registry.
	ErrUnknownSymbol = errors.New("feed: unknown symbol")
	// ErrFeedDisconnected is returned by adapters when the upstream
	// connection is lost; the blotter retries with backoff.
	ErrFeedDisconnected = errors.New("feed: disconnected")
)

// RawKind describes the meaning of a raw feed event.
type RawKind uint16

const (
	RawUnknown RawKind = iota
	RawTrade
	RawQuote
	RawBook
)

// RawEvent is a venue event after venue-specific parsing but before
// normalization. Prices and sizes are already scaled per the instrument.
type RawEvent struct {
	Symbol   string
	Kind     RawKind
	TsEvent  int64
	TsRecv   int64
	Price    schema.Price
	Size     schema.Quantity
	BidPrice schema.Price
	BidSize  schema.Quantity
	AskPrice schema.Price
	AskSize  schema.Quantity
	Bids     []schema.BookLevel
	Asks     []schema.BookLevel
}

// Adapter produces raw venue events. Run blocks until the context is done
// or the upstream connection fails; the caller owns reconnect policy.
type Adapter interface {
	Name() string
	Run(ctx context.Context, emit func(RawEvent)) error
}
