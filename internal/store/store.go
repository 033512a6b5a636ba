// Package store archives canonical market data and serves time-range
// queries for backtest replay and history preload. No core logic depends
// on the storage engine beyond these two operations.
package store

import (
	"context"
	"errors"

	"tickerplant/internal/schema"
)

// ErrPersistenceFailure wraps storage append errors. The blotter logs it
// and keeps publishing: data loss is preferred to halting the live feed.
var ErrPersistenceFailure = errors.New("store: persistence failure")

// Store is the durable storage contract.
type Store interface {
	AppendTick(ctx context.Context, tick schema.Tick) error
	AppendQuote(ctx context.Context, quote schema.Quote) error
	AppendBar(ctx context.Context, bar schema.Bar) error

	// TicksRange returns ticks for one instrument within [from, to),
	// ordered by event timestamp then insertion.
	TicksRange(ctx context.Context, symbolID schema.SymbolID, from, to int64) ([]schema.Tick, error)
	// BarsRange returns sealed bars of exactly the given resolution for
	// one instrument within [from, to). Bars of the same kind but a
	// different threshold are excluded.
	BarsRange(ctx context.Context, symbolID schema.SymbolID, res schema.Resolution, from, to int64) ([]schema.Bar, error)

	Close() error
}
