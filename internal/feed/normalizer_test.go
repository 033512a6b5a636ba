package feed

import (
	"errors"
	"testing"

	"tickerplant/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	if _, err := reg.Add(schema.Instrument{Symbol: "BTCUSDT", Exchange: "SIM", TickSize: 1}); err != nil {
		t.Fatalf("add instrument: %v", err)
	}
	return reg
}

func rawTrade(ts int64, price, size int64) RawEvent {
	return RawEvent{
		Symbol:  "BTCUSDT",
		Kind:    RawTrade,
		TsEvent: ts,
		TsRecv:  ts,
		Price:   schema.Price(price),
		Size:    schema.Quantity(size),
	}
}

func TestNormalizeTrade(t *testing.T) {
	n := NewNormalizer(testRegistry(t), 1)

	rec, err := n.Normalize(rawTrade(100, 5000, 2))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rec.Header.Type != schema.EventTick {
		t.Fatalf("type mismatch: %v", rec.Header.Type)
	}
	if rec.Topic != "BTCUSDT" {
		t.Fatalf("topic mismatch: %s", rec.Topic)
	}
	if rec.Tick.Price != 5000 || rec.Tick.Size != 2 {
		t.Fatalf("tick mismatch: %+v", rec.Tick)
	}
	if rec.Header.Seq != 1 {
		t.Fatalf("seq mismatch: %d", rec.Header.Seq)
	}
}

func TestOutOfOrderFlagged(t *testing.T) {
	n := NewNormalizer(testRegistry(t), 1)

	if _, err := n.Normalize(rawTrade(200, 5000, 1)); err != nil {
		t.Fatalf("first trade: %v", err)
	}
	rec, err := n.Normalize(rawTrade(100, 5001, 1))
	if err != nil {
		t.Fatalf("late trade must still be emitted: %v", err)
	}
	if !rec.Header.OutOfOrder() || !rec.Tick.OutOfOrder() {
		t.Fatalf("late trade not flagged: %+v", rec.Header)
	}

	// The monotonic floor must not move backwards.
	rec, err = n.Normalize(rawTrade(150, 5002, 1))
	if err != nil {
		t.Fatalf("third trade: %v", err)
	}
	if !rec.Header.OutOfOrder() {
		t.Fatalf("trade below floor not flagged: %+v", rec.Header)
	}
}

func TestStaleTickDropped(t *testing.T) {
	n := NewNormalizer(testRegistry(t), 1)

	if _, err := n.Normalize(rawTrade(100, 5000, 2)); err != nil {
		t.Fatalf("first trade: %v", err)
	}
	if _, err := n.Normalize(rawTrade(100, 5000, 2)); !errors.Is(err, ErrStaleTick) {
		t.Fatalf("expected ErrStaleTick, got %v", err)
	}
	// Same timestamp with a different size is a distinct print.
	if _, err := n.Normalize(rawTrade(100, 5000, 3)); err != nil {
		t.Fatalf("distinct trade dropped: %v", err)
	}
}

func TestUnknownSymbolRejected(t *testing.T) {
	n := NewNormalizer(testRegistry(t), 1)
	raw := rawTrade(100, 5000, 1)
	raw.Symbol = "DOGEUSDT"
	if _, err := n.Normalize(raw); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestMalformedEventsRejected(t *testing.T) {
	n := NewNormalizer(testRegistry(t), 1)

	bad := rawTrade(100, 0, 1)
	if _, err := n.Normalize(bad); !errors.Is(err, ErrMalformedFeedEvent) {
		t.Fatalf("zero price accepted: %v", err)
	}

	quote := RawEvent{Symbol: "BTCUSDT", Kind: RawQuote, TsEvent: 100}
	if _, err := n.Normalize(quote); !errors.Is(err, ErrMalformedFeedEvent) {
		t.Fatalf("empty quote accepted: %v", err)
	}

	book := RawEvent{Symbol: "BTCUSDT", Kind: RawBook, TsEvent: 100}
	if _, err := n.Normalize(book); !errors.Is(err, ErrMalformedFeedEvent) {
		t.Fatalf("empty book accepted: %v", err)
	}

	unknown := RawEvent{Symbol: "BTCUSDT", Kind: RawUnknown}
	if _, err := n.Normalize(unknown); !errors.Is(err, ErrMalformedFeedEvent) {
		t.Fatalf("unknown kind accepted: %v", err)
	}
}

func TestNormalizeQuoteAndBook(t *testing.T) {
	n := NewNormalizer(testRegistry(t), 1)

	quote := RawEvent{
		Symbol:   "BTCUSDT",
		Kind:     RawQuote,
		TsEvent:  100,
		TsRecv:   101,
		BidPrice: 4999,
		BidSize:  1,
		AskPrice: 5001,
		AskSize:  2,
	}
	rec, err := n.Normalize(quote)
	if err != nil {
		t.Fatalf("normalize quote: %v", err)
	}
	if rec.Header.Type != schema.EventQuote || rec.Quote.AskPrice != 5001 {
		t.Fatalf("quote mismatch: %+v", rec.Quote)
	}

	book := RawEvent{
		Symbol:  "BTCUSDT",
		Kind:    RawBook,
		TsEvent: 102,
		Bids:    []schema.BookLevel{{Price: 4999, Size: 1}},
		Asks:    []schema.BookLevel{{Price: 5001, Size: 1}},
	}
	rec, err = n.Normalize(book)
	if err != nil {
		t.Fatalf("normalize book: %v", err)
	}
	if rec.Header.Type != schema.EventOrderBook || len(rec.Book.Bids) != 1 {
		t.Fatalf("book mismatch: %+v", rec.Book)
	}
}
