package codec

import (
	"reflect"
	"testing"

	"tickerplant/internal/schema"
)

func TestHeaderRoundTrip(t *testing.T) {
	orig := schema.NewHeader(schema.EventTick, 3, 42, 1000, 1001)
	orig.Flags = schema.FlagOutOfOrder

	encoded := EncodeHeader(nil, orig)
	if len(encoded) != HeaderSize {
		t.Fatalf("encoded size: got %d want %d", len(encoded), HeaderSize)
	}
	decoded, ok := DecodeHeader(encoded)
	if !ok {
		t.Fatalf("decode header failed")
	}
	if decoded != orig {
		t.Fatalf("header mismatch: got %+v want %+v", decoded, orig)
	}
	if _, ok := DecodeHeader(encoded[:HeaderSize-1]); ok {
		t.Fatalf("short header accepted")
	}
}

func TestTickRoundTrip(t *testing.T) {
	orig := schema.Tick{
		SymbolID: 7,
		TsEvent:  123456789,
		TsRecv:   123456790,
		Flags:    schema.FlagOutOfOrder,
		Price:    -250,
		Size:     10,
		BidPrice: 249,
		BidSize:  5,
		AskPrice: 251,
		AskSize:  6,
	}
	decoded, ok := DecodeTick(EncodeTick(nil, orig))
	if !ok {
		t.Fatalf("decode tick failed")
	}
	if decoded != orig {
		t.Fatalf("tick mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestBarRoundTrip(t *testing.T) {
	orig := schema.Bar{
		SymbolID:   9,
		Kind:       schema.ResolutionVolume,
		Span:       500,
		Open:       100,
		High:       120,
		Low:        95,
		Close:      110,
		Volume:     500,
		TickCount:  37,
		WindowOpen: 60_000_000_000,
		WindowEnd:  120_000_000_000,
	}
	decoded, ok := DecodeBar(EncodeBar(nil, orig))
	if !ok {
		t.Fatalf("decode bar failed")
	}
	if decoded != orig {
		t.Fatalf("bar mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestOrderBookRoundTrip(t *testing.T) {
	orig := schema.OrderBookSnapshot{
		SymbolID: 4,
		TsEvent:  1000,
		TsRecv:   1001,
		Bids:     []schema.BookLevel{{Price: 99, Size: 10}, {Price: 98, Size: 20}},
		Asks:     []schema.BookLevel{{Price: 101, Size: 15}},
	}
	decoded, ok := DecodeOrderBook(EncodeOrderBook(nil, orig))
	if !ok {
		t.Fatalf("decode book failed")
	}
	if !reflect.DeepEqual(decoded, orig) {
		t.Fatalf("book mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestOrderBookRejectsTruncated(t *testing.T) {
	orig := schema.OrderBookSnapshot{
		SymbolID: 4,
		Bids:     []schema.BookLevel{{Price: 99, Size: 10}},
	}
	encoded := EncodeOrderBook(nil, orig)
	if _, ok := DecodeOrderBook(encoded[:len(encoded)-1]); ok {
		t.Fatalf("truncated book accepted")
	}
}

func TestControlRoundTrip(t *testing.T) {
	orig := schema.Control{Command: schema.ControlResetRMS, Args: []string{"force", "now"}}
	encoded, ok := EncodeControl(nil, orig)
	if !ok {
		t.Fatalf("encode control failed")
	}
	decoded, ok := DecodeControl(encoded)
	if !ok {
		t.Fatalf("decode control failed")
	}
	if !reflect.DeepEqual(decoded, orig) {
		t.Fatalf("control mismatch: got %+v want %+v", decoded, orig)
	}

	noArgs := schema.Control{Command: schema.ControlReport}
	encoded, ok = EncodeControl(nil, noArgs)
	if !ok {
		t.Fatalf("encode no-arg control failed")
	}
	decoded, ok = DecodeControl(encoded)
	if !ok || decoded.Command != schema.ControlReport || len(decoded.Args) != 0 {
		t.Fatalf("no-arg control mismatch: %+v", decoded)
	}
}
