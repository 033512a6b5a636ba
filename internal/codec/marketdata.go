package codec

import (
	"encoding/binary"

	"tickerplant/internal/schema"
)

const (
	TickPayloadSize  = 72
	QuotePayloadSize = 56
	BarPayloadSize   = 80

	bookHeaderSize = 32
	bookLevelSize  = 16
)

// EncodeTick serializes a tick into a fixed-size payload.
func EncodeTick(dst []byte, t schema.Tick) []byte {
	if cap(dst) < TickPayloadSize {
		dst = make([]byte, TickPayloadSize)
	} else {
		dst = dst[:TickPayloadSize]
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(t.SymbolID))
	binary.LittleEndian.PutUint16(dst[4:6], t.Flags)
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(t.TsEvent))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(t.TsRecv))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(t.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(t.Size))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(t.BidPrice))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(t.BidSize))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(t.AskPrice))
	binary.LittleEndian.PutUint64(dst[64:72], uint64(t.AskSize))
	return dst
}

// DecodeTick parses a fixed-size tick payload.
func DecodeTick(src []byte) (schema.Tick, bool) {
	if len(src) < TickPayloadSize {
		return schema.Tick{}, false
	}
	return schema.Tick{
		SymbolID: schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Flags:    binary.LittleEndian.Uint16(src[4:6]),
		TsEvent:  int64(binary.LittleEndian.Uint64(src[8:16])),
		TsRecv:   int64(binary.LittleEndian.Uint64(src[16:24])),
		Price:    schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Size:     schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		BidPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		BidSize:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[48:56]))),
		AskPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[56:64]))),
		AskSize:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[64:72]))),
	}, true
}

// EncodeQuote serializes a quote into a fixed-size payload.
func EncodeQuote(dst []byte, q schema.Quote) []byte {
	if cap(dst) < QuotePayloadSize {
		dst = make([]byte, QuotePayloadSize)
	} else {
		dst = dst[:QuotePayloadSize]
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(q.SymbolID))
	binary.LittleEndian.PutUint16(dst[4:6], q.Flags)
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(q.TsEvent))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(q.TsRecv))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(q.BidPrice))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(q.BidSize))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(q.AskPrice))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(q.AskSize))
	return dst
}

// DecodeQuote parses a fixed-size quote payload.
func DecodeQuote(src []byte) (schema.Quote, bool) {
	if len(src) < QuotePayloadSize {
		return schema.Quote{}, false
	}
	return schema.Quote{
		SymbolID: schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Flags:    binary.LittleEndian.Uint16(src[4:6]),
		TsEvent:  int64(binary.LittleEndian.Uint64(src[8:16])),
		TsRecv:   int64(binary.LittleEndian.Uint64(src[16:24])),
		BidPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		BidSize:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		AskPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		AskSize:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[48:56]))),
	}, true
}

// EncodeBar serializes a bar into a fixed-size payload.
func EncodeBar(dst []byte, b schema.Bar) []byte {
	if cap(dst) < BarPayloadSize {
		dst = make([]byte, BarPayloadSize)
	} else {
		dst = dst[:BarPayloadSize]
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(b.SymbolID))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(b.Kind))
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(b.Open))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(b.High))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(b.Low))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(b.Close))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(b.Volume))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(b.TickCount))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(b.WindowOpen))
	binary.LittleEndian.PutUint64(dst[64:72], uint64(b.WindowEnd))
	binary.LittleEndian.PutUint64(dst[72:80], uint64(b.Span))
	return dst
}

// DecodeBar parses a fixed-size bar payload.
func DecodeBar(src []byte) (schema.Bar, bool) {
	if len(src) < BarPayloadSize {
		return schema.Bar{}, false
	}
	return schema.Bar{
		SymbolID:   schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Kind:       schema.ResolutionKind(binary.LittleEndian.Uint16(src[4:6])),
		Open:       schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		High:       schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Low:        schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Close:      schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Volume:     schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
		TickCount:  int64(binary.LittleEndian.Uint64(src[48:56])),
		WindowOpen: int64(binary.LittleEndian.Uint64(src[56:64])),
		WindowEnd:  int64(binary.LittleEndian.Uint64(src[64:72])),
		Span:       int64(binary.LittleEndian.Uint64(src[72:80])),
	}, true
}

// EncodeOrderBook serializes a book snapshot. The payload size depends on
// the level counts.
func EncodeOrderBook(dst []byte, b schema.OrderBookSnapshot) []byte {
	size := bookHeaderSize + (len(b.Bids)+len(b.Asks))*bookLevelSize
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(b.SymbolID))
	binary.LittleEndian.PutUint16(dst[4:6], b.Flags)
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(b.TsEvent))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(b.TsRecv))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(len(b.Bids)))
	binary.LittleEndian.PutUint32(dst[28:32], uint32(len(b.Asks)))
	off := bookHeaderSize
	for _, lvl := range b.Bids {
		binary.LittleEndian.PutUint64(dst[off:off+8], uint64(lvl.Price))
		binary.LittleEndian.PutUint64(dst[off+8:off+16], uint64(lvl.Size))
		off += bookLevelSize
	}
	for _, lvl := range b.Asks {
		binary.LittleEndian.PutUint64(dst[off:off+8], uint64(lvl.Price))
		binary.LittleEndian.PutUint64(dst[off+8:off+16], uint64(lvl.Size))
		off += bookLevelSize
	}
	return dst
}

// DecodeOrderBook parses a book snapshot payload.
func DecodeOrderBook(src []byte) (schema.OrderBookSnapshot, bool) {
	if len(src) < bookHeaderSize {
		return schema.OrderBookSnapshot{}, false
	}
	bidCount := int(binary.LittleEndian.Uint32(src[24:28]))
	askCount := int(binary.LittleEndian.Uint32(src[28:32]))
	size := bookHeaderSize + (bidCount+askCount)*bookLevelSize
	if bidCount < 0 || askCount < 0 || len(src) < size {
		return schema.OrderBookSnapshot{}, false
	}
	snapshot := schema.OrderBookSnapshot{
		SymbolID: schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Flags:    binary.LittleEndian.Uint16(src[4:6]),
		TsEvent:  int64(binary.LittleEndian.Uint64(src[8:16])),
		TsRecv:   int64(binary.LittleEndian.Uint64(src[16:24])),
	}
	off := bookHeaderSize
	if bidCount > 0 {
		snapshot.Bids = make([]schema.BookLevel, bidCount)
		for i := range snapshot.Bids {
			snapshot.Bids[i] = schema.BookLevel{
				Price: schema.Price(int64(binary.LittleEndian.Uint64(src[off : off+8]))),
				Size:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[off+8 : off+16]))),
			}
			off += bookLevelSize
		}
	}
	if askCount > 0 {
		snapshot.Asks = make([]schema.BookLevel, askCount)
		for i := range snapshot.Asks {
			snapshot.Asks[i] = schema.BookLevel{
				Price: schema.Price(int64(binary.LittleEndian.Uint64(src[off : off+8]))),
				Size:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[off+8 : off+16]))),
			}
			off += bookLevelSize
		}
	}
	return snapshot, true
}
