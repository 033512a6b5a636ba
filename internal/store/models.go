package store

import "tickerplant/internal/schema"

type tickModel struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	SymbolID uint32 `gorm:"column:symbol_id;index:idx_ticks_symbol_ts,priority:1"`
	TsEvent  int64  `gorm:"column:ts_event;index:idx_ticks_symbol_ts,priority:2"`
	TsRecv   int64  `gorm:"column:ts_recv"`
	Flags    uint16 `gorm:"column:flags"`
	Price    int64  `gorm:"column:price"`
	Size     int64  `gorm:"column:size"`
	BidPrice int64  `gorm:"column:bid_price"`
	BidSize  int64  `gorm:"column:bid_size"`
	AskPrice int64  `gorm:"column:ask_price"`
	AskSize  int64  `gorm:"column:ask_size"`
}

func (tickModel) TableName() string { return "ticks" }

type quoteModel struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	SymbolID uint32 `gorm:"column:symbol_id;index:idx_quotes_symbol_ts,priority:1"`
	TsEvent  int64  `gorm:"column:ts_event;index:idx_quotes_symbol_ts,priority:2"`
	TsRecv   int64  `gorm:"column:ts_recv"`
	Flags    uint16 `gorm:"column:flags"`
	BidPrice int64  `gorm:"column:bid_price"`
	BidSize  int64  `gorm:"column:bid_size"`
	AskPrice int64  `gorm:"column:ask_price"`
	AskSize  int64  `gorm:"column:ask_size"`
}

func (quoteModel) TableName() string { return "quotes" }

type barModel struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	SymbolID   uint32 `gorm:"column:symbol_id;index:idx_bars_symbol_ts,priority:1"`
	Kind       uint16 `gorm:"column:kind;index:idx_bars_symbol_ts,priority:2"`
	Span       int64  `gorm:"column:span;index:idx_bars_symbol_ts,priority:3"`
	WindowOpen int64  `gorm:"column:window_open;index:idx_bars_symbol_ts,priority:4"`
	WindowEnd  int64  `gorm:"column:window_end"`
	Open       int64  `gorm:"column:open"`
	High       int64  `gorm:"column:high"`
	Low        int64  `gorm:"column:low"`
	Close      int64  `gorm:"column:close"`
	Volume     int64  `gorm:"column:volume"`
	TickCount  int64  `gorm:"column:tick_count"`
}

func (barModel) TableName() string { return "bars" }

func toTickModel(t schema.Tick) tickModel {
	return tickModel{
		SymbolID: uint32(t.SymbolID),
		TsEvent:  t.TsEvent,
		TsRecv:   t.TsRecv,
		Flags:    t.Flags,
		Price:    int64(t.Price),
		Size:     int64(t.Size),
		BidPrice: int64(t.BidPrice),
		BidSize:  int64(t.BidSize),
		AskPrice: int64(t.AskPrice),
		AskSize:  int64(t.AskSize),
	}
}

func (m tickModel) toTick() schema.Tick {
	return schema.Tick{
		SymbolID: schema.SymbolID(m.SymbolID),
		TsEvent:  m.TsEvent,
		TsRecv:   m.TsRecv,
		Flags:    m.Flags,
		Price:    schema.Price(m.Price),
		Size:     schema.Quantity(m.Size),
		BidPrice: schema.Price(m.BidPrice),
		BidSize:  schema.Quantity(m.BidSize),
		AskPrice: schema.Price(m.AskPrice),
		AskSize:  schema.Quantity(m.AskSize),
	}
}

func toQuoteModel(q schema.Quote) quoteModel {
	return quoteModel{
		SymbolID: uint32(q.SymbolID),
		TsEvent:  q.TsEvent,
		TsRecv:   q.TsRecv,
		Flags:    q.Flags,
		BidPrice: int64(q.BidPrice),
		BidSize:  int64(q.BidSize),
		AskPrice: int64(q.AskPrice),
		AskSize:  int64(q.AskSize),
	}
}

func toBarModel(b schema.Bar) barModel {
	return barModel{
		SymbolID:   uint32(b.SymbolID),
		Kind:       uint16(b.Kind),
		Span:       b.Span,
		WindowOpen: b.WindowOpen,
		WindowEnd:  b.WindowEnd,
		Open:       int64(b.Open),
		High:       int64(b.High),
		Low:        int64(b.Low),
		Close:      int64(b.Close),
		Volume:     int64(b.Volume),
		TickCount:  b.TickCount,
	}
}

func (m barModel) toBar() schema.Bar {
	return schema.Bar{
		SymbolID:   schema.SymbolID(m.SymbolID),
		Kind:       schema.ResolutionKind(m.Kind),
		Span:       m.Span,
		WindowOpen: m.WindowOpen,
		WindowEnd:  m.WindowEnd,
		Open:       schema.Price(m.Open),
		High:       schema.Price(m.High),
		Low:        schema.Price(m.Low),
		Close:      schema.Price(m.Close),
		Volume:     schema.Quantity(m.Volume),
		TickCount:  m.TickCount,
	}
}
