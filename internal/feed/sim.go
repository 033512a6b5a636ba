package feed

import (
	"context"
	"math/rand"
	"time"

	"tickerplant/internal/schema"
)

// SimConfig controls the synthetic feed.
type SimConfig struct {
	Interval  time.Duration
	BasePrice schema.Price
	BaseSize  schema.Quantity
	Spread    schema.Price
	// Books enables order book snapshots alongside trades and quotes.
	Books      bool
	BookLevels int
	Seed       int64
}

func (c SimConfig) withDefaults() SimConfig {
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.BasePrice <= 0 {
		c.BasePrice = 10000
	}
	if c.BaseSize <= 0 {
		c.BaseSize = 1
	}
	if c.Spread < 0 {
		c.Spread = 0
	}
	if c.BookLevels <= 0 {
		c.BookLevels = 5
	}
	return c
}

// Sim generates a random-walk synthetic feed for every instrument in the
// registry. It is the default adapter for local runs and tests.
type Sim struct {
	cfg    SimConfig
	reg    *schema.Registry
	rng    *rand.Rand
	prices map[string]schema.Price
}

// NewSim creates a synthetic feed adapter.
func NewSim(cfg SimConfig, reg *schema.Registry) (*Sim, error) {
	if reg == nil || reg.Count() == 0 {
		return nil, ErrUnknownSymbol
	}
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sim{
		cfg:    cfg,
		reg:    reg,
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]schema.Price),
	}, nil
}

// Name identifies the adapter.
func (s *Sim) Name() string {
	return "sim"
}

// Run emits synthetic events until the context is done.
func (s *Sim) Run(ctx context.Context, emit func(RawEvent)) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for i := 0; i < s.reg.Count(); i++ {
				inst, ok := s.reg.At(i)
				if !ok {
					continue
				}
				s.step(inst, now, emit)
			}
		}
	}
}

func (s *Sim) step(inst schema.Instrument, now time.Time, emit func(RawEvent)) {
	price, ok := s.prices[inst.Symbol]
	if !ok {
		price = s.cfg.BasePrice
	}
	tick := inst.TickSize
	if tick <= 0 {
		tick = 1
	}
	price += schema.Price(int64(s.rng.Intn(5)-2) * int64(tick))
	if price <= tick {
		price = tick
	}
	s.prices[inst.Symbol] = price

	size := schema.Quantity(int64(s.cfg.BaseSize) * int64(1+s.rng.Intn(4)))
	bid := price - s.cfg.Spread
	ask := price + s.cfg.Spread
	ts := now.UTC().UnixNano()

	emit(RawEvent{
		Symbol:   inst.Symbol,
		Kind:     RawTrade,
		TsEvent:  ts,
		TsRecv:   ts,
		Price:    price,
		Size:     size,
		BidPrice: bid,
		BidSize:  s.cfg.BaseSize,
		AskPrice: ask,
		AskSize:  s.cfg.BaseSize,
	})
	emit(RawEvent{
		Symbol:   inst.Symbol,
		Kind:     RawQuote,
		TsEvent:  ts,
		TsRecv:   ts,
		BidPrice: bid,
		BidSize:  s.cfg.BaseSize,
		AskPrice: ask,
		AskSize:  s.cfg.BaseSize,
	})
	if !s.cfg.Books {
		return
	}
	book := RawEvent{
		Symbol:  inst.Symbol,
		Kind:    RawBook,
		TsEvent: ts,
		TsRecv:  ts,
	}
	for lvl := 0; lvl < s.cfg.BookLevels; lvl++ {
		offset := schema.Price(int64(lvl+1) * int64(tick))
		book.Bids = append(book.Bids, schema.BookLevel{Price: bid - offset, Size: size})
		book.Asks = append(book.Asks, schema.BookLevel{Price: ask + offset, Size: size})
	}
	emit(book)
}
