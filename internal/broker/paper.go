package broker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"tickerplant/internal/schema"
)

// Paper is an in-memory broker used by backtests and tests. Market
// orders fill immediately at the last mark price; limit and stop orders
// fill at their requested price. Failures can be injected per call.
type Paper struct {
	mu        sync.Mutex
	loggedIn  bool
	nextID    int64
	marks     map[schema.SymbolID]schema.Price
	positions map[schema.SymbolID]schema.Position
	orders    map[string]OrderStatus

	failNext   []FailureKind
	loginFails int
	loginCount int
	placeCount int
	feeBps     int64
	clockNanos func() int64
}

var _ Broker = (*Paper)(nil)

// NewPaper creates an empty paper broker.
func NewPaper() *Paper {
	return &Paper{
		marks:      make(map[schema.SymbolID]schema.Price),
		positions:  make(map[schema.SymbolID]schema.Position),
		orders:     make(map[string]OrderStatus),
		clockNanos: func() int64 { return time.Now().UTC().UnixNano() },
	}
}

// SetMark updates the fill price used for market orders.
func (p *Paper) SetMark(symbolID schema.SymbolID, price schema.Price) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbolID] = price
}

// SetClock overrides the fill timestamp source. Backtests pin it to
// event time so replays are deterministic.
func (p *Paper) SetClock(clock func() int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clockNanos = clock
}

// SetFeeBps sets the commission charged per fill, in basis points of the
// fill notional. Zero by default.
func (p *Paper) SetFeeBps(bps int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeBps = bps
}

// FailNext queues failure kinds returned by upcoming PlaceOrder calls,
// in order, before normal behavior resumes.
func (p *Paper) FailNext(kinds ...FailureKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = append(p.failNext, kinds...)
}

// FailLogins makes the next n Login calls fail.
func (p *Paper) FailLogins(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginFails = n
}

// LoginCount returns how many Login calls were made.
func (p *Paper) LoginCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginCount
}

// PlaceCount returns how many PlaceOrder calls were made.
func (p *Paper) PlaceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placeCount
}

// Login establishes the paper session.
func (p *Paper) Login(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loginCount++
	if p.loginFails > 0 {
		p.loginFails--
		return Failure(FailureUnknown, "login failed")
	}
	p.loggedIn = true
	return nil
}

// PlaceOrder fills the order immediately or returns an injected failure.
func (p *Paper) PlaceOrder(ctx context.Context, order Order) (Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.placeCount++
	if len(p.failNext) > 0 {
		kind := p.failNext[0]
		p.failNext = p.failNext[1:]
		if kind == FailureAuthExpired {
			p.loggedIn = false
		}
		return Fill{}, Failure(kind, "injected failure")
	}
	if !p.loggedIn {
		return Fill{}, Failure(FailureAuthExpired, "not logged in")
	}
	if order.Qty <= 0 {
		return Fill{}, Failure(FailureRejected, "non-positive quantity")
	}

	price := p.fillPrice(order)
	if price <= 0 {
		return Fill{}, Failure(FailureRejected, "no mark price for instrument")
	}

	p.nextID++
	orderID := "paper-" + strconv.FormatInt(p.nextID, 10)
	ts := p.clockNanos()

	fill := Fill{
		OrderID:   orderID,
		SymbolID:  order.SymbolID,
		Direction: order.Direction,
		Qty:       order.Qty,
		Price:     price,
		Fee:       p.fee(price, order.Qty),
		Ts:        ts,
	}
	p.orders[orderID] = OrderStatus{
		OrderID:   orderID,
		State:     OrderFilled,
		FilledQty: order.Qty,
		AvgPrice:  price,
	}
	p.apply(fill)
	return fill, nil
}

// CancelOrder cancels a pending order. Paper orders fill immediately, so
// this only rejects unknown or already-filled ids.
func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.orders[orderID]
	if !ok {
		return Failure(FailureRejected, "unknown order")
	}
	if status.State == OrderFilled {
		return Failure(FailureRejected, "already filled")
	}
	status.State = OrderCancelled
	p.orders[orderID] = status
	return nil
}

// GetPositions returns open positions.
func (p *Paper) GetPositions(ctx context.Context) ([]schema.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]schema.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

// GetOrderStatus returns the recorded state of one order.
func (p *Paper) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.orders[orderID]
	if !ok {
		return OrderStatus{}, Failure(FailureRejected, "unknown order")
	}
	return status, nil
}

func (p *Paper) fee(price schema.Price, qty int64) schema.Fee {
	if p.feeBps <= 0 {
		return 0
	}
	notional, overflow := schema.MulNotional(price, qty)
	if overflow {
		return 0
	}
	return schema.Fee(int64(notional) * p.feeBps / 10000)
}

func (p *Paper) fillPrice(order Order) schema.Price {
	switch order.Kind {
	case OrderLimit:
		return order.LimitPrice
	case OrderStop:
		return order.StopPrice
	default:
		return p.marks[order.SymbolID]
	}
}

// apply folds a fill into the position book. An opposite-direction fill
// of equal quantity flattens the position.
func (p *Paper) apply(fill Fill) {
	pos, ok := p.positions[fill.SymbolID]
	if !ok {
		p.positions[fill.SymbolID] = schema.Position{
			SymbolID:   fill.SymbolID,
			Direction:  fill.Direction,
			Qty:        fill.Qty,
			EntryPrice: fill.Price,
			EntryTs:    fill.Ts,
		}
		return
	}
	if pos.Direction == fill.Direction {
		total := pos.Qty + fill.Qty
		pos.EntryPrice = schema.Price((int64(pos.EntryPrice)*pos.Qty + int64(fill.Price)*fill.Qty) / total)
		pos.Qty = total
		p.positions[fill.SymbolID] = pos
		return
	}
	if fill.Qty >= pos.Qty {
		delete(p.positions, fill.SymbolID)
		return
	}
	pos.Qty -= fill.Qty
	p.positions[fill.SymbolID] = pos
}
