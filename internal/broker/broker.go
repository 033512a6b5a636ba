// Package broker defines the normalized order-routing boundary. The
// runtime depends only on this contract; venue adapters map their own
// failures onto the FailureKind taxonomy.
package broker

import (
	"context"
	"fmt"

	"tickerplant/internal/schema"
)

// FailureKind classifies a broker failure.
type FailureKind uint8

const (
	FailureUnknown FailureKind = iota
	FailureAuthExpired
	FailureRejected
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuthExpired:
		return "auth_expired"
	case FailureRejected:
		return "rejected"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a normalized broker failure.
type Error struct {
	Kind FailureKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("broker: %s: %s", e.Kind, e.Msg)
}

// Failure builds a normalized broker error.
func Failure(kind FailureKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf extracts the failure kind from an error, FailureUnknown when the
// error is not a broker error.
func KindOf(err error) FailureKind {
	if be, ok := err.(*Error); ok {
		return be.Kind
	}
	return FailureUnknown
}

// OrderKind selects the order type.
type OrderKind uint8

const (
	OrderMarket OrderKind = iota
	OrderLimit
	OrderStop
)

// OrderState tracks an order through its lifecycle.
type OrderState uint8

const (
	OrderPending OrderState = iota
	OrderFilled
	OrderCancelled
	OrderRejected
)

func (s OrderState) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	case OrderRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Order is a normalized order request.
type Order struct {
	SymbolID   schema.SymbolID
	Direction  schema.Direction
	Kind       OrderKind
	Qty        int64
	LimitPrice schema.Price
	StopPrice  schema.Price
	Strategy   string
}

// Fill is a confirmed execution. Fee is the commission the venue charged
// for it, in scaled price units.
type Fill struct {
	OrderID   string
	SymbolID  schema.SymbolID
	Direction schema.Direction
	Qty       int64
	Price     schema.Price
	Fee       schema.Fee
	Ts        int64
}

// OrderStatus is the broker's view of one order.
type OrderStatus struct {
	OrderID   string
	State     OrderState
	FilledQty int64
	AvgPrice  schema.Price
}

// MarkSetter is implemented by brokers that fill market orders at an
// externally fed mark price, like the paper broker. The runtime feeds
// the last trade price for each instrument through it.
type MarkSetter interface {
	SetMark(symbolID schema.SymbolID, price schema.Price)
}

// Broker is the normalized venue contract.
type Broker interface {
	// Login establishes or refreshes the session. Called once at start
	// and again when a call fails with FailureAuthExpired.
	Login(ctx context.Context) error
	PlaceOrder(ctx context.Context, order Order) (Fill, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetPositions(ctx context.Context) ([]schema.Position, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
}
