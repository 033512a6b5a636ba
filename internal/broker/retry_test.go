package broker

import (
	"context"
	"testing"
	"time"

	"tickerplant/internal/schema"
)

func testOrder() Order {
	return Order{
		SymbolID:  1,
		Direction: schema.DirectionLong,
		Kind:      OrderMarket,
		Qty:       10,
		Strategy:  "test",
	}
}

func TestPaperFillsMarketOrders(t *testing.T) {
	ctx := context.Background()
	paper := NewPaper()
	if err := paper.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	paper.SetMark(1, 100)

	fill, err := paper.PlaceOrder(ctx, testOrder())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if fill.Price != 100 || fill.Qty != 10 {
		t.Fatalf("fill mismatch: %+v", fill)
	}

	status, err := paper.GetOrderStatus(ctx, fill.OrderID)
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if status.State != OrderFilled || status.FilledQty != 10 {
		t.Fatalf("status mismatch: %+v", status)
	}

	positions, err := paper.GetPositions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Qty != 10 {
		t.Fatalf("positions mismatch: %+v", positions)
	}

	// Paper fills immediately, so a cancel can only be rejected.
	if err := paper.CancelOrder(ctx, fill.OrderID); KindOf(err) != FailureRejected {
		t.Fatalf("cancel filled order: %v", err)
	}
	if err := paper.CancelOrder(ctx, "unknown"); KindOf(err) != FailureRejected {
		t.Fatalf("cancel unknown order: %v", err)
	}
}

func TestPaperOppositeFillFlattens(t *testing.T) {
	ctx := context.Background()
	paper := NewPaper()
	if err := paper.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	paper.SetMark(1, 100)

	if _, err := paper.PlaceOrder(ctx, testOrder()); err != nil {
		t.Fatalf("open: %v", err)
	}
	exit := testOrder()
	exit.Direction = schema.DirectionShort
	if _, err := paper.PlaceOrder(ctx, exit); err != nil {
		t.Fatalf("close: %v", err)
	}
	positions, err := paper.GetPositions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected flat book, got %+v", positions)
	}
}

func TestPaperChargesFee(t *testing.T) {
	ctx := context.Background()
	paper := NewPaper()
	if err := paper.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	paper.SetMark(1, 104)

	fill, err := paper.PlaceOrder(ctx, testOrder())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if fill.Fee != 0 {
		t.Fatalf("fee should default to zero, got %d", fill.Fee)
	}

	// 10 bps of notional 1040 is 1.
	paper.SetFeeBps(10)
	fill, err = paper.PlaceOrder(ctx, testOrder())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if fill.Fee != 1 {
		t.Fatalf("fee: got %d want 1", fill.Fee)
	}
}

func TestPaperRejectsWithoutMark(t *testing.T) {
	ctx := context.Background()
	paper := NewPaper()
	if err := paper.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	_, err := paper.PlaceOrder(ctx, testOrder())
	if KindOf(err) != FailureRejected {
		t.Fatalf("expected rejected, got %v", err)
	}
}

func TestAuthExpiredTriggersSingleRetry(t *testing.T) {
	ctx := context.Background()
	paper := NewPaper()
	if err := paper.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	paper.SetMark(1, 100)
	paper.FailNext(FailureAuthExpired)

	r := NewRetrier(RetryConfig{AuthRetries: 1, CallTimeout: time.Second}, paper)
	fill, err := r.PlaceOrder(ctx, testOrder())
	if err != nil {
		t.Fatalf("place order after re-login: %v", err)
	}
	if fill.Qty != 10 {
		t.Fatalf("fill mismatch: %+v", fill)
	}
	// Initial login plus the recovery login.
	if paper.LoginCount() != 2 {
		t.Fatalf("login count: got %d want 2", paper.LoginCount())
	}
	if paper.PlaceCount() != 2 {
		t.Fatalf("place count: got %d want 2", paper.PlaceCount())
	}
}

func TestAuthRetryExhaustionResolvesRejected(t *testing.T) {
	ctx := context.Background()
	paper := NewPaper()
	if err := paper.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	paper.SetMark(1, 100)
	paper.FailNext(FailureAuthExpired, FailureAuthExpired)

	r := NewRetrier(RetryConfig{AuthRetries: 1, CallTimeout: time.Second}, paper)
	_, err := r.PlaceOrder(ctx, testOrder())
	if KindOf(err) != FailureRejected {
		t.Fatalf("expected rejected after exhausted retries, got %v", err)
	}
	if paper.PlaceCount() != 2 {
		t.Fatalf("place count: got %d want 2", paper.PlaceCount())
	}
}

func TestNonAuthFailuresPassThrough(t *testing.T) {
	ctx := context.Background()
	paper := NewPaper()
	if err := paper.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	paper.SetMark(1, 100)
	paper.FailNext(FailureTimeout)

	r := NewRetrier(RetryConfig{AuthRetries: 1, CallTimeout: time.Second}, paper)
	_, err := r.PlaceOrder(ctx, testOrder())
	if KindOf(err) != FailureTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if paper.PlaceCount() != 1 {
		t.Fatalf("timeout must not retry, place count: %d", paper.PlaceCount())
	}
}
