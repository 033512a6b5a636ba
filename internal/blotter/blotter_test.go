package blotter

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yanun0323/errors"

	"tickerplant/internal/bus"
	"tickerplant/internal/codec"
	"tickerplant/internal/feed"
	"tickerplant/internal/obs"
	"tickerplant/internal/pubsub"
	"tickerplant/internal/schema"
	"tickerplant/internal/store"
)

// scriptAdapter plays a fixed event list on its first run and then holds
// the connection open. Subsequent runs block until cancelled.
type scriptAdapter struct {
	events []feed.RawEvent
	runs   int32
	// disconnectOnce makes the first run fail after the script so the
	// reconnect path is exercised.
	disconnectOnce bool
}

func (a *scriptAdapter) Name() string { return "script" }

func (a *scriptAdapter) Run(ctx context.Context, emit func(feed.RawEvent)) error {
	run := atomic.AddInt32(&a.runs, 1)
	if run == 1 {
		for _, e := range a.events {
			emit(e)
		}
		if a.disconnectOnce {
			return feed.ErrFeedDisconnected
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// failStore rejects every append.
type failStore struct {
	fails uint32
}

func (s *failStore) AppendTick(ctx context.Context, tick schema.Tick) error {
	atomic.AddUint32(&s.fails, 1)
	return errors.Wrap(store.ErrPersistenceFailure, "disk full")
}

func (s *failStore) AppendQuote(ctx context.Context, quote schema.Quote) error {
	atomic.AddUint32(&s.fails, 1)
	return errors.Wrap(store.ErrPersistenceFailure, "disk full")
}

func (s *failStore) AppendBar(ctx context.Context, bar schema.Bar) error {
	atomic.AddUint32(&s.fails, 1)
	return errors.Wrap(store.ErrPersistenceFailure, "disk full")
}

func (s *failStore) TicksRange(ctx context.Context, symbolID schema.SymbolID, from, to int64) ([]schema.Tick, error) {
	return nil, nil
}

func (s *failStore) BarsRange(ctx context.Context, symbolID schema.SymbolID, res schema.Resolution, from, to int64) ([]schema.Bar, error) {
	return nil, nil
}

func (s *failStore) Close() error { return nil }

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	if _, err := reg.Add(schema.Instrument{Symbol: "BTCUSDT", Exchange: "SIM", TickSize: 1}); err != nil {
		t.Fatalf("add instrument: %v", err)
	}
	return reg
}

func startPublisher(t *testing.T, ctx context.Context, metrics *obs.Metrics) (*pubsub.Publisher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pub.sock")
	pub, err := pubsub.NewPublisher(pubsub.PublisherConfig{SocketPath: path}, metrics)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if err := pub.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = pub.Serve(ctx) }()
	t.Cleanup(func() { _ = pub.Close() })
	return pub, path
}

func attachSubscriber(t *testing.T, ctx context.Context, pub *pubsub.Publisher, path string) chan bus.Event {
	t.Helper()
	sub, err := pubsub.NewSubscriber(pubsub.SubscriberConfig{SocketPath: path, Topics: []string{"BTCUSDT"}})
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	received := make(chan bus.Event, 64)
	go func() {
		_ = sub.Run(ctx, func(e bus.Event) {
			cp := make([]byte, len(e.Payload))
			copy(cp, e.Payload)
			e.Payload = cp
			received <- e
		})
	}()
	deadline := time.Now().Add(2 * time.Second)
	for pub.SubscriberCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return received
}

func rawTrade(ts int64, price int64) feed.RawEvent {
	return feed.RawEvent{
		Symbol:  "BTCUSDT",
		Kind:    feed.RawTrade,
		TsEvent: ts,
		TsRecv:  ts,
		Price:   schema.Price(price),
		Size:    1,
	}
}

func TestPersistFailureStillPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := obs.NewMetrics()
	pub, path := startPublisher(t, ctx, metrics)
	received := attachSubscriber(t, ctx, pub, path)

	st := &failStore{}
	adapter := &scriptAdapter{events: []feed.RawEvent{rawTrade(1000, 5000)}}
	b := New(Config{}, testRegistry(t), adapter, pub, st, metrics, obs.NewAlerts(nil))

	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	select {
	case e := <-received:
		tick, ok := codec.DecodeTick(e.Payload)
		if !ok || tick.Price != 5000 {
			t.Fatalf("published tick mismatch: %+v", tick)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("record not published despite persist failure")
	}
	if atomic.LoadUint32(&st.fails) == 0 {
		t.Fatalf("store was never exercised")
	}
	if metrics.Snapshot().PersistFailures == 0 {
		t.Fatalf("persist failure not surfaced")
	}

	cancel()
	<-done
}

func TestOrderBookModeDisabledDropsBooks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := obs.NewMetrics()
	pub, path := startPublisher(t, ctx, metrics)
	received := attachSubscriber(t, ctx, pub, path)

	book := feed.RawEvent{
		Symbol:  "BTCUSDT",
		Kind:    feed.RawBook,
		TsEvent: 1000,
		Bids:    []schema.BookLevel{{Price: 4999, Size: 1}},
		Asks:    []schema.BookLevel{{Price: 5001, Size: 1}},
	}
	adapter := &scriptAdapter{events: []feed.RawEvent{book, rawTrade(2000, 5000)}}
	b := New(Config{OrderBook: false}, testRegistry(t), adapter, pub, nil, metrics, obs.NewAlerts(nil))

	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	select {
	case e := <-received:
		if e.Header.Type != schema.EventTick {
			t.Fatalf("book published in disabled mode: %v", e.Header.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("trade never arrived")
	}

	cancel()
	<-done
}

func TestFeedReconnectWithBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := obs.NewMetrics()
	pub, path := startPublisher(t, ctx, metrics)
	_ = attachSubscriber(t, ctx, pub, path)

	adapter := &scriptAdapter{
		events:         []feed.RawEvent{rawTrade(1000, 5000)},
		disconnectOnce: true,
	}
	b := New(Config{
		Backoff: pubsub.Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2.0},
	}, testRegistry(t), adapter, pub, nil, metrics, obs.NewAlerts(nil))

	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&adapter.runs) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("feed never reconnected, runs: %d", adapter.runs)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if metrics.Snapshot().FeedReconnects == 0 {
		t.Fatalf("reconnect not counted")
	}

	cancel()
	<-done
}

func TestBaseBarJournaling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := obs.NewMetrics()
	pub, path := startPublisher(t, ctx, metrics)
	received := attachSubscriber(t, ctx, pub, path)

	minute := time.Minute.Nanoseconds()
	adapter := &scriptAdapter{events: []feed.RawEvent{
		rawTrade(minute, 5000),
		rawTrade(minute+1000, 5010),
		// Crosses the minute boundary and seals the journal bar.
		rawTrade(2*minute, 5020),
	}}
	b := New(Config{BaseBarInterval: time.Minute}, testRegistry(t), adapter, pub, nil, metrics, obs.NewAlerts(nil))

	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	var gotBar bool
	deadline := time.After(2 * time.Second)
	for !gotBar {
		select {
		case e := <-received:
			if e.Header.Type != schema.EventBar {
				continue
			}
			bar, ok := codec.DecodeBar(e.Payload)
			if !ok {
				t.Fatalf("decode journaled bar failed")
			}
			if bar.Open != 5000 || bar.Close != 5010 || bar.TickCount != 2 {
				t.Fatalf("journaled bar mismatch: %+v", bar)
			}
			if bar.Kind != schema.ResolutionTime || bar.Span != minute {
				t.Fatalf("journaled bar resolution mismatch: %+v", bar)
			}
			gotBar = true
		case <-deadline:
			t.Fatalf("journaled bar never published")
		}
	}

	cancel()
	<-done
}
