package algo

import (
	"context"
	"sort"

	"github.com/yanun0323/errors"

	"tickerplant/internal/bus"
	"tickerplant/internal/codec"
	"tickerplant/internal/pubsub"
	"tickerplant/internal/schema"
	"tickerplant/internal/store"
)

// Source produces a time-ordered stream of market events. Strategy code
// never branches on where events come from; live and replay sources
// drive the identical hook contract.
type Source interface {
	// Run delivers events to the handler until the context is done or the
	// stream ends. Replay sources return nil at end of data.
	Run(ctx context.Context, handler func(bus.Event)) error
	// Sequential reports whether events must be dispatched on the calling
	// goroutine, which replay sources require for determinism.
	Sequential() bool
}

// LiveSource streams events from the transport.
type LiveSource struct {
	sub *pubsub.Subscriber
}

var _ Source = (*LiveSource)(nil)

// NewLiveSource subscribes to the given topics plus the control topic.
func NewLiveSource(socketPath string, topics []string, backoff pubsub.Backoff) (*LiveSource, error) {
	sub, err := pubsub.NewSubscriber(pubsub.SubscriberConfig{
		SocketPath: socketPath,
		Topics:     topics,
		Control:    true,
		Backoff:    backoff,
		Reconnect:  true,
	})
	if err != nil {
		return nil, err
	}
	return &LiveSource{sub: sub}, nil
}

// Run attaches to the publisher and delivers frames.
func (s *LiveSource) Run(ctx context.Context, handler func(bus.Event)) error {
	return s.sub.Run(ctx, handler)
}

// Sequential reports that live events may be dispatched concurrently
// across instruments.
func (s *LiveSource) Sequential() bool {
	return false
}

// ReplaySource replays archived ticks in event-timestamp order with no
// wall-clock delay. Replaying the same range twice produces an identical
// event sequence.
type ReplaySource struct {
	st   store.Store
	reg  *schema.Registry
	from int64
	to   int64
}

var _ Source = (*ReplaySource)(nil)

// NewReplaySource replays ticks for every registry instrument in
// [from, to).
func NewReplaySource(st store.Store, reg *schema.Registry, from, to int64) *ReplaySource {
	return &ReplaySource{st: st, reg: reg, from: from, to: to}
}

// Run loads the range for every instrument, merges the streams by event
// timestamp, and dispatches synchronously.
func (s *ReplaySource) Run(ctx context.Context, handler func(bus.Event)) error {
	type stream struct {
		symbol string
		ticks  []schema.Tick
		next   int
	}

	streams := make([]*stream, 0, s.reg.Count())
	for i := 0; i < s.reg.Count(); i++ {
		inst, ok := s.reg.At(i)
		if !ok {
			continue
		}
		ticks, err := s.st.TicksRange(ctx, inst.ID, s.from, s.to)
		if err != nil {
			return errors.Wrap(err, "load replay range").With("symbol", inst.Symbol)
		}
		if len(ticks) > 0 {
			streams = append(streams, &stream{symbol: inst.Symbol, ticks: ticks})
		}
	}
	// Stable instrument order makes ties deterministic.
	sort.Slice(streams, func(i, j int) bool { return streams[i].symbol < streams[j].symbol })

	var seq uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var pick *stream
		for _, st := range streams {
			if st.next >= len(st.ticks) {
				continue
			}
			if pick == nil || st.ticks[st.next].TsEvent < pick.ticks[pick.next].TsEvent {
				pick = st
			}
		}
		if pick == nil {
			return nil
		}
		tick := pick.ticks[pick.next]
		pick.next++
		seq++
		header := schema.NewHeader(schema.EventTick, 0, seq, tick.TsEvent, tick.TsRecv)
		header.Flags = tick.Flags
		handler(bus.Event{
			Topic:   pick.symbol,
			Header:  header,
			Payload: codec.EncodeTick(nil, tick),
		})
	}
}

// Sequential reports that replay dispatch must stay on one goroutine.
func (s *ReplaySource) Sequential() bool {
	return true
}
