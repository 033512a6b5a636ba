package obs

import (
	"sync/atomic"
	"time"

	"tickerplant/internal/schema"
)

const maxEventType = int(schema.EventControl)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts     [maxEventType + 1]uint64
	queueDrops      uint64
	persistFailures uint64
	malformedEvents uint64
	feedReconnects  uint64

	eventLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts     map[schema.EventType]uint64
	QueueDrops      uint64
	PersistFailures uint64
	MalformedEvents uint64
	FeedReconnects  uint64
	EventLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent increments counters and tracks feed-to-receive latency
// when timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 {
		delta := header.TsRecv - header.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// IncQueueDrop records a record dropped on a subscriber queue.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncPersistFailure records a failed storage append.
func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.persistFailures, 1)
}

// IncMalformedEvent records a dropped malformed feed event.
func (m *Metrics) IncMalformedEvent() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.malformedEvents, 1)
}

// IncFeedReconnect records a feed reconnect attempt.
func (m *Metrics) IncFeedReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.feedReconnects, 1)
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		EventCounts:     make(map[schema.EventType]uint64, len(m.eventCounts)),
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		PersistFailures: atomic.LoadUint64(&m.persistFailures),
		MalformedEvents: atomic.LoadUint64(&m.malformedEvents),
		FeedReconnects:  atomic.LoadUint64(&m.feedReconnects),
		EventLatency:    m.eventLatency.Snapshot(),
	}
	for i := range m.eventCounts {
		if count := atomic.LoadUint64(&m.eventCounts[i]); count > 0 {
			snap.EventCounts[schema.EventType(i)] = count
		}
	}
	return snap
}

// Observe adds one latency sample.
func (s *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	v := uint64(d)
	atomic.AddUint64(&s.count, 1)
	atomic.AddUint64(&s.sum, v)
	for {
		min := atomic.LoadUint64(&s.min)
		if min != 0 && v >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&s.min, min, v) {
			break
		}
	}
	for {
		max := atomic.LoadUint64(&s.max)
		if v <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&s.max, max, v) {
			break
		}
	}
}

// Snapshot returns the aggregated latency view.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&s.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&s.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&s.min)),
		Max:   time.Duration(atomic.LoadUint64(&s.max)),
		Avg:   time.Duration(sum / count),
	}
}
