// Package blotter is the single writer of canonical market data for a
// deployment. It owns the normalizer and the transport publisher, and
// persists every record before publishing it.
package blotter

import (
	"context"
	"errors"
	"time"

	"github.com/yanun0323/logs"

	"tickerplant/internal/codec"
	"tickerplant/internal/feed"
	"tickerplant/internal/obs"
	"tickerplant/internal/pubsub"
	"tickerplant/internal/resampler"
	"tickerplant/internal/schema"
	"tickerplant/internal/store"
)

// Config controls the capture process.
type Config struct {
	// RegistryCache is where the instrument list is cached for offline
	// reuse.
	RegistryCache string
	// OrderBook enables book snapshot capture. Off by default since book
	// streams are much higher bandwidth.
	OrderBook bool
	// BaseBarInterval is the journaled time-bar resolution. Zero disables
	// bar journaling.
	BaseBarInterval time.Duration
	// Source tags every published header with this feed id.
	Source  uint16
	Backoff pubsub.Backoff
}

func (c Config) withDefaults() Config {
	if c.Backoff.Min <= 0 {
		c.Backoff = pubsub.DefaultBackoff()
	}
	return c
}

// Blotter runs the capture loop: feed adapter in, normalize, persist,
// publish. Persistence failures degrade gracefully; the record is still
// published and an alert is emitted.
type Blotter struct {
	cfg     Config
	reg     *schema.Registry
	adapter feed.Adapter
	norm    *feed.Normalizer
	pub     *pubsub.Publisher
	st      store.Store
	metrics *obs.Metrics
	alerts  *obs.Alerts

	journals map[schema.SymbolID]*resampler.Resampler
}

// New wires a blotter. st may be nil to run capture without an archive.
func New(cfg Config, reg *schema.Registry, adapter feed.Adapter, pub *pubsub.Publisher, st store.Store, metrics *obs.Metrics, alerts *obs.Alerts) *Blotter {
	cfg = cfg.withDefaults()
	return &Blotter{
		cfg:      cfg,
		reg:      reg,
		adapter:  adapter,
		norm:     feed.NewNormalizer(reg, cfg.Source),
		pub:      pub,
		st:       st,
		metrics:  metrics,
		alerts:   alerts,
		journals: make(map[schema.SymbolID]*resampler.Resampler),
	}
}

// Run caches the registry and drives the feed until the context is done.
// Feed disconnects are retried forever with exponential backoff; already
// published data is never re-sent.
func (b *Blotter) Run(ctx context.Context) error {
	if b.cfg.RegistryCache != "" {
		if err := b.reg.SaveCache(b.cfg.RegistryCache); err != nil {
			logs.Warnf("cache registry, err: %+v", err)
		}
	}

	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := b.adapter.Run(ctx, b.handle)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = feed.ErrFeedDisconnected
		}
		if time.Since(started) > b.cfg.Backoff.Max {
			attempt = 0
		}

		b.metrics.IncFeedReconnect()
		delay := b.cfg.Backoff.Next(attempt)
		b.alerts.Emit(obs.AlertWarn, obs.CodeFeedDisconnected,
			"feed %s disconnected, reconnect in %s, err: %+v", b.adapter.Name(), delay, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// handle processes one raw event: normalize, persist, publish, in that
// order for the instrument.
func (b *Blotter) handle(raw feed.RawEvent) {
	if raw.Kind == feed.RawBook && !b.cfg.OrderBook {
		return
	}

	rec, err := b.norm.Normalize(raw)
	if err != nil {
		if errors.Is(err, feed.ErrStaleTick) {
			return
		}
		b.metrics.IncMalformedEvent()
		b.alerts.Emit(obs.AlertWarn, obs.CodeMalformedEvent,
			"dropped %s event for %q, err: %+v", b.adapter.Name(), raw.Symbol, err)
		return
	}

	b.metrics.ObserveEvent(rec.Header)
	b.persist(rec)
	b.publish(rec)

	if rec.Header.Type == schema.EventTick {
		b.journal(rec)
	}
}

func (b *Blotter) persist(rec feed.Record) {
	if b.st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch rec.Header.Type {
	case schema.EventTick:
		err = b.st.AppendTick(ctx, rec.Tick)
	case schema.EventQuote:
		err = b.st.AppendQuote(ctx, rec.Quote)
	default:
		// Book snapshots are latest-wins and are not archived.
		return
	}
	if err != nil {
		b.metrics.IncPersistFailure()
		b.alerts.Emit(obs.AlertWarn, obs.CodePersistFailure,
			"persist %v failed, record published anyway, err: %+v", rec.Header.Type, err)
	}
}

// publish encodes into a fresh buffer per record because the payload is
// shared across subscriber queues.
func (b *Blotter) publish(rec feed.Record) {
	var payload []byte
	switch rec.Header.Type {
	case schema.EventTick:
		payload = codec.EncodeTick(nil, rec.Tick)
	case schema.EventQuote:
		payload = codec.EncodeQuote(nil, rec.Quote)
	case schema.EventOrderBook:
		payload = codec.EncodeOrderBook(nil, rec.Book)
	default:
		return
	}
	b.pub.Publish(rec.Topic, rec.Header, payload)
}

// journal folds ticks into the base time bar and persists plus publishes
// each sealed bar.
func (b *Blotter) journal(rec feed.Record) {
	if b.cfg.BaseBarInterval <= 0 {
		return
	}
	rs, ok := b.journals[rec.Tick.SymbolID]
	if !ok {
		var err error
		rs, err = resampler.New(rec.Tick.SymbolID, schema.Resolution{
			Kind:     schema.ResolutionTime,
			Interval: b.cfg.BaseBarInterval,
		}, 1, 1)
		if err != nil {
			return
		}
		b.journals[rec.Tick.SymbolID] = rs
	}

	bar, ready, err := rs.OnTick(rec.Tick)
	if err != nil || !ready {
		return
	}

	if b.st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.st.AppendBar(ctx, bar); err != nil {
			b.metrics.IncPersistFailure()
			b.alerts.Emit(obs.AlertWarn, obs.CodePersistFailure,
				"persist bar failed, bar published anyway, err: %+v", err)
		}
		cancel()
	}

	header := schema.NewHeader(schema.EventBar, b.cfg.Source, rec.Header.Seq, bar.WindowEnd, rec.Header.TsRecv)
	b.pub.Publish(rec.Topic, header, codec.EncodeBar(nil, bar))
}
