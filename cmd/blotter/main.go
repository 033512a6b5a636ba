package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/yanun0323/logs"

	"tickerplant/internal/blotter"
	"tickerplant/internal/config"
	"tickerplant/internal/feed"
	"tickerplant/internal/obs"
	"tickerplant/internal/pubsub"
	"tickerplant/internal/schema"
	"tickerplant/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	noStore := flag.Bool("no-store", false, "Run capture without the archive")
	baseBar := flag.Duration("base-bar", time.Minute, "Journaled time-bar interval (0=disable)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopProfiler := obs.StartProfiler("tickerplant.blotter")
	defer stopProfiler()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	reg, err := config.BuildOrCachedRegistry(cfg)
	if err != nil {
		log.Fatalf("registry load failed: %v", err)
	}

	metrics := obs.NewMetrics()
	alerts := obs.NewAlerts(nil)

	var st store.Store
	if !*noStore {
		st, err = store.NewPG(store.Option{
			Host:       cfg.Store.Host,
			Port:       cfg.Store.Port,
			User:       cfg.Store.User,
			Password:   cfg.Store.Password,
			Database:   cfg.Store.Database,
			SSLMode:    cfg.Store.SSLMode,
			Params:     cfg.Store.Params,
			ConnString: cfg.Store.ConnString,
		})
		if err != nil {
			log.Fatalf("store open failed: %v", err)
		}
		defer st.Close()
	}

	pub, err := pubsub.NewPublisher(pubsub.PublisherConfig{
		SocketPath:   cfg.Transport.SocketPath,
		QueueSize:    cfg.Transport.QueueSize,
		WriteTimeout: cfg.Transport.WriteTimeout,
	}, metrics)
	if err != nil {
		log.Fatalf("publisher create failed: %v", err)
	}
	if err := pub.Listen(); err != nil {
		log.Fatalf("publisher listen failed: %v", err)
	}
	defer pub.Close()

	adapter, err := buildAdapter(cfg, reg)
	if err != nil {
		log.Fatalf("feed adapter failed: %v", err)
	}

	b := blotter.New(blotter.Config{
		RegistryCache:   cfg.RegistryCache,
		OrderBook:       cfg.OrderBook,
		BaseBarInterval: *baseBar,
		Backoff: pubsub.Backoff{
			Min:    cfg.Backoff.Min,
			Max:    cfg.Backoff.Max,
			Factor: cfg.Backoff.Factor,
			Jitter: cfg.Backoff.Jitter,
		},
	}, reg, adapter, pub, st, metrics, alerts)

	go func() {
		if err := pub.Serve(ctx); err != nil {
			logs.Errorf("publisher serve stopped, err: %+v", err)
			stop()
		}
	}()

	logs.Infof("blotter up, feed: %s, socket: %s, instruments: %d",
		adapter.Name(), cfg.Transport.SocketPath, reg.Count())
	if err := b.Run(ctx); err != nil {
		log.Fatalf("blotter run failed: %v", err)
	}

	snap := metrics.Snapshot()
	logs.Infof("blotter down, events: %v, drops: %d, persist failures: %d, reconnects: %d",
		snap.EventCounts, snap.QueueDrops, snap.PersistFailures, snap.FeedReconnects)
}

func buildAdapter(cfg *config.Config, reg *schema.Registry) (feed.Adapter, error) {
	switch cfg.Feed.Kind {
	case "binance":
		return feed.NewBinance(reg), nil
	default:
		return feed.NewSim(feed.SimConfig{
			Interval:   cfg.Feed.Interval,
			BasePrice:  schema.Price(cfg.Feed.BasePrice),
			Spread:     schema.Price(cfg.Feed.Spread),
			Books:      cfg.OrderBook,
			BookLevels: cfg.Feed.BookLevels,
			Seed:       cfg.Feed.Seed,
		}, reg)
	}
}
