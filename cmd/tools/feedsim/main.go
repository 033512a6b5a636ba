// Command feedsim runs the synthetic feed against a standalone publisher
// socket, useful for exercising subscribers without a venue connection.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yanun0323/logs"

	"tickerplant/internal/blotter"
	"tickerplant/internal/feed"
	"tickerplant/internal/obs"
	"tickerplant/internal/pubsub"
	"tickerplant/internal/schema"
)

func main() {
	socketPath := flag.String("socket", "/tmp/tickerplant.sock", "Publisher socket path")
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT", "Comma separated symbol list")
	interval := flag.Duration("interval", 100*time.Millisecond, "Synthetic tick interval")
	basePrice := flag.Int64("base-price", 10000, "Starting scaled price")
	spread := flag.Int64("spread", 2, "Scaled half-spread")
	books := flag.Bool("books", false, "Emit order book snapshots")
	seed := flag.Int64("seed", 0, "Random seed (0=time-based)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := schema.NewRegistry()
	for _, symbol := range splitSymbols(*symbols) {
		if _, err := reg.Add(schema.Instrument{Symbol: symbol, Exchange: "SIM", TickSize: 1}); err != nil {
			log.Fatalf("add symbol %q failed: %v", symbol, err)
		}
	}
	if reg.Count() == 0 {
		log.Fatalf("no symbols given")
	}

	metrics := obs.NewMetrics()
	pub, err := pubsub.NewPublisher(pubsub.PublisherConfig{SocketPath: *socketPath}, metrics)
	if err != nil {
		log.Fatalf("publisher create failed: %v", err)
	}
	if err := pub.Listen(); err != nil {
		log.Fatalf("publisher listen failed: %v", err)
	}
	defer pub.Close()
	go func() {
		if err := pub.Serve(ctx); err != nil {
			logs.Errorf("publisher serve stopped, err: %+v", err)
			stop()
		}
	}()

	sim, err := feed.NewSim(feed.SimConfig{
		Interval:  *interval,
		BasePrice: schema.Price(*basePrice),
		Spread:    schema.Price(*spread),
		Books:     *books,
		Seed:      *seed,
	}, reg)
	if err != nil {
		log.Fatalf("sim create failed: %v", err)
	}

	b := blotter.New(blotter.Config{OrderBook: *books}, reg, sim, pub, nil, metrics, obs.NewAlerts(nil))
	logs.Infof("feedsim up, socket: %s, symbols: %d", *socketPath, reg.Count())
	if err := b.Run(ctx); err != nil {
		log.Fatalf("feedsim run failed: %v", err)
	}
}

func splitSymbols(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
