package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/yanun0323/logs"

	"tickerplant/internal/algo"
	"tickerplant/internal/broker"
	"tickerplant/internal/config"
	"tickerplant/internal/obs"
	"tickerplant/internal/pubsub"
	"tickerplant/internal/risk"
	"tickerplant/internal/schema"
	"tickerplant/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	backtestFrom := flag.String("backtest-from", "", "Replay start (RFC3339); empty runs live")
	backtestTo := flag.String("backtest-to", "", "Replay end (RFC3339)")
	lookback := flag.Int("lookback", 20, "Momentum lookback in bars")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopProfiler := obs.StartProfiler("tickerplant.algo")
	defer stopProfiler()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	reg, err := config.BuildOrCachedRegistry(cfg)
	if err != nil {
		log.Fatalf("registry load failed: %v", err)
	}
	resolution, err := cfg.SchemaResolution()
	if err != nil {
		log.Fatalf("resolution invalid: %v", err)
	}

	assessor, err := risk.New(risk.Config{
		InitialCapital: schema.Notional(cfg.Risk.InitialCapital),
		InitialMargin:  schema.Notional(cfg.Risk.InitialMargin),
		RiskPerTrade:   schema.Notional(cfg.Risk.RiskPerTrade),
		Risk2RewardBps: cfg.Risk.Risk2RewardBps,
		MaxTrades:      cfg.Risk.MaxTrades,
	})
	if err != nil {
		log.Fatalf("risk config invalid: %v", err)
	}

	backtest := *backtestFrom != ""
	var st store.Store
	if backtest || cfg.Preload > 0 {
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

	src, err := buildSource(cfg, reg, st, backtest, *backtestFrom, *backtestTo)
	if err != nil {
		log.Fatalf("source build failed: %v", err)
	}

	paper := broker.NewPaper()
	paper.SetFeeBps(cfg.Broker.FeeBps)
	brk := broker.NewRetrier(broker.RetryConfig{
		AuthRetries: cfg.Broker.AuthRetries,
		CallTimeout: cfg.Broker.CallTimeout,
	}, paper)

	rt, err := algo.New(algo.Config{
		Strategy:          cfg.Strategy,
		Resolution:        resolution,
		TickWindow:        cfg.Windows.Ticks,
		BarWindow:         cfg.Windows.Bars,
		Preload:           cfg.Preload,
		ReconcileInterval: cfg.Broker.Reconcile,
	}, reg, src, algo.NewMomentum(*lookback), assessor, brk, st, obs.NewAlerts(nil))
	if err != nil {
		log.Fatalf("runtime build failed: %v", err)
	}

	mode := "live"
	if backtest {
		mode = "backtest"
	}
	logs.Infof("algo up, strategy: %s, mode: %s, instruments: %d", cfg.Strategy, mode, reg.Count())
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime failed: %v", err)
	}

	snap := assessor.Snapshot()
	logs.Infof("algo down, capital: %d, margin: %d, open: %d, pnl: %d, wins: %d, losses: %d",
		snap.Capital, snap.Margin, snap.OpenTrades, snap.RealizedPnL, snap.Wins, snap.Losses)
}

func buildSource(cfg *config.Config, reg *schema.Registry, st store.Store, backtest bool, fromRaw, toRaw string) (algo.Source, error) {
	if !backtest {
		topics := make([]string, 0, reg.Count())
		for _, inst := range reg.Instruments() {
			topics = append(topics, inst.Symbol)
		}
		return algo.NewLiveSource(cfg.Transport.SocketPath, topics, pubsub.Backoff{
			Min:    cfg.Backoff.Min,
			Max:    cfg.Backoff.Max,
			Factor: cfg.Backoff.Factor,
			Jitter: cfg.Backoff.Jitter,
		})
	}

	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return nil, err
	}
	to := time.Now().UTC()
	if toRaw != "" {
		to, err = time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return nil, err
		}
	}
	return algo.NewReplaySource(st, reg, from.UnixNano(), to.UnixNano()), nil
}
