package algo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickerplant/internal/broker"
	"tickerplant/internal/bus"
	"tickerplant/internal/codec"
	"tickerplant/internal/obs"
	"tickerplant/internal/pubsub"
	"tickerplant/internal/resampler"
	"tickerplant/internal/risk"
	"tickerplant/internal/schema"
	"tickerplant/internal/store"
)

// Config controls one strategy runtime instance.
type Config struct {
	// Strategy names this instance in orders and logs.
	Strategy   string
	Resolution schema.Resolution
	TickWindow int
	BarWindow  int
	// Preload is how much bar history to warm the windows with before
	// OnStart. Requires a store.
	Preload time.Duration
	// QueueSize bounds each instrument's event queue in live mode.
	QueueSize int
	// ReconcileInterval bounds how often broker positions are compared
	// against runtime state, checked at bar boundaries. Zero takes the
	// default; negative disables reconciliation.
	ReconcileInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = "default"
	}
	if c.TickWindow <= 0 {
		c.TickWindow = 1000
	}
	if c.BarWindow <= 0 {
		c.BarWindow = 500
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = time.Minute
	}
	return c
}

// Runtime drives one strategy against a source. Events for one
// instrument dispatch sequentially; in live mode instruments run on
// independent goroutines, in replay everything stays on one goroutine so
// results are reproducible.
type Runtime struct {
	cfg      Config
	reg      *schema.Registry
	src      Source
	strat    Strategy
	assessor *risk.Assessor
	brk      broker.Broker
	marks    broker.MarkSetter
	st       store.Store
	alerts   *obs.Alerts

	ctx    context.Context
	cancel context.CancelFunc

	handles  map[string]*Handle
	workers  map[string]*bus.Queue
	wg       sync.WaitGroup
	brokerWG sync.WaitGroup
	haltOnce sync.Once
}

// New wires a runtime. st may be nil when no preload is configured.
func New(cfg Config, reg *schema.Registry, src Source, strat Strategy, assessor *risk.Assessor, brk broker.Broker, st store.Store, alerts *obs.Alerts) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if err := resampler.ValidateResolution(cfg.Resolution); err != nil {
		return nil, err
	}

	rt := &Runtime{
		cfg:      cfg,
		reg:      reg,
		src:      src,
		strat:    strat,
		assessor: assessor,
		brk:      brk,
		st:       st,
		alerts:   alerts,
		handles:  make(map[string]*Handle, reg.Count()),
		workers:  make(map[string]*bus.Queue, reg.Count()),
	}
	if ms, ok := brk.(broker.MarkSetter); ok {
		rt.marks = ms
	}
	for i := 0; i < reg.Count(); i++ {
		inst, ok := reg.At(i)
		if !ok {
			continue
		}
		rs, err := resampler.New(inst.ID, cfg.Resolution, cfg.TickWindow, cfg.BarWindow)
		if err != nil {
			return nil, err
		}
		rt.handles[inst.Symbol] = &Handle{rt: rt, inst: inst, rs: rs}
	}
	return rt, nil
}

// Run logs in, preloads history, invokes OnStart per instrument and then
// pumps the source until it ends or the context is cancelled. Shutdown
// drains in-flight broker calls before returning.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	rt.ctx = ctx
	rt.cancel = cancel
	defer cancel()

	if err := rt.brk.Login(ctx); err != nil {
		return errors.Wrap(err, "broker login")
	}
	if err := rt.preload(ctx); err != nil {
		return err
	}
	rt.eachHandle(func(h *Handle) {
		rt.strat.OnStart(h)
	})

	var err error
	if rt.src.Sequential() {
		err = rt.src.Run(ctx, rt.dispatch)
		// Seal partial bars so the final window is not lost.
		rt.eachHandle(func(h *Handle) {
			if bar, ok := h.rs.Flush(); ok {
				rt.strat.OnBar(h, bar)
			}
		})
	} else {
		rt.startWorkers(ctx)
		err = rt.src.Run(ctx, rt.route)
		for _, q := range rt.workers {
			q.Close()
		}
		rt.wg.Wait()
	}

	rt.brokerWG.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Stop cancels the runtime. Safe to call from control handlers.
func (rt *Runtime) Stop() {
	if rt.cancel != nil {
		rt.cancel()
	}
}

func (rt *Runtime) preload(ctx context.Context) error {
	if rt.st == nil || rt.cfg.Preload <= 0 {
		return nil
	}
	to := time.Now().UTC().UnixNano()
	from := to - rt.cfg.Preload.Nanoseconds()
	var outer error
	rt.eachHandle(func(h *Handle) {
		if outer != nil {
			return
		}
		bars, err := rt.st.BarsRange(ctx, h.inst.ID, rt.cfg.Resolution, from, to)
		if err != nil {
			outer = errors.Wrap(err, "preload bars").With("symbol", h.inst.Symbol)
			return
		}
		for _, bar := range bars {
			h.rs.Preload(bar)
		}
	})
	return outer
}

// eachHandle visits handles in registry order so iteration is
// deterministic.
func (rt *Runtime) eachHandle(fn func(*Handle)) {
	for i := 0; i < rt.reg.Count(); i++ {
		inst, ok := rt.reg.At(i)
		if !ok {
			continue
		}
		if h, ok := rt.handles[inst.Symbol]; ok {
			fn(h)
		}
	}
}

func (rt *Runtime) startWorkers(ctx context.Context) {
	for symbol, h := range rt.handles {
		q := bus.NewQueue(rt.cfg.QueueSize)
		rt.workers[symbol] = q
		handle := h
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			q.Run(ctx, func(e bus.Event) {
				rt.handleEvent(handle, e)
			})
		}()
	}
}

// route fans live events to the instrument workers. Control frames are
// handled inline since they are low volume and cross-instrument.
func (rt *Runtime) route(e bus.Event) {
	if e.Topic == pubsub.ControlTopic {
		rt.handleControl(e)
		return
	}
	q, ok := rt.workers[e.Topic]
	if !ok {
		return
	}
	// The transport reuses its read buffer, so detach the payload before
	// it crosses goroutines.
	cp := make([]byte, len(e.Payload))
	copy(cp, e.Payload)
	e.Payload = cp
	if err := q.TryPublish(e); err != nil {
		logs.Warnf("instrument %s queue full, event dropped", e.Topic)
	}
}

// dispatch handles one event synchronously, used in replay mode.
func (rt *Runtime) dispatch(e bus.Event) {
	if e.Topic == pubsub.ControlTopic {
		rt.handleControl(e)
		return
	}
	h, ok := rt.handles[e.Topic]
	if !ok {
		return
	}
	rt.handleEvent(h, e)
}

func (rt *Runtime) handleEvent(h *Handle, e bus.Event) {
	switch e.Header.Type {
	case schema.EventTick:
		tick, ok := codec.DecodeTick(e.Payload)
		if !ok {
			return
		}
		h.lastPrice = tick.Price
		if rt.marks != nil {
			rt.marks.SetMark(h.inst.ID, tick.Price)
		}
		bar, ready, err := h.rs.OnTick(tick)
		if err != nil {
			return
		}
		rt.strat.OnTick(h, tick)
		if ready {
			rt.strat.OnBar(h, bar)
			rt.reconcile(h, bar.WindowEnd)
		}
	case schema.EventQuote:
		quote, ok := codec.DecodeQuote(e.Payload)
		if !ok {
			return
		}
		h.lastQuote = quote
		rt.strat.OnQuote(h, quote)
	case schema.EventOrderBook:
		book, ok := codec.DecodeOrderBook(e.Payload)
		if !ok {
			return
		}
		rt.strat.OnOrderBook(h, book)
	case schema.EventBar:
		// Journaled bars from the capture process are informational; the
		// runtime derives its own bars at the configured resolution.
	}
}

func (rt *Runtime) handleControl(e bus.Event) {
	cmd, ok := codec.DecodeControl(e.Payload)
	if !ok {
		return
	}
	switch cmd.Command {
	case schema.ControlReport:
		snap := rt.assessor.Snapshot()
		rt.alerts.Emit(obs.AlertInfo, obs.CodeRiskReport,
			"strategy %s capital=%d margin=%d open=%d pnl=%d wins=%d losses=%d",
			rt.cfg.Strategy, snap.Capital, snap.Margin, snap.OpenTrades,
			snap.RealizedPnL, snap.Wins, snap.Losses)
	case schema.ControlResetRMS:
		rt.assessor.Reset()
		rt.alerts.Emit(obs.AlertWarn, obs.CodeRiskReset,
			"strategy %s risk state reset to configured budgets", rt.cfg.Strategy)
	case schema.ControlStop:
		logs.Infof("strategy %s stop command received", rt.cfg.Strategy)
		rt.Stop()
	default:
		logs.Warnf("unknown control command %q ignored", cmd.Command)
	}
}

func (rt *Runtime) openIntent(h *Handle, direction schema.Direction, stop schema.Price) error {
	if h.pending {
		return ErrPositionPending
	}
	entry := h.lastPrice
	if entry <= 0 {
		return fmt.Errorf("%w: no market price yet", ErrIntentRejected)
	}

	decision := rt.assessor.Evaluate(risk.Intent{
		SymbolID:  h.inst.ID,
		Direction: direction,
		Entry:     entry,
		Stop:      stop,
	})
	if !decision.Allowed {
		if decision.Reason == risk.ReasonHalted {
			rt.emitHalt()
		} else {
			rt.alerts.Emit(obs.AlertInfo, obs.CodeRiskRejected,
				"open %s %s rejected: %s", h.inst.Symbol, direction, decision.Reason)
		}
		return fmt.Errorf("%w: %s", ErrIntentRejected, decision.Reason)
	}

	h.pending = true
	rt.brokerWG.Add(1)
	defer rt.brokerWG.Done()

	fill, err := rt.brk.PlaceOrder(rt.ctx, broker.Order{
		SymbolID:  h.inst.ID,
		Direction: direction,
		Kind:      broker.OrderMarket,
		Qty:       decision.Qty,
		Strategy:  rt.cfg.Strategy,
	})
	if err != nil {
		h.pending = false
		if relErr := rt.assessor.Release(h.inst.ID); errors.Is(relErr, risk.ErrHalted) {
			rt.emitHalt()
		}
		rt.emitBrokerFailure(h, err)
		return fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}

	h.pending = false
	if err := rt.assessor.Commit(h.inst.ID); err != nil {
		logs.Errorf("commit fill for %s, err: %+v", h.inst.Symbol, err)
	}
	h.position = schema.Position{
		SymbolID:   h.inst.ID,
		Direction:  direction,
		Qty:        fill.Qty,
		EntryPrice: fill.Price,
		StopPrice:  stop,
		Target:     decision.Target,
		EntryTs:    fill.Ts,
	}
	h.hasPosition = true
	rt.strat.OnFill(h, fill)
	return nil
}

func (rt *Runtime) adjustIntent(h *Handle, qty int64) error {
	if !h.hasPosition {
		return ErrNoPosition
	}
	if h.pending {
		return ErrPositionPending
	}
	if qty == h.position.Qty {
		return nil
	}

	decision := rt.assessor.EvaluateResize(risk.Intent{
		SymbolID:  h.inst.ID,
		Direction: h.position.Direction,
		Entry:     h.position.EntryPrice,
		Stop:      h.position.StopPrice,
	}, qty)
	if !decision.Allowed {
		if decision.Reason == risk.ReasonHalted {
			rt.emitHalt()
		} else {
			rt.alerts.Emit(obs.AlertInfo, obs.CodeRiskRejected,
				"adjust %s to %d rejected: %s", h.inst.Symbol, qty, decision.Reason)
		}
		return fmt.Errorf("%w: %s", ErrIntentRejected, decision.Reason)
	}

	delta := qty - h.position.Qty
	direction := h.position.Direction
	if delta < 0 {
		delta = -delta
		direction = opposite(direction)
	}

	h.pending = true
	rt.brokerWG.Add(1)
	defer rt.brokerWG.Done()

	fill, err := rt.brk.PlaceOrder(rt.ctx, broker.Order{
		SymbolID:  h.inst.ID,
		Direction: direction,
		Kind:      broker.OrderMarket,
		Qty:       delta,
		Strategy:  rt.cfg.Strategy,
	})
	if err != nil {
		h.pending = false
		if relErr := rt.assessor.ReleaseResize(h.inst.ID); errors.Is(relErr, risk.ErrHalted) {
			rt.emitHalt()
		}
		rt.emitBrokerFailure(h, err)
		return fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}
	h.pending = false

	var pnl schema.Notional
	if qty < h.position.Qty {
		// The trimmed quantity settles at the fill price.
		trimmed := h.position
		trimmed.Qty = fill.Qty
		pnl = trimmed.UnrealizedPnL(fill.Price) - schema.Notional(fill.Fee)
	} else {
		total := h.position.Qty + fill.Qty
		h.position.EntryPrice = schema.Price(
			(int64(h.position.EntryPrice)*h.position.Qty + int64(fill.Price)*fill.Qty) / total)
	}
	if err := rt.assessor.CommitResize(h.inst.ID, pnl); err != nil {
		if errors.Is(err, risk.ErrHalted) {
			rt.emitHalt()
		} else {
			logs.Errorf("commit resize for %s, err: %+v", h.inst.Symbol, err)
		}
	}
	h.position.Qty = qty
	h.position.Target = decision.Target
	rt.strat.OnFill(h, fill)
	return nil
}

func (rt *Runtime) closeIntent(h *Handle) error {
	if !h.hasPosition {
		return ErrNoPosition
	}

	exitDirection := opposite(h.position.Direction)

	rt.brokerWG.Add(1)
	defer rt.brokerWG.Done()

	fill, err := rt.brk.PlaceOrder(rt.ctx, broker.Order{
		SymbolID:  h.inst.ID,
		Direction: exitDirection,
		Kind:      broker.OrderMarket,
		Qty:       h.position.Qty,
		Strategy:  rt.cfg.Strategy,
	})
	if err != nil {
		rt.emitBrokerFailure(h, err)
		return fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}

	pos := h.position
	pos.ExitPrice = fill.Price
	pos.ExitTs = fill.Ts
	pnl := pos.RealizedPnL() - schema.Notional(fill.Fee)
	if err := rt.assessor.Exit(h.inst.ID, pnl); errors.Is(err, risk.ErrHalted) {
		rt.emitHalt()
	}
	h.hasPosition = false
	h.position = schema.Position{}
	rt.strat.OnFill(h, fill)
	return nil
}

// reconcile compares the broker's position for the instrument against
// runtime state after a sealed bar and repairs drifted budget. A
// position the broker no longer holds is settled at the last trade
// price; a quantity mismatch rebases the committed budget.
func (rt *Runtime) reconcile(h *Handle, now int64) {
	if rt.cfg.ReconcileInterval <= 0 || now-h.lastReconcile < rt.cfg.ReconcileInterval.Nanoseconds() {
		return
	}
	h.lastReconcile = now

	positions, err := rt.brk.GetPositions(rt.ctx)
	if err != nil {
		logs.Warnf("reconcile %s, err: %+v", h.inst.Symbol, err)
		return
	}
	var held *schema.Position
	for i := range positions {
		if positions[i].SymbolID == h.inst.ID && positions[i].Open() {
			held = &positions[i]
			break
		}
	}

	switch {
	case h.hasPosition && held == nil:
		pnl := h.position.UnrealizedPnL(h.lastPrice)
		if err := rt.assessor.Exit(h.inst.ID, pnl); errors.Is(err, risk.ErrHalted) {
			rt.emitHalt()
		}
		rt.alerts.Emit(obs.AlertWarn, obs.CodePositionDrift,
			"%s position gone at broker, settled at last price, pnl: %s",
			h.inst.Symbol, pnl.Format(int(h.inst.PriceScale)))
		h.hasPosition = false
		h.position = schema.Position{}
	case h.hasPosition && held.Qty != h.position.Qty:
		decision := rt.assessor.EvaluateResize(risk.Intent{
			SymbolID:  h.inst.ID,
			Direction: h.position.Direction,
			Entry:     h.position.EntryPrice,
			Stop:      h.position.StopPrice,
		}, held.Qty)
		if !decision.Allowed {
			rt.alerts.Emit(obs.AlertWarn, obs.CodePositionDrift,
				"%s quantity drifted, broker %d vs held %d, rebase rejected: %s",
				h.inst.Symbol, held.Qty, h.position.Qty, decision.Reason)
			return
		}
		if err := rt.assessor.CommitResize(h.inst.ID, 0); errors.Is(err, risk.ErrHalted) {
			rt.emitHalt()
		}
		rt.alerts.Emit(obs.AlertWarn, obs.CodePositionDrift,
			"%s quantity drifted, broker %d vs held %d, budget rebased",
			h.inst.Symbol, held.Qty, h.position.Qty)
		h.position.Qty = held.Qty
	case !h.hasPosition && held != nil:
		rt.alerts.Emit(obs.AlertWarn, obs.CodePositionDrift,
			"unmanaged %s position at broker, qty: %d", h.inst.Symbol, held.Qty)
	}
}

func opposite(d schema.Direction) schema.Direction {
	if d == schema.DirectionShort {
		return schema.DirectionLong
	}
	return schema.DirectionShort
}

// emitBrokerFailure surfaces a normalized broker failure to the operator
// channel. The strategy sees it as a failed intent, never a panic.
func (rt *Runtime) emitBrokerFailure(h *Handle, err error) {
	if broker.KindOf(err) == broker.FailureAuthExpired {
		rt.alerts.Emit(obs.AlertFatal, obs.CodeBrokerAuthExpired,
			"order for %s failed after auth retries, err: %+v", h.inst.Symbol, err)
		return
	}
	logs.Warnf("order for %s failed, err: %+v", h.inst.Symbol, err)
}

// emitHalt alerts once when the assessor detects drifted accounting. The
// instance refuses further trading until an operator resets it.
func (rt *Runtime) emitHalt() {
	rt.haltOnce.Do(func() {
		rt.alerts.Emit(obs.AlertFatal, obs.CodeRiskInvariant,
			"strategy %s halted: risk accounting drifted from configured budgets", rt.cfg.Strategy)
	})
}
