// Package risk sizes and gates every trade intent against capital, margin
// and concurrency budgets. State transitions are reserve on approval,
// commit on fill, release on failure or exit.
package risk

import (
	"errors"
	"sync"

	"github.com/yanun0323/logs"

	"tickerplant/internal/schema"
)

var (
	// ErrInvalidConfig reports a non-positive budget or ratio.
	ErrInvalidConfig = errors.New("risk: invalid config")
	// ErrHalted reports that an invariant violation stopped this instance.
	ErrHalted = errors.New("risk: halted after invariant violation")
	// ErrUnknownIntent reports a commit or release for an intent that was
	// never reserved.
	ErrUnknownIntent = errors.New("risk: unknown intent")
)

// Reject reasons carried on denied intents.
const (
	ReasonMaxTrades     = "max_trades"
	ReasonMargin        = "margin"
	ReasonCapital       = "capital"
	ReasonDuplicateOpen = "duplicate_open"
	ReasonZeroRisk      = "zero_unit_risk"
	ReasonOverflow      = "overflow"
	ReasonHalted        = "halted"
	ReasonNoPosition    = "no_position"
	ReasonZeroQty       = "zero_quantity"
)

// Config holds the budgets a strategy instance trades under. Monetary
// values are scaled notionals matching the instrument price scale.
type Config struct {
	InitialCapital schema.Notional
	InitialMargin  schema.Notional
	RiskPerTrade   schema.Notional
	// Risk2RewardBps is the reward-to-risk ratio in basis points of one,
	// e.g. 12000 means 1.2x. Integer so sizing stays deterministic.
	Risk2RewardBps int64
	MaxTrades      int
}

func (c Config) withDefaults() Config {
	if c.Risk2RewardBps <= 0 {
		c.Risk2RewardBps = 10000
	}
	if c.MaxTrades <= 0 {
		c.MaxTrades = 1
	}
	return c
}

// Validate checks the budgets.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 || c.InitialMargin <= 0 || c.RiskPerTrade <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Intent is a proposed trade before sizing and approval.
type Intent struct {
	SymbolID  schema.SymbolID
	Direction schema.Direction
	Entry     schema.Price
	Stop      schema.Price
}

// Decision is the outcome of Evaluate. When Allowed, Qty is the approved
// size and Target the derived take-profit price.
type Decision struct {
	Allowed bool
	Reason  string
	Qty     int64
	Target  schema.Price
}

// Report is an operator snapshot of risk state.
type Report struct {
	Capital     schema.Notional
	Margin      schema.Notional
	OpenTrades  int
	RealizedPnL schema.Notional
	Wins        int
	Losses      int
}

type reservation struct {
	capital schema.Notional
	margin  schema.Notional
}

// Assessor is the single gatekeeper for one strategy instance. All
// methods serialize on one mutex; callers must not hold broker calls
// inside it.
type Assessor struct {
	mu  sync.Mutex
	cfg Config

	capital schema.Notional
	margin  schema.Notional

	reserved  map[schema.SymbolID]reservation
	committed map[schema.SymbolID]reservation
	resizing  map[schema.SymbolID]reservation

	realized schema.Notional
	wins     int
	losses   int
	halted   bool
}

// New creates an assessor with full budgets.
func New(cfg Config) (*Assessor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Assessor{
		cfg:       cfg,
		capital:   cfg.InitialCapital,
		margin:    cfg.InitialMargin,
		reserved:  make(map[schema.SymbolID]reservation),
		committed: make(map[schema.SymbolID]reservation),
		resizing:  make(map[schema.SymbolID]reservation),
	}, nil
}

// Evaluate sizes an intent and reserves budget when approved. The caller
// must follow up with Commit on fill or Release on failure.
func (a *Assessor) Evaluate(intent Intent) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.halted {
		return Decision{Reason: ReasonHalted}
	}
	if _, ok := a.reserved[intent.SymbolID]; ok {
		return Decision{Reason: ReasonDuplicateOpen}
	}
	if _, ok := a.committed[intent.SymbolID]; ok {
		return Decision{Reason: ReasonDuplicateOpen}
	}
	if len(a.reserved)+len(a.committed) >= a.cfg.MaxTrades {
		return Decision{Reason: ReasonMaxTrades}
	}

	perUnitRisk := int64(intent.Entry) - int64(intent.Stop)
	if perUnitRisk < 0 {
		perUnitRisk = -perUnitRisk
	}
	if perUnitRisk == 0 {
		return Decision{Reason: ReasonZeroRisk}
	}

	qty := int64(a.cfg.RiskPerTrade) / perUnitRisk
	if qty <= 0 {
		return Decision{Reason: ReasonCapital}
	}

	// Cap by remaining margin, then remaining capital.
	if cap := int64(a.margin) / perUnitRisk; cap < qty {
		qty = cap
	}
	if intent.Entry > 0 {
		if cap := int64(a.capital) / int64(intent.Entry); cap < qty {
			qty = cap
		}
	}
	if qty <= 0 {
		if int64(a.margin)/perUnitRisk <= 0 {
			return Decision{Reason: ReasonMargin}
		}
		return Decision{Reason: ReasonCapital}
	}

	marginNeed, overflow1 := schema.MulNotional(schema.Price(perUnitRisk), qty)
	capitalNeed, overflow2 := schema.MulNotional(intent.Entry, qty)
	if overflow1 || overflow2 {
		return Decision{Reason: ReasonOverflow}
	}
	if marginNeed > a.margin {
		return Decision{Reason: ReasonMargin}
	}
	if capitalNeed > a.capital {
		return Decision{Reason: ReasonCapital}
	}

	a.capital -= capitalNeed
	a.margin -= marginNeed
	a.reserved[intent.SymbolID] = reservation{capital: capitalNeed, margin: marginNeed}

	return Decision{
		Allowed: true,
		Qty:     qty,
		Target:  target(intent, perUnitRisk, a.cfg.Risk2RewardBps),
	}
}

// Commit finalizes a reserved intent after the broker confirms the fill.
func (a *Assessor) Commit(symbolID schema.SymbolID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := a.reserved[symbolID]
	if !ok {
		return ErrUnknownIntent
	}
	delete(a.reserved, symbolID)
	a.committed[symbolID] = res
	return nil
}

// Release returns a reserved intent's budget after a failed order.
func (a *Assessor) Release(symbolID schema.SymbolID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := a.reserved[symbolID]
	if !ok {
		return ErrUnknownIntent
	}
	delete(a.reserved, symbolID)
	return a.restore(res)
}

// Exit closes a committed position, returning its budget and recording
// realized profit.
func (a *Assessor) Exit(symbolID schema.SymbolID, pnl schema.Notional) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := a.committed[symbolID]
	if !ok {
		return ErrUnknownIntent
	}
	delete(a.committed, symbolID)
	a.realized += pnl
	if pnl >= 0 {
		a.wins++
	} else {
		a.losses++
	}
	return a.restore(res)
}

// EvaluateResize gates a quantity change on a committed position. The
// intent carries the position's entry and stop so the new requirement is
// priced consistently with the original reservation. Approval holds any
// additional budget until CommitResize or ReleaseResize resolves it;
// shrink intents never fail on budget since they only return it.
func (a *Assessor) EvaluateResize(intent Intent, qty int64) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.halted {
		return Decision{Reason: ReasonHalted}
	}
	if qty <= 0 {
		return Decision{Reason: ReasonZeroQty}
	}
	if _, ok := a.resizing[intent.SymbolID]; ok {
		return Decision{Reason: ReasonDuplicateOpen}
	}
	cur, ok := a.committed[intent.SymbolID]
	if !ok {
		return Decision{Reason: ReasonNoPosition}
	}

	perUnitRisk := int64(intent.Entry) - int64(intent.Stop)
	if perUnitRisk < 0 {
		perUnitRisk = -perUnitRisk
	}
	if perUnitRisk == 0 {
		return Decision{Reason: ReasonZeroRisk}
	}

	marginNeed, overflow1 := schema.MulNotional(schema.Price(perUnitRisk), qty)
	capitalNeed, overflow2 := schema.MulNotional(intent.Entry, qty)
	if overflow1 || overflow2 {
		return Decision{Reason: ReasonOverflow}
	}
	if marginNeed-cur.margin > a.margin {
		return Decision{Reason: ReasonMargin}
	}
	if capitalNeed-cur.capital > a.capital {
		return Decision{Reason: ReasonCapital}
	}

	// Take growth out of the pools now; shrink refunds wait for the fill.
	if d := capitalNeed - cur.capital; d > 0 {
		a.capital -= d
	}
	if d := marginNeed - cur.margin; d > 0 {
		a.margin -= d
	}
	a.resizing[intent.SymbolID] = reservation{capital: capitalNeed, margin: marginNeed}

	return Decision{
		Allowed: true,
		Qty:     qty,
		Target:  target(intent, perUnitRisk, a.cfg.Risk2RewardBps),
	}
}

// CommitResize finalizes an approved resize after the fill, crediting
// back the budget a shrink freed and recording the realized profit of
// the trimmed quantity, zero for a grow.
func (a *Assessor) CommitResize(symbolID schema.SymbolID, pnl schema.Notional) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, ok := a.resizing[symbolID]
	if !ok {
		return ErrUnknownIntent
	}
	cur := a.committed[symbolID]
	delete(a.resizing, symbolID)
	a.committed[symbolID] = next
	a.realized += pnl

	if d := cur.capital - next.capital; d > 0 {
		a.capital += d
	}
	if d := cur.margin - next.margin; d > 0 {
		a.margin += d
	}
	return a.checkDrift()
}

// ReleaseResize refunds the held budget after a failed resize order. The
// original commitment stays as it was.
func (a *Assessor) ReleaseResize(symbolID schema.SymbolID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, ok := a.resizing[symbolID]
	if !ok {
		return ErrUnknownIntent
	}
	cur := a.committed[symbolID]
	delete(a.resizing, symbolID)

	if d := next.capital - cur.capital; d > 0 {
		a.capital += d
	}
	if d := next.margin - cur.margin; d > 0 {
		a.margin += d
	}
	return a.checkDrift()
}

// Halted reports whether an invariant violation stopped this instance.
func (a *Assessor) Halted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}

// Reset restores configured budgets and clears accounting. Operator
// triggered only, never automatic.
func (a *Assessor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.capital = a.cfg.InitialCapital
	a.margin = a.cfg.InitialMargin
	a.reserved = make(map[schema.SymbolID]reservation)
	a.committed = make(map[schema.SymbolID]reservation)
	a.resizing = make(map[schema.SymbolID]reservation)
	a.realized = 0
	a.wins = 0
	a.losses = 0
	a.halted = false
}

// Snapshot returns the current report.
func (a *Assessor) Snapshot() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Report{
		Capital:     a.capital,
		Margin:      a.margin,
		OpenTrades:  len(a.reserved) + len(a.committed),
		RealizedPnL: a.realized,
		Wins:        a.wins,
		Losses:      a.losses,
	}
}

// restore returns budget to the pools and halts the instance if the
// accounting would exceed configured initial values.
func (a *Assessor) restore(res reservation) error {
	a.capital += res.capital
	a.margin += res.margin
	return a.checkDrift()
}

// checkDrift halts the instance when the pools exceed the configured
// initial values, which means accounting has drifted from reality.
func (a *Assessor) checkDrift() error {
	if a.capital > a.cfg.InitialCapital || a.margin > a.cfg.InitialMargin {
		a.halted = true
		logs.Errorf("risk accounting drifted, capital: %d/%d, margin: %d/%d",
			a.capital, a.cfg.InitialCapital, a.margin, a.cfg.InitialMargin)
		return ErrHalted
	}
	return nil
}

func target(intent Intent, perUnitRisk, risk2RewardBps int64) schema.Price {
	reward := perUnitRisk * risk2RewardBps / 10000
	if intent.Direction == schema.DirectionShort {
		return intent.Entry - schema.Price(reward)
	}
	return intent.Entry + schema.Price(reward)
}
