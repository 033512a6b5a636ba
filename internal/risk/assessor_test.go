package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerplant/internal/schema"
)

func newTestAssessor(t *testing.T, cfg Config) *Assessor {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{}); err != ErrInvalidConfig {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := New(Config{InitialCapital: 1, InitialMargin: 1, RiskPerTrade: 1}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestSizingExample(t *testing.T) {
	// capital=10000, risk_per_trade=100, risk2reward=1.2, max_trades=10,
	// per-unit risk 10 sizes to quantity 10.
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		Risk2RewardBps: 12000,
		MaxTrades:      10,
	})

	d := a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.True(t, d.Allowed, "reason: %s", d.Reason)
	assert.Equal(t, int64(10), d.Qty)
	// target = entry + per_unit_risk * 1.2
	assert.Equal(t, schema.Price(112), d.Target)
}

func TestShortTarget(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		Risk2RewardBps: 20000,
		MaxTrades:      10,
	})

	d := a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionShort, Entry: 100, Stop: 110})
	require.True(t, d.Allowed, "reason: %s", d.Reason)
	assert.Equal(t, schema.Price(80), d.Target)
}

func TestMaxTradesRejected(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 1000000,
		InitialMargin:  1000000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})

	for i := 1; i <= 10; i++ {
		d := a.Evaluate(Intent{SymbolID: schema.SymbolID(i), Direction: schema.DirectionLong, Entry: 100, Stop: 90})
		require.True(t, d.Allowed, "open %d rejected: %s", i, d.Reason)
	}
	d := a.Evaluate(Intent{SymbolID: 11, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonMaxTrades, d.Reason)
}

func TestDuplicateOpenRejected(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})

	d := a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.True(t, d.Allowed)

	d = a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonDuplicateOpen, d.Reason)

	// Still rejected after the fill commits.
	require.NoError(t, a.Commit(1))
	d = a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonDuplicateOpen, d.Reason)
}

func TestBudgetsNeverExceeded(t *testing.T) {
	cfg := Config{
		InitialCapital: 5000,
		InitialMargin:  300,
		RiskPerTrade:   100,
		MaxTrades:      100,
	}
	a := newTestAssessor(t, cfg)

	var committedMargin, committedCapital int64
	for i := 1; i <= 20; i++ {
		d := a.Evaluate(Intent{SymbolID: schema.SymbolID(i), Direction: schema.DirectionLong, Entry: 50, Stop: 30})
		if !d.Allowed {
			continue
		}
		committedMargin += 20 * d.Qty
		committedCapital += 50 * d.Qty
		require.LessOrEqual(t, committedMargin, int64(cfg.InitialMargin))
		require.LessOrEqual(t, committedCapital, int64(cfg.InitialCapital))
		require.NoError(t, a.Commit(schema.SymbolID(i)))
	}
	snap := a.Snapshot()
	assert.GreaterOrEqual(t, int64(snap.Capital), int64(0))
	assert.GreaterOrEqual(t, int64(snap.Margin), int64(0))
}

func TestZeroUnitRiskRejected(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})
	d := a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 100})
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonZeroRisk, d.Reason)
}

func TestReleaseRestoresBudget(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})

	before := a.Snapshot()
	d := a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.True(t, d.Allowed)

	mid := a.Snapshot()
	assert.Less(t, int64(mid.Capital), int64(before.Capital))
	assert.Equal(t, 1, mid.OpenTrades)

	require.NoError(t, a.Release(1))
	after := a.Snapshot()
	assert.Equal(t, before.Capital, after.Capital)
	assert.Equal(t, before.Margin, after.Margin)
	assert.Equal(t, 0, after.OpenTrades)
}

func TestExitRecordsOutcome(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})

	d := a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.True(t, d.Allowed)
	require.NoError(t, a.Commit(1))
	require.NoError(t, a.Exit(1, 120))

	d = a.Evaluate(Intent{SymbolID: 2, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.True(t, d.Allowed)
	require.NoError(t, a.Commit(2))
	require.NoError(t, a.Exit(2, -50))

	snap := a.Snapshot()
	assert.Equal(t, schema.Notional(70), snap.RealizedPnL)
	assert.Equal(t, 1, snap.Wins)
	assert.Equal(t, 1, snap.Losses)
	assert.Equal(t, 0, snap.OpenTrades)
}

func TestResizeGrowHoldsAdditionalBudget(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})

	intent := Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90}
	d := a.Evaluate(intent)
	require.True(t, d.Allowed)
	assert.Equal(t, int64(10), d.Qty)
	require.NoError(t, a.Commit(1))
	// committed: capital 1000, margin 100

	d = a.EvaluateResize(intent, 15)
	require.True(t, d.Allowed, "reason: %s", d.Reason)
	mid := a.Snapshot()
	assert.Equal(t, schema.Notional(10000-1500), mid.Capital)
	assert.Equal(t, schema.Notional(10000-150), mid.Margin)

	require.NoError(t, a.CommitResize(1, 0))
	after := a.Snapshot()
	assert.Equal(t, schema.Notional(8500), after.Capital)
	assert.Equal(t, schema.Notional(9850), after.Margin)
	assert.Equal(t, 1, after.OpenTrades)
}

func TestResizeShrinkCreditsOnCommit(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})

	intent := Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90}
	require.True(t, a.Evaluate(intent).Allowed)
	require.NoError(t, a.Commit(1))

	d := a.EvaluateResize(intent, 4)
	require.True(t, d.Allowed, "reason: %s", d.Reason)
	// Shrink holds nothing; the refund lands with the fill.
	mid := a.Snapshot()
	assert.Equal(t, schema.Notional(9000), mid.Capital)
	assert.Equal(t, schema.Notional(9900), mid.Margin)

	require.NoError(t, a.CommitResize(1, 30))
	after := a.Snapshot()
	assert.Equal(t, schema.Notional(9600), after.Capital)
	assert.Equal(t, schema.Notional(9960), after.Margin)
	assert.Equal(t, schema.Notional(30), after.RealizedPnL)
}

func TestResizeRejections(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 2000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})

	intent := Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90}

	d := a.EvaluateResize(intent, 5)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonNoPosition, d.Reason)

	require.True(t, a.Evaluate(intent).Allowed)
	require.NoError(t, a.Commit(1))

	d = a.EvaluateResize(intent, 0)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonZeroQty, d.Reason)

	// Growing to 25 needs 2500 capital against a 2000 budget.
	d = a.EvaluateResize(intent, 25)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonCapital, d.Reason)
}

func TestReleaseResizeRestoresHeldBudget(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})

	intent := Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90}
	require.True(t, a.Evaluate(intent).Allowed)
	require.NoError(t, a.Commit(1))
	before := a.Snapshot()

	require.True(t, a.EvaluateResize(intent, 15).Allowed)
	require.NoError(t, a.ReleaseResize(1))

	after := a.Snapshot()
	assert.Equal(t, before.Capital, after.Capital)
	assert.Equal(t, before.Margin, after.Margin)
	assert.Equal(t, 1, after.OpenTrades)

	// The original commitment is intact, so a later exit balances.
	require.NoError(t, a.Exit(1, 0))
	final := a.Snapshot()
	assert.Equal(t, schema.Notional(10000), final.Capital)
	assert.Equal(t, schema.Notional(10000), final.Margin)
}

func TestUnknownIntentErrors(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})
	assert.ErrorIs(t, a.Commit(1), ErrUnknownIntent)
	assert.ErrorIs(t, a.Release(1), ErrUnknownIntent)
	assert.ErrorIs(t, a.Exit(1, 0), ErrUnknownIntent)
	assert.ErrorIs(t, a.CommitResize(1, 0), ErrUnknownIntent)
	assert.ErrorIs(t, a.ReleaseResize(1), ErrUnknownIntent)
}

func TestResetRestoresInitialState(t *testing.T) {
	a := newTestAssessor(t, Config{
		InitialCapital: 10000,
		InitialMargin:  10000,
		RiskPerTrade:   100,
		MaxTrades:      10,
	})
	d := a.Evaluate(Intent{SymbolID: 1, Direction: schema.DirectionLong, Entry: 100, Stop: 90})
	require.True(t, d.Allowed)
	require.NoError(t, a.Commit(1))

	a.Reset()
	snap := a.Snapshot()
	assert.Equal(t, schema.Notional(10000), snap.Capital)
	assert.Equal(t, schema.Notional(10000), snap.Margin)
	assert.Equal(t, 0, snap.OpenTrades)
	assert.False(t, a.Halted())
}
