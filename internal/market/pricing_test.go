package market_test

import (
	"testing"
	"time"

	"StarLedger/internal/clock"
	"StarLedger/internal/market"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func record(base, vol int64) market.PriceRecord {
	return market.PriceRecord{BasePrice: base, Volatility: vol, LastUpdate: epoch}
}

// ============================================================================
// Test: PriceAt
// ============================================================================

func TestPriceAt_ZeroElapsed_IsBase(t *testing.T) {
	rec := record(100, 10)
	if got := market.PriceAt(rec, epoch); got != 100 {
		t.Errorf("price at last_update should equal base: got %d", got)
	}
}

func TestPriceAt_Deterministic(t *testing.T) {
	rec := record(5000, 10)
	now := epoch.Add(97 * time.Minute)

	a := market.PriceAt(rec, now)
	b := market.PriceAt(rec, now)
	if a != b {
		t.Errorf("same now produced different prices: %d vs %d", a, b)
	}
}

func TestPriceAt_BoundedOscillation(t *testing.T) {
	rec := record(1000, 10)
	lo, hi := int64(900), int64(1100)

	var sawAbove, sawBelow bool
	for m := int64(0); m < 12*60; m += 7 {
		now := epoch.Add(time.Duration(m) * time.Minute)
		p := market.PriceAt(rec, now)
		if p < lo || p > hi {
			t.Fatalf("price %d at +%dm outside [%d, %d]", p, m, lo, hi)
		}
		if p > 1000 {
			sawAbove = true
		}
		if p < 1000 {
			sawBelow = true
		}
	}
	if !sawAbove || !sawBelow {
		t.Error("oscillation should move both above and below base over half a period")
	}
}

func TestPriceAt_PeakNearQuarterPeriod(t *testing.T) {
	rec := record(1000, 10)
	// Phase pi/2 at elapsed = (pi/2)*3600s ~= 5655s.
	p := market.PriceAt(rec, epoch.Add(5655*time.Second))
	if p < 1099 || p > 1100 {
		t.Errorf("expected near-peak price ~1100, got %d", p)
	}
}

// ============================================================================
// Test: Engine
// ============================================================================

func TestEngine_Current_UsesClock(t *testing.T) {
	clk := clock.NewManual(epoch)
	eng := market.NewEngine(clk)
	rec := record(100, 10)

	if got := eng.Current(rec); got != 100 {
		t.Errorf("got %d, want 100", got)
	}

	clk.Advance(5655 * time.Second)
	if got := eng.Current(rec); got <= 100 {
		t.Errorf("price should rise on the first quarter period, got %d", got)
	}
}

func TestEngine_Trend_NeutralAtBase(t *testing.T) {
	eng := market.NewEngine(clock.NewManual(epoch))
	if got := eng.Trend(record(100, 10)); got != 0 {
		t.Errorf("trend at base price should be 0, got %d", got)
	}
}

func TestEngine_Trend_BullishAtPeak(t *testing.T) {
	clk := clock.NewManual(epoch)
	clk.Advance(5655 * time.Second)
	eng := market.NewEngine(clk)

	got := eng.Trend(record(1000, 10))
	if got < 95 || got > 100 {
		t.Errorf("trend at peak should approach 100, got %d", got)
	}
}

func TestEngine_Trend_BearishAtTrough(t *testing.T) {
	clk := clock.NewManual(epoch)
	// Phase 3pi/2 at elapsed ~= 16965s.
	clk.Advance(16965 * time.Second)
	eng := market.NewEngine(clk)

	got := eng.Trend(record(1000, 10))
	if got > -95 || got < -100 {
		t.Errorf("trend at trough should approach -100, got %d", got)
	}
}

func TestEngine_Trend_ZeroVolatility(t *testing.T) {
	eng := market.NewEngine(clock.NewManual(epoch))
	if got := eng.Trend(record(1000, 0)); got != 0 {
		t.Errorf("zero volatility should have zero trend, got %d", got)
	}
}
