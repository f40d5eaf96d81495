package fixmath_test

import (
	"testing"

	"StarLedger/internal/fixmath"
)

// ============================================================================
// Test: MulDiv rounding
// ============================================================================

func TestMulDiv_Exact(t *testing.T) {
	if got := fixmath.MulDiv(100, 50, 10); got != 500 {
		t.Errorf("got %d, want 500", got)
	}
}

func TestMulDiv_BankersRounding(t *testing.T) {
	// 5 / 2 = 2.5 -> rounds to even 2
	if got := fixmath.MulDiv(5, 1, 2); got != 2 {
		t.Errorf("2.5 should round to 2, got %d", got)
	}
	// 7 / 2 = 3.5 -> rounds to even 4
	if got := fixmath.MulDiv(7, 1, 2); got != 4 {
		t.Errorf("3.5 should round to 4, got %d", got)
	}
	// 2.6 -> 3
	if got := fixmath.MulDiv(13, 1, 5); got != 3 {
		t.Errorf("2.6 should round to 3, got %d", got)
	}
}

func TestMulDiv_Negative(t *testing.T) {
	if got := fixmath.MulDiv(-100, 3, 2); got != -150 {
		t.Errorf("got %d, want -150", got)
	}
}

func TestMulDiv_LargeOperands_NoOverflow(t *testing.T) {
	// 9e18 * 2 would overflow int64; the 128-bit intermediate must not.
	got := fixmath.MulDiv(9_000_000_000_000_000_000, 2, 4)
	if got != 4_500_000_000_000_000_000 {
		t.Errorf("got %d", got)
	}
}

// ============================================================================
// Test: SinUnit
// ============================================================================

func TestSinUnit_Zeros(t *testing.T) {
	for _, phase := range []int64{0, fixmath.Pi, fixmath.TwoPi, -fixmath.TwoPi, 10 * fixmath.TwoPi} {
		if got := fixmath.SinUnit(phase); got != 0 {
			t.Errorf("SinUnit(%d) = %d, want 0", phase, got)
		}
	}
}

func TestSinUnit_Peak(t *testing.T) {
	got := fixmath.SinUnit(fixmath.Pi / 2)
	// Bhaskara is exact at pi/2.
	if got < 999_000 || got > 1_000_000 {
		t.Errorf("SinUnit(pi/2) = %d, want ~1_000_000", got)
	}
}

func TestSinUnit_Trough(t *testing.T) {
	got := fixmath.SinUnit(fixmath.Pi + fixmath.Pi/2)
	if got > -999_000 || got < -1_000_000 {
		t.Errorf("SinUnit(3pi/2) = %d, want ~-1_000_000", got)
	}
}

func TestSinUnit_Symmetry(t *testing.T) {
	for _, x := range []int64{100_000, 500_000, 1_000_000, 2_000_000, 3_000_000} {
		pos := fixmath.SinUnit(x)
		neg := fixmath.SinUnit(-x)
		if pos != -neg {
			t.Errorf("sin(%d)=%d, sin(-%d)=%d: odd symmetry violated", x, pos, x, neg)
		}
	}
}

func TestSinUnit_Bounded(t *testing.T) {
	for phase := int64(-10_000_000); phase <= 10_000_000; phase += 37_321 {
		got := fixmath.SinUnit(phase)
		if got > fixmath.UnitScale || got < -fixmath.UnitScale {
			t.Fatalf("SinUnit(%d) = %d exceeds unit scale", phase, got)
		}
	}
}

func TestSinUnit_Deterministic(t *testing.T) {
	for _, phase := range []int64{1, 123_456, 7_654_321, -99_999} {
		a := fixmath.SinUnit(phase)
		b := fixmath.SinUnit(phase)
		if a != b {
			t.Errorf("SinUnit(%d) not stable: %d vs %d", phase, a, b)
		}
	}
}
