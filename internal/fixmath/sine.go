package fixmath

// Angles are integer micro-radians. Pi is rounded to the nearest micro-radian;
// every implementation on every platform reduces and evaluates identically.
const (
	Pi    int64 = 3_141_593
	TwoPi int64 = 2 * Pi
)

// SinUnit evaluates sine at a micro-radian phase and returns the result
// scaled by UnitScale, in [-UnitScale, UnitScale].
//
// The evaluation is Bhaskara I's rational approximation
//
//	sin(x) ~= 16x(pi-x) / (5pi^2 - 4x(pi-x))  for x in [0, pi]
//
// computed entirely in integer arithmetic. Worst-case error is about 0.0016
// of full scale, well inside the tolerance of a game price oscillator, and
// the result is bit-for-bit reproducible.
func SinUnit(phase int64) int64 {
	x := phase % TwoPi
	if x < 0 {
		x += TwoPi
	}

	sign := int64(1)
	if x > Pi {
		x -= Pi
		sign = -1
	}

	// a = x(pi-x), at most (pi/2)^2 ~= 2.47e12: fits int64.
	a := x * (Pi - x)
	if a == 0 {
		return 0
	}

	num := MultiplyInt128(16*a, UnitScale)
	denom := 5*Pi*Pi - 4*a

	return sign * DivideInt128(num, denom, RoundHalfEven)
}
