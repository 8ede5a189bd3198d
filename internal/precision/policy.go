package precision

// Policy holds the user overrides that steer escalation to BigFloat.
type Policy struct {
	// ForceArbitrary keeps BigFloat math even when doubles would do.
	ForceArbitrary bool
	// PreventArbitrary never escalates; the viewport is expanded instead.
	PreventArbitrary bool
	// MathTolerance is the second math tolerance. At 1 or above BigFloat
	// is never used.
	MathTolerance float64
}

// KeepBig reports whether a frame already in BigFloat needing digits
// decimal digits should stay there.
func (p Policy) KeepBig(digits int) bool {
	if p.MathTolerance >= 1 || p.PreventArbitrary {
		return false
	}
	return digits > DoubleDigits+1 || p.ForceArbitrary
}

// AllowBig reports whether a double frame may escalate to BigFloat.
func (p Policy) AllowBig() bool {
	return !p.PreventArbitrary && p.MathTolerance < 1
}
