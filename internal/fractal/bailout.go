package fractal

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// BailoutTest selects how an iterate is compared with the bailout limit.
type BailoutTest int

const (
	Mod  BailoutTest = iota // x² + y²
	Real                    // x²
	Imag                    // y²
	Or                      // x² or y²
	And                     // x² and y²
	Manh                    // (|x| + |y|)²
	Manr                    // (x + y)²
)

// DefaultBailout is the escape limit used when a type does not set one.
const DefaultBailout = 4.0

var bailoutNames = [...]string{"mod", "real", "imag", "or", "and", "manh", "manr"}

func (b BailoutTest) String() string {
	if b < 0 || int(b) >= len(bailoutNames) {
		return "unknown"
	}
	return bailoutNames[b]
}

// ParseBailoutTest parses a bailoutest value.
func ParseBailoutTest(s string) (BailoutTest, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range bailoutNames {
		if name == s {
			return BailoutTest(i), nil
		}
	}
	return Mod, errors.Errorf("fractal: unknown bailout test %q", s)
}

// Escaped reports whether z is past limit under test b.
func (b BailoutTest) Escaped(z complex128, limit float64) bool {
	x, y := real(z), imag(z)
	switch b {
	case Real:
		return x*x >= limit
	case Imag:
		return y*y >= limit
	case Or:
		return x*x >= limit || y*y >= limit
	case And:
		return x*x >= limit && y*y >= limit
	case Manh:
		m := math.Abs(x) + math.Abs(y)
		return m*m >= limit
	case Manr:
		m := x + y
		return m*m >= limit
	default:
		return x*x+y*y >= limit
	}
}
