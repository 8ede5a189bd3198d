package bigfloat

import (
	"math"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// The arithmetic functions write their result into dst and return it.
// Operands may alias dst. None of them allocate arena slots.

func Add(dst, x, y Handle) Handle { dst.float().Add(x.float(), y.float()); return dst }
func Sub(dst, x, y Handle) Handle { dst.float().Sub(x.float(), y.float()); return dst }
func Mul(dst, x, y Handle) Handle { dst.float().Mul(x.float(), y.float()); return dst }
func Sqr(dst, x Handle) Handle    { f := x.float(); dst.float().Mul(f, f); return dst }
func Neg(dst, x Handle) Handle    { dst.float().Neg(x.float()); return dst }
func Abs(dst, x Handle) Handle    { dst.float().Abs(x.float()); return dst }
func Set(dst, x Handle) Handle    { dst.float().Set(x.float()); return dst }

// Quo sets dst to x/y. Dividing by zero yields a signed infinity; 0/0 is
// reported as ErrDomain and leaves dst unchanged.
func Quo(dst, x, y Handle) (Handle, error) {
	xf, yf := x.float(), y.float()
	if xf.Sign() == 0 && yf.Sign() == 0 {
		return dst, errors.Wrap(ErrDomain, "0/0")
	}
	dst.float().Quo(xf, yf)
	return dst, nil
}

// MulInt sets dst to x*n.
func MulInt(dst, x Handle, n int64) Handle {
	var t big.Float
	t.SetInt64(n)
	dst.float().Mul(x.float(), &t)
	return dst
}

// QuoInt sets dst to x/n. n must not be zero.
func QuoInt(dst, x Handle, n int64) Handle {
	if n == 0 {
		panic("bigfloat: QuoInt by zero")
	}
	var t big.Float
	t.SetInt64(n)
	dst.float().Quo(x.float(), &t)
	return dst
}

// Half sets dst to x/2 exactly.
func Half(dst, x Handle) Handle {
	f := dst.float()
	f.SetMantExp(x.float(), -1)
	return dst
}

// Double sets dst to 2x exactly.
func Double(dst, x Handle) Handle {
	f := dst.float()
	f.SetMantExp(x.float(), 1)
	return dst
}

// PowInt sets dst to x**n by repeated squaring. Negative exponents take the
// reciprocal; 0**n for n < 0 is ErrDomain.
func PowInt(dst, x Handle, n int) (Handle, error) {
	prec := dst.float().Prec()
	base := new(big.Float).SetPrec(prec + 32).Set(x.float())
	if n < 0 && base.Sign() == 0 {
		return dst, errors.Wrap(ErrDomain, "zero to negative power")
	}
	acc := new(big.Float).SetPrec(prec + 32).SetInt64(1)
	e := n
	if e < 0 {
		e = -e
	}
	for ; e > 0; e >>= 1 {
		if e&1 == 1 {
			acc.Mul(acc, base)
		}
		base.Mul(base, base)
	}
	if n < 0 {
		acc.Quo(new(big.Float).SetInt64(1), acc)
	}
	dst.float().Set(acc)
	return dst, nil
}

func Cmp(x, y Handle) int  { return x.float().Cmp(y.float()) }
func Sign(x Handle) int    { return x.float().Sign() }
func IsZero(x Handle) bool { return x.float().Sign() == 0 }

// CmpAbs compares |x| and |y|.
func CmpAbs(x, y Handle) int {
	var ax, ay big.Float
	ax.Abs(x.float())
	ay.Abs(y.float())
	return ax.Cmp(&ay)
}

// SetInt sets dst to n.
func SetInt(dst Handle, n int64) Handle { dst.float().SetInt64(n); return dst }

// SetFloat64 sets dst to f. NaN is rejected.
func SetFloat64(dst Handle, f float64) (Handle, error) {
	if math.IsNaN(f) {
		return dst, errors.Wrap(ErrDomain, "NaN")
	}
	dst.float().SetFloat64(f)
	return dst, nil
}

// Float64 returns the float64 nearest to x. Values out of range become
// infinities or zero.
func Float64(x Handle) float64 {
	f, _ := x.float().Float64()
	return f
}

// SetString parses a decimal number such as "-1.25e-40" into dst at the
// arena's precision.
func SetString(dst Handle, s string) (Handle, error) {
	s = strings.TrimSpace(s)
	if _, ok := dst.float().SetString(s); !ok {
		return dst, errors.Wrapf(ErrSyntax, "%q", s)
	}
	return dst, nil
}

// Text formats x in decimal with the given number of significant digits.
func Text(x Handle, digits int) string {
	return x.float().Text('g', digits)
}

// Exponent10 returns the decimal exponent of x as printed in scientific
// notation, so Exponent10 of 1.5e15 is 15. Zero has exponent 0.
func Exponent10(x Handle) int {
	f := x.float()
	if f.Sign() == 0 || f.IsInf() {
		return 0
	}
	s := f.Text('e', 20)
	i := strings.LastIndexByte(s, 'e')
	var e int
	neg := false
	for _, c := range s[i+1:] {
		switch {
		case c == '-':
			neg = true
		case c >= '0' && c <= '9':
			e = e*10 + int(c-'0')
		}
	}
	if neg {
		e = -e
	}
	return e
}

// ToBig returns a copy of x that does not live in the arena.
func ToBig(x Handle) *big.Float {
	return new(big.Float).Copy(x.float())
}

// SetBig sets dst to v, rounded to the arena precision.
func SetBig(dst Handle, v *big.Float) Handle {
	dst.float().Set(v)
	return dst
}
