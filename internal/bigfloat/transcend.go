package bigfloat

import (
	"math/big"
	"sync"

	"github.com/pkg/errors"
)

const guardBits = 64

// constants caches ln 2 and pi per working precision.
var constants = struct {
	sync.Mutex
	ln2 map[uint]*big.Float
	pi  map[uint]*big.Float
}{ln2: map[uint]*big.Float{}, pi: map[uint]*big.Float{}}

func newFloat(prec uint) *big.Float { return new(big.Float).SetPrec(prec) }

func small(x *big.Float, prec uint) bool {
	return x.Sign() == 0 || x.MantExp(nil) < -int(prec)
}

// atanhInv returns atanh(1/n) = sum 1/((2k+1) n^(2k+1)).
func atanhInv(n int64, prec uint) *big.Float {
	nn := newFloat(prec).SetInt64(n * n)
	pow := newFloat(prec).SetInt64(n)
	pow.Quo(newFloat(prec).SetInt64(1), pow)
	sum := newFloat(prec).Set(pow)
	term := newFloat(prec)
	for k := int64(1); ; k++ {
		pow.Quo(pow, nn)
		term.Quo(pow, newFloat(prec).SetInt64(2*k+1))
		if small(term, prec) {
			break
		}
		sum.Add(sum, term)
	}
	return sum
}

// atanInv returns atan(1/n) = sum (-1)^k/((2k+1) n^(2k+1)).
func atanInv(n int64, prec uint) *big.Float {
	nn := newFloat(prec).SetInt64(n * n)
	pow := newFloat(prec).SetInt64(n)
	pow.Quo(newFloat(prec).SetInt64(1), pow)
	sum := newFloat(prec).Set(pow)
	term := newFloat(prec)
	for k := int64(1); ; k++ {
		pow.Quo(pow, nn)
		term.Quo(pow, newFloat(prec).SetInt64(2*k+1))
		if small(term, prec) {
			break
		}
		if k%2 == 1 {
			sum.Sub(sum, term)
		} else {
			sum.Add(sum, term)
		}
	}
	return sum
}

func ln2(prec uint) *big.Float {
	constants.Lock()
	defer constants.Unlock()
	if v, ok := constants.ln2[prec]; ok {
		return v
	}
	// ln 2 = 2 atanh(1/3)
	v := atanhInv(3, prec)
	v.SetMantExp(v, 1)
	constants.ln2[prec] = v
	return v
}

func pi(prec uint) *big.Float {
	constants.Lock()
	defer constants.Unlock()
	if v, ok := constants.pi[prec]; ok {
		return v
	}
	// Machin: pi = 16 atan(1/5) - 4 atan(1/239)
	a := atanInv(5, prec)
	a.SetMantExp(a, 4)
	b := atanInv(239, prec)
	b.SetMantExp(b, 2)
	v := newFloat(prec).Sub(a, b)
	constants.pi[prec] = v
	return v
}

// Sqrt sets dst to the square root of x.
func Sqrt(dst, x Handle) (Handle, error) {
	xf := x.float()
	if xf.Sign() < 0 {
		return dst, errors.Wrap(ErrDomain, "sqrt of negative number")
	}
	dst.float().Sqrt(xf)
	return dst, nil
}

// Exp sets dst to e**x.
func Exp(dst, x Handle) Handle {
	prec := dst.float().Prec() + guardBits
	dst.float().Set(exp(newFloat(prec).Set(x.float()), prec))
	return dst
}

func exp(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return newFloat(prec).SetInt64(1)
	}
	// x = k ln2 + r, |r| <= ln2/2
	l2 := ln2(prec)
	q := newFloat(prec).Quo(x, l2)
	k, _ := q.Int64()
	if q.Sign() > 0 {
		if newFloat(prec).Sub(q, newFloat(prec).SetInt64(k)).Cmp(big.NewFloat(0.5)) > 0 {
			k++
		}
	} else if newFloat(prec).Sub(newFloat(prec).SetInt64(k), q).Cmp(big.NewFloat(0.5)) > 0 {
		k--
	}
	r := newFloat(prec).Sub(x, newFloat(prec).Mul(newFloat(prec).SetInt64(k), l2))

	// Shrink r further so the series converges quickly, then square back.
	const halvings = 16
	r.SetMantExp(r, -halvings)
	sum := newFloat(prec).SetInt64(1)
	term := newFloat(prec).SetInt64(1)
	for n := int64(1); ; n++ {
		term.Mul(term, r)
		term.Quo(term, newFloat(prec).SetInt64(n))
		if small(term, prec) {
			break
		}
		sum.Add(sum, term)
	}
	for range halvings {
		sum.Mul(sum, sum)
	}
	return sum.SetMantExp(sum, int(k))
}

// Ln sets dst to the natural logarithm of x. x must be positive.
func Ln(dst, x Handle) (Handle, error) {
	xf := x.float()
	if xf.Sign() <= 0 {
		return dst, errors.Wrap(ErrDomain, "log of non-positive number")
	}
	prec := dst.float().Prec() + guardBits
	dst.float().Set(ln(newFloat(prec).Set(xf), prec))
	return dst, nil
}

func ln(x *big.Float, prec uint) *big.Float {
	// x = m 2**e with m in [0.5, 1); ln m = 2 atanh((m-1)/(m+1))
	m := newFloat(prec)
	e := x.MantExp(m)
	one := newFloat(prec).SetInt64(1)
	t := newFloat(prec).Sub(m, one)
	t.Quo(t, newFloat(prec).Add(m, one))
	t2 := newFloat(prec).Mul(t, t)
	sum := newFloat(prec).Set(t)
	pow := newFloat(prec).Set(t)
	term := newFloat(prec)
	for k := int64(1); ; k++ {
		pow.Mul(pow, t2)
		term.Quo(pow, newFloat(prec).SetInt64(2*k+1))
		if small(term, prec) {
			break
		}
		sum.Add(sum, term)
	}
	sum.SetMantExp(sum, 1)
	return sum.Add(sum, newFloat(prec).Mul(newFloat(prec).SetInt64(int64(e)), ln2(prec)))
}

// SinCos sets sin and cos to the sine and cosine of x. sin and cos must be
// distinct handles; either may alias x.
func SinCos(sin, cos, x Handle) {
	prec := sin.float().Prec() + guardBits
	s, c := sincos(newFloat(prec).Set(x.float()), prec)
	sin.float().Set(s)
	cos.float().Set(c)
}

func sincos(x *big.Float, prec uint) (*big.Float, *big.Float) {
	// reduce to [-pi, pi]
	twoPi := newFloat(prec).SetMantExp(pi(prec), 1)
	q := newFloat(prec).Quo(x, twoPi)
	k := new(big.Int)
	q.Int(k)
	if k.Sign() != 0 {
		x = newFloat(prec).Sub(x, newFloat(prec).Mul(newFloat(prec).SetInt(k), twoPi))
	}

	const halvings = 8
	r := newFloat(prec).SetMantExp(x, -halvings)
	r2 := newFloat(prec).Mul(r, r)

	s := newFloat(prec).Set(r)
	c := newFloat(prec).SetInt64(1)
	term := newFloat(prec).Set(r)
	for n := int64(2); ; n += 2 {
		term.Mul(term, r2)
		term.Quo(term, newFloat(prec).SetInt64(n*(n+1)))
		term.Neg(term)
		if small(term, prec) {
			break
		}
		s.Add(s, term)
	}
	term.SetInt64(1)
	for n := int64(1); ; n += 2 {
		term.Mul(term, r2)
		term.Quo(term, newFloat(prec).SetInt64(n*(n+1)))
		term.Neg(term)
		if small(term, prec) {
			break
		}
		c.Add(c, term)
	}
	// double angle: sin 2a = 2 sin a cos a, cos 2a = cos²a - sin²a
	t := newFloat(prec)
	for range halvings {
		t.Mul(s, c)
		t.SetMantExp(t, 1)
		c.Sub(newFloat(prec).Mul(c, c), newFloat(prec).Mul(s, s))
		s.Set(t)
	}
	return s, c
}

// Atan2 sets dst to the angle of the point (x, y) in (-pi, pi].
func Atan2(dst, y, x Handle) Handle {
	prec := dst.float().Prec() + guardBits
	yf, xf := y.float(), x.float()
	out := newFloat(prec)
	switch {
	case xf.Sign() == 0 && yf.Sign() == 0:
		out.SetInt64(0)
	case xf.Sign() == 0:
		out.SetMantExp(pi(prec), -1)
		if yf.Sign() < 0 {
			out.Neg(out)
		}
	default:
		t := newFloat(prec).Quo(yf, xf)
		out = atan(t, prec)
		if xf.Sign() < 0 {
			if yf.Sign() >= 0 {
				out.Add(out, pi(prec))
			} else {
				out.Sub(out, pi(prec))
			}
		}
	}
	dst.float().Set(out)
	return dst
}

func atan(t *big.Float, prec uint) *big.Float {
	one := newFloat(prec).SetInt64(1)
	neg := t.Sign() < 0
	a := newFloat(prec).Abs(t)
	invert := a.Cmp(one) > 0
	if invert {
		a.Quo(one, a)
	}
	// atan a = 2 atan(a / (1 + sqrt(1 + a²)))
	const halvings = 4
	for range halvings {
		d := newFloat(prec).Mul(a, a)
		d.Add(d, one)
		d.Sqrt(d)
		d.Add(d, one)
		a.Quo(a, d)
	}
	a2 := newFloat(prec).Mul(a, a)
	sum := newFloat(prec).Set(a)
	pow := newFloat(prec).Set(a)
	term := newFloat(prec)
	for k := int64(1); ; k++ {
		pow.Mul(pow, a2)
		term.Quo(pow, newFloat(prec).SetInt64(2*k+1))
		if small(term, prec) {
			break
		}
		if k%2 == 1 {
			sum.Sub(sum, term)
		} else {
			sum.Add(sum, term)
		}
	}
	sum.SetMantExp(sum, halvings)
	if invert {
		sum.Sub(newFloat(prec).SetMantExp(pi(prec), -1), sum)
	}
	if neg {
		sum.Neg(sum)
	}
	return sum
}
