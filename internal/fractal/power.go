package fractal

import (
	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/pkg/errors"
)

const maxPower = 28

func init() {
	Register(Info{
		Type:     MandelPower,
		Name:     "mandelpower",
		Defaults: Params{0, 0, 3},
		Corners:  [4]float64{-1.5, 1.5, -1.5, 1.5},
		Bailout:  DefaultBailout,
		New:      newMandelPower,
	})
}

// mandelPower iterates zⁿ + c for integer n = params[2].
type mandelPower struct {
	params Params
	n      int
	binom  []float64 // binom[j] = C(n, j)
}

func newMandelPower(p Params) (Kernel, error) {
	n := int(p[2])
	if float64(n) != p[2] || n < 2 || n > maxPower {
		return nil, errors.Errorf("fractal: mandelpower exponent %v not an integer in [2, %d]", p[2], maxPower)
	}
	binom := make([]float64, n+1)
	binom[0] = 1
	for j := 1; j <= n; j++ {
		binom[j] = binom[j-1] * float64(n-j+1) / float64(j)
	}
	return mandelPower{params: p, n: n, binom: binom}, nil
}

func (mandelPower) Type() Type       { return MandelPower }
func (mandelPower) IsInteger() bool  { return false }
func (k mandelPower) Params() Params { return k.params }

func (k mandelPower) pow(z complex128) complex128 {
	p := z
	for range k.n - 1 {
		p *= z
	}
	return p
}

func (mandelPower) Start(pixel complex128) (z, c complex128) { return pixel, pixel }
func (k mandelPower) Step(z, c complex128) complex128        { return k.pow(z) + c }

func (mandelPower) ReferenceStart(center complex128) (z, c complex128) { return center, center }
func (k mandelPower) ReferenceStep(z, c complex128) complex128         { return k.pow(z) + c }

// DeltaStep expands (Z+d)ⁿ - Zⁿ = sum over j >= 1 of C(n,j) Z^(n-j) d^j,
// evaluated by Horner's rule in d.
func (k mandelPower) DeltaStep(ref, dn, d0 complex128) complex128 {
	s := complex(k.binom[k.n], 0)
	zp := ref
	for j := k.n - 1; j >= 1; j-- {
		s = s*dn + complex(k.binom[j], 0)*zp
		zp *= ref
	}
	return s*dn + d0
}

func (mandelPower) StartBig(a *bigfloat.Arena, z, c, pixel BigComplex, _ []bigfloat.Handle) error {
	z.Set(pixel)
	c.Set(pixel)
	return nil
}

func (k mandelPower) StepBig(a *bigfloat.Arena, z, c BigComplex) error {
	defer a.Restore(a.Save())
	p, err := AllocComplex(a)
	if err != nil {
		return err
	}
	p.Set(z)
	for range k.n - 1 {
		if err := bigMul(a, p, p, z); err != nil {
			return err
		}
	}
	bigfloat.Add(z.Re, p.Re, c.Re)
	bigfloat.Add(z.Im, p.Im, c.Im)
	return nil
}
