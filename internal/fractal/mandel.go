package fractal

import (
	"github.com/marben/deepzoom/internal/bigfloat"
)

func init() {
	Register(Info{
		Type:    Mandel,
		Name:    "mandel",
		Corners: [4]float64{-2.5, 1.5, -1.5, 1.5},
		Bailout: DefaultBailout,
		New:     func(p Params) (Kernel, error) { return mandel{params: p}, nil },
	})
	Register(Info{
		Type:     Julia,
		Name:     "julia",
		Defaults: Params{0.3, 0.6},
		Corners:  [4]float64{-2, 2, -1.5, 1.5},
		Bailout:  DefaultBailout,
		New:      func(p Params) (Kernel, error) { return julia{params: p}, nil },
	})
}

// mandel iterates z² + c starting from z = c.
type mandel struct {
	params Params
}

func (mandel) Type() Type       { return Mandel }
func (mandel) IsInteger() bool  { return false }
func (k mandel) Params() Params { return k.params }

func (mandel) Start(pixel complex128) (z, c complex128) { return pixel, pixel }
func (mandel) Step(z, c complex128) complex128          { return z*z + c }

func (mandel) ReferenceStart(center complex128) (z, c complex128) { return center, center }
func (mandel) ReferenceStep(z, c complex128) complex128           { return z*z + c }

// DeltaStep expands (Z+d)² + (C+d0) - (Z² + C) = 2Zd + d² + d0.
func (mandel) DeltaStep(ref, dn, d0 complex128) complex128 {
	r, i := real(ref), imag(ref)
	a, b := real(dn), imag(dn)
	re := (2*r+a)*a - (2*i+b)*b + real(d0)
	im := 2*((r+a)*b+i*a) + imag(d0)
	return complex(re, im)
}

func (mandel) StartBig(a *bigfloat.Arena, z, c, pixel BigComplex, _ []bigfloat.Handle) error {
	z.Set(pixel)
	c.Set(pixel)
	return nil
}

func (mandel) StepBig(a *bigfloat.Arena, z, c BigComplex) error {
	return squareAdd(a, z, c)
}

// squareAdd sets z to z² + c.
func squareAdd(a *bigfloat.Arena, z, c BigComplex) error {
	defer a.Restore(a.Save())
	t, err := a.AllocN(2)
	if err != nil {
		return err
	}
	bigfloat.Sqr(t[0], z.Re)
	bigfloat.Sqr(t[1], z.Im)
	bigfloat.Mul(z.Im, z.Re, z.Im)
	bigfloat.Double(z.Im, z.Im)
	bigfloat.Add(z.Im, z.Im, c.Im)
	bigfloat.Sub(z.Re, t[0], t[1])
	bigfloat.Add(z.Re, z.Re, c.Re)
	return nil
}

// julia iterates z² + k for the constant k = params[0] + i params[1].
type julia struct {
	params Params
}

func (julia) Type() Type       { return Julia }
func (julia) IsInteger() bool  { return false }
func (k julia) Params() Params { return k.params }

func (k julia) constant() complex128 { return complex(k.params[0], k.params[1]) }

func (k julia) Start(pixel complex128) (z, c complex128) { return pixel, k.constant() }
func (julia) Step(z, c complex128) complex128            { return z*z + c }

func (k julia) ReferenceStart(center complex128) (z, c complex128) { return center, k.constant() }
func (julia) ReferenceStep(z, c complex128) complex128             { return z*z + c }

// DeltaStep is 2Zd + d²; the constant cancels.
func (julia) DeltaStep(ref, dn, _ complex128) complex128 {
	return (2*ref + dn) * dn
}

func (k julia) StartBig(a *bigfloat.Arena, z, c, pixel BigComplex, params []bigfloat.Handle) error {
	z.Set(pixel)
	if len(params) >= 2 {
		bigfloat.Set(c.Re, params[0])
		bigfloat.Set(c.Im, params[1])
		return nil
	}
	if _, err := bigfloat.SetFloat64(c.Re, k.params[0]); err != nil {
		return err
	}
	_, err := bigfloat.SetFloat64(c.Im, k.params[1])
	return err
}

func (julia) StepBig(a *bigfloat.Arena, z, c BigComplex) error {
	return squareAdd(a, z, c)
}
