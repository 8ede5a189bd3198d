package fractal

import (
	"math"

	"github.com/marben/deepzoom/internal/bigfloat"
)

func init() {
	Register(Info{
		Type:    BurningShip,
		Name:    "burning-ship",
		Corners: [4]float64{-2.5, 1.5, -2, 1},
		Bailout: DefaultBailout,
		New:     func(p Params) (Kernel, error) { return burningShip{params: p}, nil },
	})
}

// burningShip iterates (|x| + i|y|)² + c.
type burningShip struct {
	params Params
}

func (burningShip) Type() Type       { return BurningShip }
func (burningShip) IsInteger() bool  { return false }
func (k burningShip) Params() Params { return k.params }

func shipStep(z, c complex128) complex128 {
	x, y := real(z), imag(z)
	return complex(x*x-y*y+real(c), 2*math.Abs(x*y)+imag(c))
}

func (burningShip) Start(pixel complex128) (z, c complex128) { return pixel, pixel }
func (burningShip) Step(z, c complex128) complex128          { return shipStep(z, c) }

func (burningShip) ReferenceStart(center complex128) (z, c complex128) { return center, center }
func (burningShip) ReferenceStep(z, c complex128) complex128           { return shipStep(z, c) }

// diffAbs returns |c+d| - |c| without cancellation.
func diffAbs(c, d float64) float64 {
	if c >= 0 {
		if c+d >= 0 {
			return d
		}
		return -(2*c + d)
	}
	if c+d > 0 {
		return 2*c + d
	}
	return -d
}

func (burningShip) DeltaStep(ref, dn, d0 complex128) complex128 {
	r, i := real(ref), imag(ref)
	a, b := real(dn), imag(dn)
	re := 2*a*r + a*a - 2*b*i - b*b + real(d0)
	im := 2*diffAbs(r*i, r*b+i*a+a*b) + imag(d0)
	return complex(re, im)
}

func (burningShip) StartBig(a *bigfloat.Arena, z, c, pixel BigComplex, _ []bigfloat.Handle) error {
	z.Set(pixel)
	c.Set(pixel)
	return nil
}

func (burningShip) StepBig(a *bigfloat.Arena, z, c BigComplex) error {
	defer a.Restore(a.Save())
	t, err := a.AllocN(2)
	if err != nil {
		return err
	}
	bigfloat.Sqr(t[0], z.Re)
	bigfloat.Sqr(t[1], z.Im)
	bigfloat.Mul(z.Im, z.Re, z.Im)
	bigfloat.Abs(z.Im, z.Im)
	bigfloat.Double(z.Im, z.Im)
	bigfloat.Add(z.Im, z.Im, c.Im)
	bigfloat.Sub(z.Re, t[0], t[1])
	bigfloat.Add(z.Re, z.Re, c.Re)
	return nil
}
