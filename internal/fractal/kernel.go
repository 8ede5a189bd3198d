// Package fractal holds the escape-time kernels: the per-type iteration
// formulas, their perturbation deltas and the bailout tests.
package fractal

import (
	"sort"
	"strings"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/pkg/errors"
)

// Type identifies a registered fractal kernel.
type Type int

const (
	Mandel Type = iota
	Julia
	MandelPower
	BurningShip
	Lambda
)

// MaxParams is the number of parameter slots a fractal type may use.
const MaxParams = 10

// Params are the type specific parameters, such as the Julia constant.
type Params [MaxParams]float64

var ErrUnknownType = errors.New("fractal: unknown fractal type")

// BigComplex is a complex number held in arena slots.
type BigComplex struct {
	Re, Im bigfloat.Handle
}

// AllocComplex allocates a zero BigComplex.
func AllocComplex(a *bigfloat.Arena) (BigComplex, error) {
	hs, err := a.AllocN(2)
	if err != nil {
		return BigComplex{}, err
	}
	return BigComplex{Re: hs[0], Im: hs[1]}, nil
}

// Complex128 truncates z to double precision.
func (z BigComplex) Complex128() complex128 {
	return complex(bigfloat.Float64(z.Re), bigfloat.Float64(z.Im))
}

// Set copies src into z.
func (z BigComplex) Set(src BigComplex) {
	bigfloat.Set(z.Re, src.Re)
	bigfloat.Set(z.Im, src.Im)
}

// Kernel is the double precision escape-time formula of a fractal type.
// Start maps a pixel's plane coordinate to the first iterate and the
// constant term; Step applies one iteration.
type Kernel interface {
	Type() Type
	IsInteger() bool
	Params() Params
	Start(pixel complex128) (z, c complex128)
	Step(z, c complex128) complex128
}

// BigKernel is implemented by kernels that can iterate in BigFloat.
// StartBig and StepBig write into caller allocated values and release any
// scratch they take from a before returning.
type BigKernel interface {
	Kernel
	StartBig(a *bigfloat.Arena, z, c, pixel BigComplex, params []bigfloat.Handle) error
	StepBig(a *bigfloat.Arena, z, c BigComplex) error
}

// Perturber is implemented by kernels with a perturbation formula.
// ReferenceStart and ReferenceStep iterate the reference orbit; DeltaStep
// returns the next delta from the reference iterate ref, the current delta
// dn and the pixel's initial offset d0.
type Perturber interface {
	BigKernel
	ReferenceStart(center complex128) (z, c complex128)
	ReferenceStep(z, c complex128) complex128
	DeltaStep(ref, dn, d0 complex128) complex128
}

// SupportsBigFloat reports whether k can iterate in BigFloat.
func SupportsBigFloat(k Kernel) bool {
	_, ok := k.(BigKernel)
	return ok
}

// SupportsPerturbation reports whether k provides reference and delta formulas.
func SupportsPerturbation(k Kernel) bool {
	_, ok := k.(Perturber)
	return ok
}

// Info describes a registered type.
type Info struct {
	Type     Type
	Name     string
	Defaults Params
	// Default viewport: Xmin, Xmax, Ymin, Ymax.
	Corners [4]float64
	Bailout float64
	New     func(p Params) (Kernel, error)
}

var registry = map[Type]Info{}

// Register adds a fractal type. It is called from init functions and panics
// on duplicate registration.
func Register(info Info) {
	if _, ok := registry[info.Type]; ok {
		panic("fractal: duplicate registration of " + info.Name)
	}
	registry[info.Type] = info
}

// Lookup returns the registration of t.
func Lookup(t Type) (Info, error) {
	info, ok := registry[t]
	if !ok {
		return Info{}, errors.Wrapf(ErrUnknownType, "type %d", int(t))
	}
	return info, nil
}

// New returns the kernel for t with params p.
func New(t Type, p Params) (Kernel, error) {
	info, err := Lookup(t)
	if err != nil {
		return nil, err
	}
	return info.New(p)
}

// ParseType resolves a fractal type by name.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, info := range registry {
		if info.Name == name {
			return t, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownType, "%q", name)
}

// Names lists the registered type names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, info := range registry {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}

func (t Type) String() string {
	if info, ok := registry[t]; ok {
		return info.Name
	}
	return "unknown"
}

// bigMul sets dst to x*y using two scratch slots. dst may alias x or y.
func bigMul(a *bigfloat.Arena, dst, x, y BigComplex) error {
	defer a.Restore(a.Save())
	t, err := a.AllocN(2)
	if err != nil {
		return err
	}
	// (xr + i xi)(yr + i yi)
	bigfloat.Mul(t[0], x.Re, y.Re)
	bigfloat.Mul(t[1], x.Im, y.Im)
	bigfloat.Sub(t[0], t[0], t[1])
	bigfloat.Mul(t[1], x.Re, y.Im)
	bigfloat.Mul(dst.Im, x.Im, y.Re)
	bigfloat.Add(dst.Im, dst.Im, t[1])
	bigfloat.Set(dst.Re, t[0])
	return nil
}
