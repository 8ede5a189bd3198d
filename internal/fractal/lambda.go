package fractal

func init() {
	Register(Info{
		Type:     Lambda,
		Name:     "lambda",
		Defaults: Params{0.85, 0.6},
		Corners:  [4]float64{-1.5, 2.5, -1.5, 1.5},
		Bailout:  DefaultBailout,
		New:      func(p Params) (Kernel, error) { return lambda{params: p}, nil },
	})
}

// lambda iterates λz(1-z) with λ = params[0] + i params[1]. It has neither a
// BigFloat nor a perturbation formula.
type lambda struct {
	params Params
}

func (lambda) Type() Type       { return Lambda }
func (lambda) IsInteger() bool  { return false }
func (k lambda) Params() Params { return k.params }

func (k lambda) Start(pixel complex128) (z, c complex128) {
	return pixel, complex(k.params[0], k.params[1])
}

func (lambda) Step(z, c complex128) complex128 { return c * z * (1 - z) }
