package perturb

import (
	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/pkg/errors"
)

// Reference is a reference orbit rounded to double precision together with
// the squared glitch threshold of every iterate. It is immutable once built.
type Reference struct {
	// Offset of the reference point from the frame center.
	Offset complex128
	Orbit  []complex128
	// Tolerance[i] is |Orbit[i] * tolerance|².
	Tolerance []float64
	// Escaped is set when the reference itself escaped, so Orbit stops
	// short of the iteration limit.
	Escaped bool
}

// Len returns the number of usable iterates.
func (r *Reference) Len() int { return len(r.Orbit) }

// ComputeReferenceOrbit iterates the reference formula from the frame
// center moved by offset. Iterates 0 through MaxIter are kept unless the
// reference escapes first.
func (e *Engine) ComputeReferenceOrbit(offset complex128) (*Reference, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.radius == 0 {
		return nil, errors.New("perturbation: frame not initialized")
	}
	ref := &Reference{
		Offset:    offset,
		Orbit:     make([]complex128, 0, e.cfg.MaxIter+1),
		Tolerance: make([]float64, 0, e.cfg.MaxIter+1),
	}
	var err error
	if e.big {
		err = e.referenceBig(ref)
	} else {
		e.reference(ref)
	}
	if err != nil {
		return nil, err
	}
	e.stats.References++
	e.log.WithField("escaped", ref.Escaped).WithField("length", ref.Len()).Debug("reference orbit")
	return ref, nil
}

// push records z and reports whether the reference has escaped.
func (e *Engine) push(ref *Reference, z complex128) bool {
	t := z * complex(e.cfg.Tolerance, 0)
	ref.Orbit = append(ref.Orbit, z)
	ref.Tolerance = append(ref.Tolerance, real(t)*real(t)+imag(t)*imag(t))
	if e.cfg.BailoutTest.Escaped(z, e.cfg.Bailout) {
		ref.Escaped = true
		return true
	}
	return false
}

func (e *Engine) reference(ref *Reference) {
	z, c := e.kernel.ReferenceStart(e.center + ref.Offset)
	for i := 0; i <= e.cfg.MaxIter; i++ {
		if e.push(ref, z) {
			return
		}
		z = e.kernel.ReferenceStep(z, c)
	}
}

func (e *Engine) referenceBig(ref *Reference) error {
	a := e.arena
	defer a.Restore(a.Save())
	hs, err := a.AllocN(3)
	if err != nil {
		return errors.Wrap(err, "reference orbit")
	}
	point := fractal.BigComplex{Re: hs[0], Im: hs[1]}
	if _, err := bigfloat.SetFloat64(hs[2], real(ref.Offset)); err != nil {
		return err
	}
	bigfloat.Add(point.Re, e.centerBig.X, hs[2])
	if _, err := bigfloat.SetFloat64(hs[2], imag(ref.Offset)); err != nil {
		return err
	}
	bigfloat.Add(point.Im, e.centerBig.Y, hs[2])

	z, err := fractal.AllocComplex(a)
	if err != nil {
		return errors.Wrap(err, "reference orbit")
	}
	c, err := fractal.AllocComplex(a)
	if err != nil {
		return errors.Wrap(err, "reference orbit")
	}
	if err := e.kernel.StartBig(a, z, c, point, e.params); err != nil {
		return err
	}
	for i := 0; i <= e.cfg.MaxIter; i++ {
		if e.push(ref, z.Complex128()) {
			return nil
		}
		if err := e.kernel.StepBig(a, z, c); err != nil {
			return err
		}
	}
	return nil
}
