package perturb

import "github.com/marben/deepzoom/internal/fractal"

// PixelState is the delta orbit of one pixel against a reference.
type PixelState struct {
	X, Y int
	// D0 is the pixel's offset from the reference point, Dn the current delta.
	D0, Dn   complex128
	Iter     int
	Z        complex128
	Escaped  bool
	Glitched bool
}

// Offset returns the plane offset of pixel (x, y) from the frame center.
// Pixel rows grow downwards, the imaginary axis upwards.
func (e *Engine) Offset(x, y int) complex128 {
	w := float64(min(e.xdots, e.ydots))
	return complex(
		e.radius*float64(2*x-e.xdots)/w,
		-e.radius*float64(2*y-e.ydots)/w,
	)
}

// ComputePixel starts the delta orbit of pixel (x, y) against ref.
func (e *Engine) ComputePixel(ref *Reference, x, y int) PixelState {
	d0 := e.Offset(x, y) - ref.Offset
	p := PixelState{X: x, Y: y, D0: d0, Dn: d0}
	if ref.Len() > 0 {
		p.Z = ref.Orbit[0] + d0
	}
	return p
}

// IteratePixel advances p by one iteration and reports whether the pixel is
// finished: escaped, glitched or at the iteration limit.
func (e *Engine) IteratePixel(ref *Reference, p *PixelState) bool {
	i := p.Iter + 1
	if i >= ref.Len() {
		// outlived the reference orbit
		p.Glitched = true
		return true
	}
	p.Dn = e.kernel.DeltaStep(ref.Orbit[i-1], p.Dn, p.D0)
	z := ref.Orbit[i] + p.Dn
	p.Iter, p.Z = i, z
	if real(z)*real(z)+imag(z)*imag(z) < ref.Tolerance[i] {
		p.Glitched = true
		return true
	}
	if e.cfg.BailoutTest.Escaped(z, e.cfg.Bailout) {
		p.Escaped = true
		return true
	}
	return i >= e.cfg.MaxIter
}

// CalculatePoint iterates pixel (x, y) against ref to completion.
func (e *Engine) CalculatePoint(ref *Reference, x, y int) PixelState {
	p := e.ComputePixel(ref, x, y)
	if e.cfg.MaxIter == 0 {
		return p
	}
	for !e.IteratePixel(ref, &p) {
	}
	return p
}

func (p PixelState) result() fractal.Result {
	return fractal.Result{Iter: p.Iter, Escaped: p.Escaped, Glitched: p.Glitched, Z: p.Z}
}
