package render

import (
	"image/color"
	"math"
	"math/cmplx"

	"github.com/marben/deepzoom/internal/fractal"
)

// Palette maps pixel results to colours: points inside the set are black,
// escaped points get a hue from the smooth iteration count.
type Palette struct {
	maxIter int
	// Glitch, when not transparent, marks unrepaired perturbation glitches.
	Glitch color.RGBA
}

func NewPalette(maxIter int) Palette {
	return Palette{maxIter: maxIter}
}

func (p Palette) Color(r fractal.Result) color.RGBA {
	if r.Glitched && p.Glitch.A != 0 {
		return p.Glitch
	}
	if !r.Escaped || r.Iter >= p.maxIter {
		return color.RGBA{A: 255}
	}
	mu := Smooth(r)
	return hsv(math.Mod(mu*0.02, 1.0), 1, 1)
}

// Smooth is the continuous escape count: the iteration count corrected by
// how far past the bailout the last iterate landed.
func Smooth(r fractal.Result) float64 {
	mu := float64(r.Iter)
	if a := cmplx.Abs(r.Z); a > 1 {
		if ll := math.Log(math.Log(a)); !math.IsNaN(ll) && !math.IsInf(ll, 0) {
			mu += 1 - ll/math.Ln2
		}
	}
	return max(mu, 0)
}

// Simple HSV → RGB
func hsv(h, s, v float64) color.RGBA {
	h = math.Mod(h, 1)
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}
