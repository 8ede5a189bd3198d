// Package viewport keeps the three defining corners of the visible region
// of the complex plane within range and free of rounding artifacts.
//
// The top-left corner of the screen maps to (Min.X, Max.Y), the bottom-right
// to (Max.X, Min.Y) and the bottom-left to Third. When Third equals Min the
// viewport is an axis aligned rectangle, otherwise it is rotated or skewed.
package viewport

import (
	"github.com/marben/deepzoom/internal/bigfloat"
	"seehuhn.de/go/geom/vec"
)

// Corners is a viewport in double precision.
type Corners struct {
	Min, Max, Third vec.Vec2
}

// Rect returns an axis aligned viewport.
func Rect(xmin, xmax, ymin, ymax float64) Corners {
	return Corners{
		Min:   vec.Vec2{X: xmin, Y: ymin},
		Max:   vec.Vec2{X: xmax, Y: ymax},
		Third: vec.Vec2{X: xmin, Y: ymin},
	}
}

// Center is the midpoint of Min and Max.
func (c Corners) Center() vec.Vec2 {
	return vec.Vec2{X: (c.Min.X + c.Max.X) / 2, Y: (c.Min.Y + c.Max.Y) / 2}
}

// Aligned reports whether the viewport is neither rotated nor skewed.
func (c Corners) Aligned() bool {
	return c.Third == c.Min
}

// BigPoint is a point held in arena slots.
type BigPoint struct {
	X, Y bigfloat.Handle
}

// BigCorners is a viewport in BigFloat.
type BigCorners struct {
	Min, Max, Third BigPoint
}

// AllocCorners allocates six zero slots for a BigFloat viewport.
func AllocCorners(a *bigfloat.Arena) (BigCorners, error) {
	hs, err := a.AllocN(6)
	if err != nil {
		return BigCorners{}, err
	}
	return BigCorners{
		Min:   BigPoint{hs[0], hs[1]},
		Max:   BigPoint{hs[2], hs[3]},
		Third: BigPoint{hs[4], hs[5]},
	}, nil
}

func (b BigCorners) handles() []bigfloat.Handle {
	return []bigfloat.Handle{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y, b.Third.X, b.Third.Y}
}

// Valid reports whether every slot of b is live.
func (b BigCorners) Valid() bool {
	for _, h := range b.handles() {
		if !h.Valid() {
			return false
		}
	}
	return true
}

// SetFloat64 loads c into b.
func (b BigCorners) SetFloat64(c Corners) error {
	vals := []float64{c.Min.X, c.Min.Y, c.Max.X, c.Max.Y, c.Third.X, c.Third.Y}
	for i, h := range b.handles() {
		if _, err := bigfloat.SetFloat64(h, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Float64 returns the double precision copy of b.
func (b BigCorners) Float64() Corners {
	f := bigfloat.Float64
	return Corners{
		Min:   vec.Vec2{X: f(b.Min.X), Y: f(b.Min.Y)},
		Max:   vec.Vec2{X: f(b.Max.X), Y: f(b.Max.Y)},
		Third: vec.Vec2{X: f(b.Third.X), Y: f(b.Third.Y)},
	}
}

// Set copies src into b.
func (b BigCorners) Set(src BigCorners) {
	dst, s := b.handles(), src.handles()
	for i := range dst {
		bigfloat.Set(dst[i], s[i])
	}
}

// Center sets p to the midpoint of Min and Max.
func (b BigCorners) Center(p BigPoint) {
	bigfloat.Add(p.X, b.Min.X, b.Max.X)
	bigfloat.Half(p.X, p.X)
	bigfloat.Add(p.Y, b.Min.Y, b.Max.Y)
	bigfloat.Half(p.Y, p.Y)
}

// Aligned reports whether the viewport is neither rotated nor skewed.
func (b BigCorners) Aligned() bool {
	return bigfloat.Cmp(b.Third.X, b.Min.X) == 0 && bigfloat.Cmp(b.Third.Y, b.Min.Y) == 0
}
