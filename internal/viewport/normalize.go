package viewport

import (
	"math"
)

const (
	// FloatLimit bounds corner coordinates for floating point math.
	FloatLimit = 32767.99

	// DefaultAspectDrift is how far XMag may stray from ±1 before it is
	// considered intentional rather than rounding.
	DefaultAspectDrift = 0.02

	nudgeFactor = 5e-16
	snapRatio   = 10000
)

// Limit returns the coordinate bound for float math, or for fixed point math
// with the given bit shift.
func Limit(integer bool, bitShift int) float64 {
	if !integer {
		return FloatLimit
	}
	switch {
	case bitShift >= 29:
		return 3.99
	case bitShift >= 24:
		return 31.99
	}
	return 1023.99
}

// Normalizer keeps viewports non-degenerate and within Limit.
type Normalizer struct {
	Limit float64
	// Aspect is the screen height to width ratio used for aspect snapping.
	Aspect float64
	// AspectDrift enables snapping XMag to ±1; zero disables it.
	AspectDrift float64
	// Integer disables aspect snapping, as fixed point viewports are not
	// reconstructed from center-mag form.
	Integer bool
}

func (n Normalizer) limit() float64 {
	if n.Limit <= 0 {
		return FloatLimit
	}
	return n.Limit
}

// nudge moves v up by |v|*5e-16, or by 5e-16 when that is lost.
func nudge(v float64) float64 {
	if w := v + math.Abs(v)*nudgeFactor; w != v {
		return w
	}
	return v + nudgeFactor
}

// Normalize heals zero width or height, scales the viewport about its center
// by expand, shrinks it to fit 2*Limit, translates it within ±Limit and then
// snaps near-aligned corners. moved reports whether a translation was needed.
func (n Normalizer) Normalize(c Corners, expand float64) (out Corners, moved bool) {
	limit := n.limit()
	center := c.Center()
	if c.Min.X == center.X {
		c.Max.X = nudge(c.Max.X)
		c.Min.X -= c.Max.X - center.X
	}
	if c.Min.Y == center.Y {
		c.Max.Y = nudge(c.Max.Y)
		c.Min.Y -= c.Max.Y - center.Y
	}
	if c.Third.X == center.X {
		c.Third.X = nudge(c.Third.X)
	}
	if c.Third.Y == center.Y {
		c.Third.Y = nudge(c.Third.Y)
	}

	// top left, bottom right, bottom left, top right
	cx := [4]float64{c.Min.X, c.Max.X, c.Third.X, c.Min.X + (c.Max.X - c.Third.X)}
	cy := [4]float64{c.Max.Y, c.Min.Y, c.Third.Y, c.Min.Y + (c.Max.Y - c.Third.Y)}

	if expand != 1 {
		for i := range cx {
			cx[i] = center.X + (cx[i]-center.X)*expand
			cy[i] = center.Y + (cy[i]-center.Y)*expand
		}
	}

	lowx, highx, lowy, highy := cx[0], cx[0], cy[0], cy[0]
	for i := 1; i < 4; i++ {
		lowx, highx = math.Min(lowx, cx[i]), math.Max(highx, cx[i])
		lowy, highy = math.Min(lowy, cy[i]), math.Max(highy, cy[i])
	}
	span := math.Max(highx-lowx, highy-lowy)
	if f := limit * 2 / span; f < 1 {
		for i := range cx {
			cx[i] = center.X + (cx[i]-center.X)*f
			cy[i] = center.Y + (cy[i]-center.Y)*f
		}
	}

	var adjx, adjy float64
	for i := range cx {
		if cx[i] > limit && cx[i]-limit > adjx {
			adjx = cx[i] - limit
		}
		if cx[i] < -limit && cx[i]+limit < adjx {
			adjx = cx[i] + limit
		}
		if cy[i] > limit && cy[i]-limit > adjy {
			adjy = cy[i] - limit
		}
		if cy[i] < -limit && cy[i]+limit < adjy {
			adjy = cy[i] + limit
		}
	}

	c.Min.X, c.Max.X, c.Third.X = cx[0]-adjx, cx[1]-adjx, cx[2]-adjx
	c.Max.Y, c.Min.Y, c.Third.Y = cy[0]-adjy, cy[1]-adjy, cy[2]-adjy
	return n.Snap(c), adjx != 0 || adjy != 0
}

// Snap removes rounding noise: an XMag within AspectDrift of ±1 becomes
// exactly ±1, then SnapAxisAlignment is applied.
func (n Normalizer) Snap(c Corners) Corners {
	if !n.Integer && n.AspectDrift > 0 && n.Aspect > 0 {
		cm := ToCenterMag(c, n.Aspect)
		if ax := math.Abs(cm.XMag); ax != 1 && math.Abs(ax-1) <= n.AspectDrift {
			cm.XMag = math.Copysign(1, cm.XMag)
			c = FromCenterMag(cm, n.Aspect)
		}
	}
	return SnapAxisAlignment(c)
}

// SnapAxisAlignment moves the third corner onto Min or Max along an axis
// when it is within 1:10000 of coinciding with it there, provided the other
// axis pair differs.
func SnapAxisAlignment(c Corners) Corners {
	t, t2 := math.Abs(c.Third.X-c.Min.X), math.Abs(c.Max.X-c.Third.X)
	if t < t2 && t*snapRatio < t2 && c.Third.Y != c.Max.Y {
		c.Third.X = c.Min.X
	}
	if t2*snapRatio < t && c.Third.Y != c.Min.Y {
		c.Third.X = c.Max.X
	}

	t, t2 = math.Abs(c.Third.Y-c.Min.Y), math.Abs(c.Max.Y-c.Third.Y)
	if t < t2 && t*snapRatio < t2 && c.Third.X != c.Max.X {
		c.Third.Y = c.Min.Y
	}
	if t2*snapRatio < t && c.Third.X != c.Min.X {
		c.Third.Y = c.Max.Y
	}
	return c
}
