package viewport

import (
	"math"

	"github.com/marben/deepzoom/internal/bigfloat"
)

// nudgeBig adds |v|*5e-16 to v, or sets it to 5e-16 when v is zero.
func nudgeBig(v, eps, tmp bigfloat.Handle) {
	bigfloat.Abs(tmp, bigfloat.Mul(tmp, v, eps))
	if bigfloat.IsZero(tmp) {
		bigfloat.Set(v, eps)
		return
	}
	bigfloat.Add(v, v, tmp)
}

// NormalizeBig is Normalize on a BigFloat viewport, updating c in place. It
// takes the same branches as Normalize for a viewport that is exact in
// double precision.
func (n Normalizer) NormalizeBig(a *bigfloat.Arena, c BigCorners, expand float64) (moved bool, err error) {
	m := a.Save()
	t, err := a.AllocN(18)
	if err != nil {
		return false, err
	}
	limit := n.limit()
	center := BigPoint{t[0], t[1]}
	eps := mustFloat(t[2], nudgeFactor)
	tmp := t[3]
	cx := t[4:8]
	cy := t[8:12]
	adjx, adjy := t[12], t[13]
	posLimit := mustFloat(t[14], limit)
	negLimit := mustFloat(t[15], -limit)
	lo, hi := t[16], t[17]

	c.Center(center)
	if bigfloat.Cmp(c.Min.X, center.X) == 0 {
		nudgeBig(c.Max.X, eps, tmp)
		bigfloat.Sub(tmp, c.Max.X, center.X)
		bigfloat.Sub(c.Min.X, c.Min.X, tmp)
	}
	if bigfloat.Cmp(c.Min.Y, center.Y) == 0 {
		nudgeBig(c.Max.Y, eps, tmp)
		bigfloat.Sub(tmp, c.Max.Y, center.Y)
		bigfloat.Sub(c.Min.Y, c.Min.Y, tmp)
	}
	if bigfloat.Cmp(c.Third.X, center.X) == 0 {
		nudgeBig(c.Third.X, eps, tmp)
	}
	if bigfloat.Cmp(c.Third.Y, center.Y) == 0 {
		nudgeBig(c.Third.Y, eps, tmp)
	}

	bigfloat.Set(cx[0], c.Min.X)
	bigfloat.Set(cx[1], c.Max.X)
	bigfloat.Set(cx[2], c.Third.X)
	bigfloat.Add(cx[3], c.Min.X, bigfloat.Sub(tmp, c.Max.X, c.Third.X))
	bigfloat.Set(cy[0], c.Max.Y)
	bigfloat.Set(cy[1], c.Min.Y)
	bigfloat.Set(cy[2], c.Third.Y)
	bigfloat.Add(cy[3], c.Min.Y, bigfloat.Sub(tmp, c.Max.Y, c.Third.Y))

	scale := func(f bigfloat.Handle) {
		for i := range cx {
			bigfloat.Sub(cx[i], cx[i], center.X)
			bigfloat.Mul(cx[i], cx[i], f)
			bigfloat.Add(cx[i], cx[i], center.X)
			bigfloat.Sub(cy[i], cy[i], center.Y)
			bigfloat.Mul(cy[i], cy[i], f)
			bigfloat.Add(cy[i], cy[i], center.Y)
		}
	}
	if expand != 1 {
		scale(mustFloat(tmp, expand))
	}

	extent := func(v []bigfloat.Handle) float64 {
		bigfloat.Set(lo, v[0])
		bigfloat.Set(hi, v[0])
		for _, h := range v[1:] {
			if bigfloat.Cmp(h, lo) < 0 {
				bigfloat.Set(lo, h)
			}
			if bigfloat.Cmp(h, hi) > 0 {
				bigfloat.Set(hi, h)
			}
		}
		return bigfloat.Float64(bigfloat.Sub(lo, hi, lo))
	}
	span := math.Max(extent(cx), extent(cy))
	if f := limit * 2 / span; f < 1 {
		scale(mustFloat(tmp, f))
	}

	bigfloat.SetInt(adjx, 0)
	bigfloat.SetInt(adjy, 0)
	adjust := func(v, adj bigfloat.Handle) {
		if bigfloat.Cmp(v, posLimit) > 0 {
			bigfloat.Sub(tmp, v, posLimit)
			if bigfloat.Cmp(tmp, adj) > 0 {
				bigfloat.Set(adj, tmp)
			}
		}
		if bigfloat.Cmp(v, negLimit) < 0 {
			bigfloat.Add(tmp, v, posLimit)
			if bigfloat.Cmp(tmp, adj) < 0 {
				bigfloat.Set(adj, tmp)
			}
		}
	}
	for i := range cx {
		adjust(cx[i], adjx)
		adjust(cy[i], adjy)
	}

	bigfloat.Sub(c.Min.X, cx[0], adjx)
	bigfloat.Sub(c.Max.X, cx[1], adjx)
	bigfloat.Sub(c.Third.X, cx[2], adjx)
	bigfloat.Sub(c.Max.Y, cy[0], adjy)
	bigfloat.Sub(c.Min.Y, cy[1], adjy)
	bigfloat.Sub(c.Third.Y, cy[2], adjy)
	moved = !bigfloat.IsZero(adjx) || !bigfloat.IsZero(adjy)

	a.Restore(m)
	return moved, n.SnapBig(a, c)
}

// SnapBig is Snap on a BigFloat viewport.
func (n Normalizer) SnapBig(a *bigfloat.Arena, c BigCorners) error {
	if !n.Integer && n.AspectDrift > 0 && n.Aspect > 0 {
		defer a.Restore(a.Save())
		cm, err := AllocCenterMag(a)
		if err != nil {
			return err
		}
		if err := ToCenterMagBig(a, c, n.Aspect, &cm); err != nil {
			return err
		}
		if ax := math.Abs(cm.XMag); ax != 1 && math.Abs(ax-1) <= n.AspectDrift {
			cm.XMag = math.Copysign(1, cm.XMag)
			if err := FromCenterMagBig(a, cm, n.Aspect, c); err != nil {
				return err
			}
		}
	}
	return SnapAxisAlignmentBig(a, c)
}

// SnapAxisAlignmentBig is SnapAxisAlignment on a BigFloat viewport.
func SnapAxisAlignmentBig(a *bigfloat.Arena, c BigCorners) error {
	defer a.Restore(a.Save())
	t, err := a.AllocN(3)
	if err != nil {
		return err
	}
	d, d2, scaled := t[0], t[1], t[2]
	// toMin: third is within 1:ratio of min. toMax: within 1:ratio of max.
	ratios := func(third, low, high bigfloat.Handle) (toMin, toMax bool) {
		bigfloat.Abs(d, bigfloat.Sub(d, third, low))
		bigfloat.Abs(d2, bigfloat.Sub(d2, high, third))
		toMin = bigfloat.Cmp(d, d2) < 0 && bigfloat.Cmp(bigfloat.MulInt(scaled, d, snapRatio), d2) < 0
		toMax = bigfloat.Cmp(bigfloat.MulInt(scaled, d2, snapRatio), d) < 0
		return toMin, toMax
	}

	toMin, toMax := ratios(c.Third.X, c.Min.X, c.Max.X)
	if toMin && bigfloat.Cmp(c.Third.Y, c.Max.Y) != 0 {
		bigfloat.Set(c.Third.X, c.Min.X)
	}
	if toMax && bigfloat.Cmp(c.Third.Y, c.Min.Y) != 0 {
		bigfloat.Set(c.Third.X, c.Max.X)
	}

	toMin, toMax = ratios(c.Third.Y, c.Min.Y, c.Max.Y)
	if toMin && bigfloat.Cmp(c.Third.X, c.Max.X) != 0 {
		bigfloat.Set(c.Third.Y, c.Min.Y)
	}
	if toMax && bigfloat.Cmp(c.Third.X, c.Min.X) != 0 {
		bigfloat.Set(c.Third.Y, c.Max.Y)
	}
	return nil
}
