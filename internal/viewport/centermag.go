package viewport

import (
	"math"

	"github.com/marben/deepzoom/internal/bigfloat"
	"seehuhn.de/go/geom/vec"
)

// DefaultAspect is the height to width ratio of a 4:3 display.
const DefaultAspect = 0.75

// CenterMag describes a viewport by its center, magnification (2 over the
// height), the width stretch XMag and rotation and skew in degrees.
type CenterMag struct {
	Center   vec.Vec2
	Mag      float64
	XMag     float64
	Rotation float64
	Skew     float64
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
func radians(deg float64) float64 { return deg * math.Pi / 180 }

// ToCenterMag converts corners to center-mag form for a screen with the given
// height to width ratio.
func ToCenterMag(c Corners, aspect float64) CenterMag {
	cm := CenterMag{Center: c.Center()}
	if c.Aligned() {
		width := c.Max.X - c.Min.X
		height := c.Max.Y - c.Min.Y
		cm.Mag = 2 / height
		cm.XMag = height / (aspect * width)
	} else {
		// Triangle with side a along the bottom edge, b along the left edge
		// and c the diagonal Min..Max.
		dx, dy := c.Max.X-c.Min.X, c.Max.Y-c.Min.Y
		c2 := dx*dx + dy*dy

		ax, ay := c.Max.X-c.Third.X, c.Min.Y-c.Third.Y
		a2 := ax*ax + ay*ay
		a := math.Sqrt(a2)
		cm.Rotation = -degrees(math.Atan2(ay, ax))

		bx, by := c.Min.X-c.Third.X, c.Max.Y-c.Third.Y
		b2 := bx*bx + by*by
		b := math.Sqrt(b2)

		angle := math.Acos(clampUnit((a2 + b2 - c2) / (2 * a * b)))
		cm.Skew = 90 - degrees(angle)

		height := b * math.Sin(angle)
		cm.Mag = 2 / height
		cm.XMag = height / (aspect * a)

		// left handed coordinate system
		if ax*by-bx*ay < 0 {
			cm.Skew = -cm.Skew
			cm.XMag = -cm.XMag
			cm.Mag = -cm.Mag
		}
	}
	if cm.Mag < 0 {
		cm.Mag = -cm.Mag
		cm.Rotation += 180
	}
	return cm
}

// FromCenterMag converts center-mag form back to corners.
func FromCenterMag(cm CenterMag, aspect float64) Corners {
	xmag := cm.XMag
	if xmag == 0 {
		xmag = 1
	}
	h := 1 / cm.Mag
	w := h / (aspect * xmag)
	xc, yc := cm.Center.X, cm.Center.Y

	if cm.Rotation == 0 && cm.Skew == 0 {
		return Rect(xc-w, xc+w, yc-h, yc+h)
	}

	tanSkew := math.Tan(radians(cm.Skew))
	xmin, xmax, x3rd := -w+h*tanSkew, w-h*tanSkew, -w-h*tanSkew
	ymax, ymin, y3rd := h, -h, -h

	sin, cos := math.Sincos(radians(cm.Rotation))
	rot := func(x, y float64) vec.Vec2 {
		return vec.Vec2{X: x*cos + y*sin + xc, Y: -x*sin + y*cos + yc}
	}
	topLeft := rot(xmin, ymax)
	bottomRight := rot(xmax, ymin)
	return Corners{
		Min:   vec.Vec2{X: topLeft.X, Y: bottomRight.Y},
		Max:   vec.Vec2{X: bottomRight.X, Y: topLeft.Y},
		Third: rot(x3rd, y3rd),
	}
}

// BigCenterMag is CenterMag with the center and magnification in BigFloat.
type BigCenterMag struct {
	Center   BigPoint
	Mag      bigfloat.Handle
	XMag     float64
	Rotation float64
	Skew     float64
}

// AllocCenterMag allocates the BigFloat parts of a BigCenterMag.
func AllocCenterMag(a *bigfloat.Arena) (BigCenterMag, error) {
	hs, err := a.AllocN(3)
	if err != nil {
		return BigCenterMag{}, err
	}
	return BigCenterMag{Center: BigPoint{hs[0], hs[1]}, Mag: hs[2], XMag: 1}, nil
}

// ToCenterMagBig is ToCenterMag in BigFloat. Lengths are taken in BigFloat so
// that they do not underflow at depth; angles are computed in double.
func ToCenterMagBig(a *bigfloat.Arena, c BigCorners, aspect float64, cm *BigCenterMag) error {
	defer a.Restore(a.Save())
	t, err := a.AllocN(10)
	if err != nil {
		return err
	}
	c.Center(cm.Center)
	cm.Rotation, cm.Skew = 0, 0
	two := bigfloat.SetInt(t[9], 2)

	if c.Aligned() {
		width := bigfloat.Sub(t[0], c.Max.X, c.Min.X)
		height := bigfloat.Sub(t[1], c.Max.Y, c.Min.Y)
		if _, err := bigfloat.Quo(cm.Mag, two, height); err != nil {
			return err
		}
		ratio, err := bigfloat.Quo(t[2], height, width)
		if err != nil {
			return err
		}
		cm.XMag = bigfloat.Float64(ratio) / aspect
	} else {
		dx := bigfloat.Sub(t[0], c.Max.X, c.Min.X)
		dy := bigfloat.Sub(t[1], c.Max.Y, c.Min.Y)
		c2 := bigfloat.Add(t[2], bigfloat.Sqr(t[0], dx), bigfloat.Sqr(t[1], dy))

		ax := bigfloat.Sub(t[0], c.Max.X, c.Third.X)
		ay := bigfloat.Sub(t[1], c.Min.Y, c.Third.Y)
		bx := bigfloat.Sub(t[3], c.Min.X, c.Third.X)
		by := bigfloat.Sub(t[4], c.Max.Y, c.Third.Y)

		rot := bigfloat.Atan2(t[5], ay, ax)
		cm.Rotation = -degrees(bigfloat.Float64(rot))

		// cross product sign
		bigfloat.Mul(t[5], ax, by)
		bigfloat.Mul(t[6], bx, ay)
		leftHanded := bigfloat.Cmp(t[5], t[6]) < 0

		a2 := bigfloat.Add(t[5], bigfloat.Sqr(t[5], ax), bigfloat.Sqr(t[6], ay))
		b2 := bigfloat.Add(t[6], bigfloat.Sqr(t[6], bx), bigfloat.Sqr(t[7], by))
		la, err := bigfloat.Sqrt(t[0], a2)
		if err != nil {
			return err
		}
		lb, err := bigfloat.Sqrt(t[1], b2)
		if err != nil {
			return err
		}
		// cos angle = (a² + b² - c²) / 2ab
		num := bigfloat.Sub(t[7], bigfloat.Add(t[7], a2, b2), c2)
		den := bigfloat.Double(t[8], bigfloat.Mul(t[8], la, lb))
		cosAngle, err := bigfloat.Quo(t[7], num, den)
		if err != nil {
			return err
		}
		angle := math.Acos(clampUnit(bigfloat.Float64(cosAngle)))
		cm.Skew = 90 - degrees(angle)

		height := bigfloat.Mul(t[1], lb, mustFloat(t[2], math.Sin(angle)))
		if _, err := bigfloat.Quo(cm.Mag, two, height); err != nil {
			return err
		}
		ratio, err := bigfloat.Quo(t[3], height, la)
		if err != nil {
			return err
		}
		cm.XMag = bigfloat.Float64(ratio) / aspect

		if leftHanded {
			cm.Skew = -cm.Skew
			cm.XMag = -cm.XMag
			bigfloat.Neg(cm.Mag, cm.Mag)
		}
	}
	if bigfloat.Sign(cm.Mag) < 0 {
		bigfloat.Neg(cm.Mag, cm.Mag)
		cm.Rotation += 180
	}
	return nil
}

// FromCenterMagBig is FromCenterMag in BigFloat, writing into dst.
func FromCenterMagBig(a *bigfloat.Arena, cm BigCenterMag, aspect float64, dst BigCorners) error {
	defer a.Restore(a.Save())
	t, err := a.AllocN(9)
	if err != nil {
		return err
	}
	xmag := cm.XMag
	if xmag == 0 {
		xmag = 1
	}
	one := bigfloat.SetInt(t[0], 1)
	h, err := bigfloat.Quo(t[1], one, cm.Mag)
	if err != nil {
		return err
	}
	w, err := bigfloat.Quo(t[2], h, mustFloat(t[3], aspect*xmag))
	if err != nil {
		return err
	}
	xc, yc := cm.Center.X, cm.Center.Y

	if cm.Rotation == 0 && cm.Skew == 0 {
		bigfloat.Sub(dst.Min.X, xc, w)
		bigfloat.Set(dst.Third.X, dst.Min.X)
		bigfloat.Add(dst.Max.X, xc, w)
		bigfloat.Sub(dst.Min.Y, yc, h)
		bigfloat.Set(dst.Third.Y, dst.Min.Y)
		bigfloat.Add(dst.Max.Y, yc, h)
		return nil
	}

	// Unrotated offsets from the center: hs = h tan(skew).
	hs := bigfloat.Mul(t[3], h, mustFloat(t[4], math.Tan(radians(cm.Skew))))
	sin, cos := math.Sincos(radians(cm.Rotation))
	bs, bc := mustFloat(t[4], sin), mustFloat(t[5], cos)
	x, y, u := t[6], t[7], t[8]

	// rotate (px, py), translate, and store into (dx, dy)
	rot := func(px, py, dx, dy bigfloat.Handle) {
		bigfloat.Mul(x, px, bc)
		bigfloat.Add(x, x, bigfloat.Mul(u, py, bs))
		bigfloat.Mul(y, py, bc)
		bigfloat.Sub(y, y, bigfloat.Mul(u, px, bs))
		bigfloat.Add(dx, x, xc)
		bigfloat.Add(dy, y, yc)
	}
	negH := bigfloat.Neg(t[0], h)

	// top left: (-w + hs, h)
	bigfloat.Sub(dst.Min.X, hs, w)
	bigfloat.Set(dst.Max.Y, h)
	rot(dst.Min.X, dst.Max.Y, dst.Min.X, dst.Max.Y)
	// bottom right: (w - hs, -h)
	bigfloat.Sub(dst.Max.X, w, hs)
	bigfloat.Set(dst.Min.Y, negH)
	rot(dst.Max.X, dst.Min.Y, dst.Max.X, dst.Min.Y)
	// bottom left: (-w - hs, -h)
	bigfloat.Neg(dst.Third.X, w)
	bigfloat.Sub(dst.Third.X, dst.Third.X, hs)
	bigfloat.Set(dst.Third.Y, negH)
	rot(dst.Third.X, dst.Third.Y, dst.Third.X, dst.Third.Y)
	return nil
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// mustFloat loads a finite double into h.
func mustFloat(h bigfloat.Handle, f float64) bigfloat.Handle {
	if _, err := bigfloat.SetFloat64(h, f); err != nil {
		panic(err)
	}
	return h
}
