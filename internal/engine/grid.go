package engine

import (
	"math"
	"strconv"

	"seehuhn.de/go/geom/vec"
)

// ratioBad reports whether actual strays from desired by more than tol.
// A tolerance of zero or less fails every check, one or more passes every
// check.
func (rc *RenderContext) ratioBad(tol, actual, desired float64) bool {
	if tol <= 0 {
		return true
	}
	if tol >= 1 {
		return false
	}
	if desired != 0 && !rc.Debug.PreventArbitrary {
		f := actual / desired
		if f > 1+tol || f < 1-tol {
			return true
		}
	}
	return false
}

// validate checks that accumulating the pixel steps reproduces the
// viewport. On success the corners are reset to the ones the grid reaches
// and the grid is filled.
func (rc *RenderContext) validate() bool {
	if rc.IntegerFractal {
		if !rc.validateFixed() {
			return false
		}
	} else {
		if rc.precisionLost() {
			return false
		}
		rc.snapCorners()
	}
	rc.fillGrid()
	return true
}

// precisionLost walks the grid edges the way the renderer does and compares
// the distance covered with the viewport's.
func (rc *RenderContext) precisionLost() bool {
	c, d := rc.Corners, rc.Deltas
	dx0, dy0 := c.Min.X, c.Max.Y
	var dx1, dy1 float64
	for i := 1; i < rc.XDots; i++ {
		dx0 += d.X
		dy1 -= d.Y2
	}
	for j := 1; j < rc.YDots; j++ {
		dy0 -= d.Y
		dx1 += d.X2
	}

	var tryX, wantX float64
	if math.Abs(c.Max.X-c.Third.X) > math.Abs(c.Third.X-c.Min.X) {
		tryX, wantX = dx0-c.Min.X, c.Max.X-c.Third.X
	} else {
		tryX, wantX = dx1, c.Third.X-c.Min.X
	}
	var tryY, wantY float64
	if math.Abs(c.Third.Y-c.Max.Y) > math.Abs(c.Min.Y-c.Third.Y) {
		tryY, wantY = dy0-c.Max.Y, c.Third.Y-c.Max.Y
	} else {
		tryY, wantY = dy1, c.Min.Y-c.Third.Y
	}
	tol := rc.MathTolerance[1]
	return rc.ratioBad(tol, tryX, wantX) || rc.ratioBad(tol, tryY, wantY)
}

type fixed struct {
	fudge float64
}

// long converts to fixed point, rounding half away from zero.
func (f fixed) long(v float64) int64 {
	v *= f.fudge
	if v > 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	return int64(v)
}

// float converts back, rounded to nine significant digits.
func (f fixed) float(l int64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(float64(l)/f.fudge, 'g', 9, 64), 64)
	return v
}

// validateFixed repeats the check in fixed point with BitShift fraction
// bits. A step that rounds to zero fails outright.
func (rc *RenderContext) validateFixed() bool {
	f := fixed{fudge: float64(int64(1) << rc.BitShift)}
	c, d := rc.Corners, rc.Deltas

	ldx, ldy := f.long(d.X), f.long(d.Y)
	ldx2, ldy2 := f.long(d.X2), f.long(d.Y2)
	if (ldx == 0 && d.X != 0) || (ldy == 0 && d.Y != 0) ||
		(ldx2 == 0 && d.X2 != 0) || (ldy2 == 0 && d.Y2 != 0) {
		return false
	}
	lxmin, lxmax, lx3rd := f.long(c.Min.X), f.long(c.Max.X), f.long(c.Third.X)
	lymin, lymax, ly3rd := f.long(c.Min.Y), f.long(c.Max.Y), f.long(c.Third.Y)

	xd, yd := int64(rc.XDots), int64(rc.YDots)
	// last column and row, then the middle ones for the skew terms
	lxEnd := lxmin + (xd-1)*ldx
	lyEnd := lymax - (yd-1)*ldy
	lxHalf := ((yd >> 1) - 1) * ldx2
	lyHalf := -((xd >> 1) - 1) * ldy2

	tol := rc.MathTolerance[0]
	if rc.ratioBad(tol, float64(lxEnd-lxmin), float64(lxmax-lx3rd)) ||
		rc.ratioBad(tol, float64(lyEnd-lymax), float64(ly3rd-lymax)) ||
		rc.ratioBad(tol, float64(lxHalf), float64(lx3rd-lxmin)/2) ||
		rc.ratioBad(tol, float64(lyHalf), float64(lymin-ly3rd)/2) {
		return false
	}

	lx1End := (yd - 1) * ldx2
	ly1End := -(xd - 1) * ldy2
	rc.Corners.Max = vec.Vec2{X: f.float(lxEnd + lx1End), Y: c.Max.Y}
	rc.Corners.Min = vec.Vec2{X: c.Min.X, Y: f.float(lyEnd + ly1End)}
	rc.Corners.Third = vec.Vec2{X: f.float(lxmin + lx1End), Y: f.float(lyEnd)}
	return true
}

// fillGrid fills the per column and per row coordinates.
func (rc *RenderContext) fillGrid() {
	c, d := rc.Corners, rc.Deltas
	g := Grid{
		X0: make([]float64, rc.XDots),
		Y1: make([]float64, rc.XDots),
		Y0: make([]float64, rc.YDots),
		X1: make([]float64, rc.YDots),
	}
	for i := range rc.XDots {
		g.X0[i] = c.Min.X + float64(i)*d.X
		g.Y1[i] = -float64(i) * d.Y2
	}
	for j := range rc.YDots {
		g.Y0[j] = c.Max.Y - float64(j)*d.Y
		g.X1[j] = float64(j) * d.X2
	}
	rc.Grid = g
}

// snapCorners moves Max, Min.Y and Third onto the corners the grid reaches.
func (rc *RenderContext) snapCorners() {
	c, d := rc.Corners, rc.Deltas
	xres, yres := float64(rc.XDots-1), float64(rc.YDots-1)
	rc.Corners.Max.X = c.Min.X + xres*d.X + yres*d.X2
	rc.Corners.Min.Y = c.Max.Y - yres*d.Y - xres*d.Y2
	rc.Corners.Third = vec.Vec2{X: c.Min.X + yres*d.X2, Y: c.Max.Y - yres*d.Y}
}
