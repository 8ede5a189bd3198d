// Package precision decides whether double precision can tell adjacent
// pixels of a viewport apart and, when it cannot, how many decimal digits
// the BigFloat arena needs. It also moves corners and parameters between
// the double and BigFloat representations.
package precision

import (
	"math"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/viewport"
)

// Resolution selects the pixel grid the digit count is computed for.
type Resolution int

const (
	// Current uses the frame's own width and height.
	Current Resolution = iota
	// Max uses a MaxPixels square grid, whatever the frame size.
	Max
)

const (
	// MaxPixels is the side of the grid used with Max.
	MaxPixels = 2048

	// DoubleDigits is the number of decimal digits a float64 carries
	// reliably.
	DoubleDigits = 15

	// MinDigits is the smallest digit count ever returned.
	MinDigits = 3

	magPadding = 4
)

func resolutions(xdots, ydots int, res Resolution) (rx, ry float64) {
	if res == Max {
		return MaxPixels - 1, MaxPixels - 1
	}
	return float64(xdots - 1), float64(ydots - 1)
}

// RequiredDigits returns the number of decimal digits needed to separate
// adjacent pixels of c. ok is false for a zero area viewport.
func RequiredDigits(c viewport.Corners, xdots, ydots int, res Resolution) (digits int, ok bool) {
	rx, ry := resolutions(xdots, ydots, res)
	xdel := (c.Max.X - c.Third.X) / rx
	ydel2 := (c.Third.Y - c.Min.Y) / rx
	ydel := (c.Max.Y - c.Third.Y) / ry
	xdel2 := (c.Third.X - c.Min.X) / ry

	del := math.Min(math.Abs(xdel)+math.Abs(xdel2), math.Abs(ydel)+math.Abs(ydel2))
	if del == 0 || math.IsNaN(del) {
		return 0, false
	}
	digits = 1
	for del < 1 {
		digits++
		del *= 10
	}
	return max(digits, MinDigits), true
}

// MagDigits returns the digits needed for a center-mag magnification.
func MagDigits(mag float64) int {
	if mag <= 0 || math.IsInf(mag, 0) || math.IsNaN(mag) {
		return MinDigits
	}
	// Log10 of an exact power of ten may land just below the integer.
	e := int(math.Floor(math.Log10(mag)))
	if math.Pow10(e+1) <= mag {
		e++
	} else if math.Pow10(e) > mag {
		e--
	}
	return max(e+magPadding, MinDigits)
}

// RequiredDigitsBig is RequiredDigits for a BigFloat viewport. The result
// is raised to what the magnification alone demands, so a viewport zoomed
// beyond double range never reports fewer digits than its depth.
func RequiredDigitsBig(a *bigfloat.Arena, c viewport.BigCorners, xdots, ydots int, res Resolution) (digits int, ok bool, err error) {
	defer a.Restore(a.Save())
	t, err := a.AllocN(5)
	if err != nil {
		return 0, false, err
	}
	rx, ry := resolutions(xdots, ydots, res)
	xdel, xdel2, ydel, ydel2, one := t[0], t[1], t[2], t[3], t[4]

	bigfloat.QuoInt(xdel, bigfloat.Sub(xdel, c.Max.X, c.Third.X), int64(rx))
	bigfloat.QuoInt(ydel2, bigfloat.Sub(ydel2, c.Third.Y, c.Min.Y), int64(rx))
	bigfloat.QuoInt(ydel, bigfloat.Sub(ydel, c.Max.Y, c.Third.Y), int64(ry))
	bigfloat.QuoInt(xdel2, bigfloat.Sub(xdel2, c.Third.X, c.Min.X), int64(ry))

	del := bigfloat.Abs(xdel, bigfloat.Add(xdel, xdel, xdel2))
	del2 := bigfloat.Abs(ydel, bigfloat.Add(ydel, ydel, ydel2))
	if bigfloat.Cmp(del2, del) < 0 {
		bigfloat.Set(del, del2)
	}
	if bigfloat.IsZero(del) {
		return 0, false, nil
	}
	bigfloat.SetInt(one, 1)
	digits = 1
	for bigfloat.Cmp(del, one) < 0 {
		digits++
		bigfloat.MulInt(del, del, 10)
	}
	digits = max(digits, MinDigits)

	magDigits, err := MagDigitsBig(a, c)
	if err != nil {
		return 0, false, err
	}
	return max(digits, magDigits), true, nil
}

// MagDigitsBig returns the digits needed for the magnification of c.
func MagDigitsBig(a *bigfloat.Arena, c viewport.BigCorners) (int, error) {
	defer a.Restore(a.Save())
	cm, err := viewport.AllocCenterMag(a)
	if err != nil {
		return 0, err
	}
	if err := viewport.ToCenterMagBig(a, c, viewport.DefaultAspect, &cm); err != nil {
		return 0, err
	}
	if bigfloat.Sign(cm.Mag) <= 0 {
		return MinDigits, nil
	}
	return max(bigfloat.Exponent10(cm.Mag)+magPadding, MinDigits), nil
}
