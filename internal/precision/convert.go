package precision

import (
	"math/big"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/marben/deepzoom/internal/viewport"
	"github.com/pkg/errors"
)

// Promote configures a for digits decimal digits and loads the double
// corners and every parameter slot into it. Handles allocated from a before
// the call are stale afterwards.
func Promote(a *bigfloat.Arena, c viewport.Corners, params fractal.Params, digits int) (viewport.BigCorners, []bigfloat.Handle, error) {
	if err := a.InitPrecision(digits); err != nil {
		return viewport.BigCorners{}, nil, err
	}
	bc, err := viewport.AllocCorners(a)
	if err != nil {
		return viewport.BigCorners{}, nil, errors.Wrap(err, "promote corners")
	}
	if err := bc.SetFloat64(c); err != nil {
		return viewport.BigCorners{}, nil, errors.Wrap(err, "promote corners")
	}
	bp, err := a.AllocN(fractal.MaxParams)
	if err != nil {
		return viewport.BigCorners{}, nil, errors.Wrap(err, "promote params")
	}
	for i, p := range params {
		if _, err := bigfloat.SetFloat64(bp[i], p); err != nil {
			return viewport.BigCorners{}, nil, errors.Wrapf(err, "promote param %d", i)
		}
	}
	return bc, bp, nil
}

// Rescale changes the precision of a while keeping the values of c and
// params, which are reallocated. Values gain no accuracy when the precision
// grows; they are rounded when it shrinks.
func Rescale(a *bigfloat.Arena, c viewport.BigCorners, params []bigfloat.Handle, digits int) (viewport.BigCorners, []bigfloat.Handle, error) {
	src := []bigfloat.Handle{c.Min.X, c.Min.Y, c.Max.X, c.Max.Y, c.Third.X, c.Third.Y}
	src = append(src, params...)
	snapshot := make([]*big.Float, len(src))
	for i, h := range src {
		snapshot[i] = bigfloat.ToBig(h)
	}

	if err := a.InitPrecision(digits); err != nil {
		return viewport.BigCorners{}, nil, err
	}
	hs, err := a.AllocN(len(snapshot))
	if err != nil {
		return viewport.BigCorners{}, nil, errors.Wrap(err, "rescale")
	}
	for i, v := range snapshot {
		bigfloat.SetBig(hs[i], v)
	}
	bc := viewport.BigCorners{
		Min:   viewport.BigPoint{X: hs[0], Y: hs[1]},
		Max:   viewport.BigPoint{X: hs[2], Y: hs[3]},
		Third: viewport.BigPoint{X: hs[4], Y: hs[5]},
	}
	return bc, hs[6:], nil
}

// Demote returns the double precision copy of a BigFloat viewport and its
// parameters.
func Demote(c viewport.BigCorners, params []bigfloat.Handle) (viewport.Corners, fractal.Params) {
	var p fractal.Params
	for i := 0; i < len(params) && i < len(p); i++ {
		p[i] = bigfloat.Float64(params[i])
	}
	return c.Float64(), p
}
