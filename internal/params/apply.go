package params

import (
	"math"
	"strconv"
	"strings"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/engine"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/marben/deepzoom/internal/perturb"
	"github.com/marben/deepzoom/internal/precision"
	"github.com/marben/deepzoom/internal/viewport"
	"github.com/pkg/errors"
	"seehuhn.de/go/geom/vec"
)

// doubleDigits is the most decimal digits a coordinate may need and still
// be read as a double.
const doubleDigits = precision.DoubleDigits + 1

// Apply sets the fields of rc that e names and marks the frame changed.
// A new type resets the parameters and viewport to the type's defaults
// before the rest of e is applied. Viewports that need more digits than a
// double holds are loaded straight into BigFloat.
func (e Entry) Apply(rc *engine.RenderContext) error {
	if e.CenterMag != "" && e.Corners != "" {
		return errors.Wrap(ErrMalformed, "both center-mag and corners given")
	}
	if e.Type != "" {
		t, err := fractal.ParseType(e.Type)
		if err != nil {
			return err
		}
		if t != rc.Type {
			info, err := fractal.Lookup(t)
			if err != nil {
				return err
			}
			rc.Type, rc.Params = t, info.Defaults
			rc.Corners = viewport.Rect(info.Corners[0], info.Corners[1], info.Corners[2], info.Corners[3])
			rc.Bailout = info.Bailout
			toDouble(rc)
		}
		rc.Kernel = nil
	}

	var paramText []string
	if e.Params != "" {
		fields, err := split("params", e.Params)
		if err != nil {
			return err
		}
		if len(fields) > fractal.MaxParams {
			return errors.Wrapf(ErrMalformed, "params: %d values, at most %d", len(fields), fractal.MaxParams)
		}
		var p fractal.Params
		for i, f := range fields {
			if p[i], err = parseFloat("params", f); err != nil {
				return err
			}
		}
		rc.Params, rc.Kernel, paramText = p, nil, fields
	}

	switch {
	case e.CenterMag != "":
		if err := applyCenterMag(rc, e.CenterMag, paramText); err != nil {
			return err
		}
	case e.Corners != "":
		if err := applyCorners(rc, e.Corners, paramText); err != nil {
			return err
		}
	case paramText != nil && rc.Math == engine.BigFloat:
		if err := setBigParams(rc, rc.BigParams, paramText); err != nil {
			return err
		}
	}

	if e.MaxIter < 0 || e.Bailout < 0 || e.Tolerance < 0 {
		return errors.Wrap(ErrMalformed, "negative maxiter, bailout or tolerance")
	}
	if e.MaxIter > 0 {
		rc.MaxIter = e.MaxIter
	}
	if e.Bailout > 0 {
		rc.Bailout = e.Bailout
	}
	if e.BailoutTest != "" {
		b, err := fractal.ParseBailoutTest(e.BailoutTest)
		if err != nil {
			return errors.Wrap(ErrMalformed, err.Error())
		}
		rc.BailoutTest = b
	}
	if e.Perturbation != "" {
		m, err := engine.ParsePerturbationMode(e.Perturbation)
		if err != nil {
			return errors.Wrap(ErrMalformed, err.Error())
		}
		rc.Perturbation = m
	}
	if e.Tolerance > 0 {
		rc.Perturb.Tolerance = e.Tolerance
	}
	rc.Status = engine.ParamsChanged
	return nil
}

func toDouble(rc *engine.RenderContext) {
	rc.Math = engine.Double
	rc.Big = viewport.BigCorners{}
	rc.BigParams = nil
}

// bigArena configures rc's arena, creating it if needed, for digits and
// allocates the corners and parameter slots.
func bigArena(rc *engine.RenderContext, digits int, paramText []string) error {
	if rc.Arena == nil {
		rc.Arena = bigfloat.NewArena(0)
	}
	a := rc.Arena
	if err := a.InitPrecision(digits); err != nil {
		return err
	}
	bc, err := viewport.AllocCorners(a)
	if err != nil {
		return err
	}
	bp, err := a.AllocN(fractal.MaxParams)
	if err != nil {
		return err
	}
	if err := setBigParams(rc, bp, paramText); err != nil {
		return err
	}
	rc.Math, rc.Big, rc.BigParams = engine.BigFloat, bc, bp
	return nil
}

// setBigParams loads the parameters into bp, from their text where given
// so that no digits are lost to a double.
func setBigParams(rc *engine.RenderContext, bp []bigfloat.Handle, text []string) error {
	for i := range bp {
		var err error
		if i < len(text) {
			_, err = bigfloat.SetString(bp[i], number(text[i]))
		} else {
			_, err = bigfloat.SetFloat64(bp[i], rc.Params[i])
		}
		if err != nil {
			return errors.Wrapf(ErrMalformed, "param %d: %v", i, err)
		}
	}
	return nil
}

func maxLen(fields []string) int {
	n := 0
	for _, f := range fields {
		n = max(n, len(f))
	}
	return n
}

// applyCorners reads xmin/xmax/ymin/ymax[/x3rd/y3rd]. The longest value
// decides the precision; when BigFloat is needed the magnification may
// raise it, and the corners are read again.
func applyCorners(rc *engine.RenderContext, s string, paramText []string) error {
	fields, err := split("corners", s)
	if err != nil {
		return err
	}
	if len(fields) != 4 && len(fields) != 6 {
		return errors.Wrapf(ErrMalformed, "corners: %d values, want 4 or 6", len(fields))
	}

	dec := maxLen(fields) + 1
	if dec <= doubleDigits {
		var v [6]float64
		for i, f := range fields {
			if v[i], err = parseFloat("corners", f); err != nil {
				return err
			}
		}
		c := viewport.Rect(v[0], v[1], v[2], v[3])
		if len(fields) == 6 {
			c.Third = vec.Vec2{X: v[4], Y: v[5]}
		}
		rc.Corners = c
		toDouble(rc)
		return nil
	}

	load := func(dec int) error {
		if err := bigArena(rc, dec, paramText); err != nil {
			return err
		}
		b := rc.Big
		third := [2]string{fields[0], fields[2]}
		if len(fields) == 6 {
			third = [2]string{fields[4], fields[5]}
		}
		targets := []struct {
			h bigfloat.Handle
			s string
		}{
			{b.Min.X, fields[0]}, {b.Max.X, fields[1]},
			{b.Min.Y, fields[2]}, {b.Max.Y, fields[3]},
			{b.Third.X, third[0]}, {b.Third.Y, third[1]},
		}
		for _, t := range targets {
			if _, err := bigfloat.SetString(t.h, number(t.s)); err != nil {
				return errors.Wrapf(ErrMalformed, "corners: %v", err)
			}
		}
		return nil
	}
	if err := load(dec); err != nil {
		return err
	}
	magDigits, err := precision.MagDigitsBig(rc.Arena, rc.Big)
	if err != nil {
		return err
	}
	if magDigits > dec {
		if err := load(magDigits); err != nil {
			return err
		}
	}
	rc.Corners = rc.Big.Float64()
	return nil
}

// applyCenterMag reads x/y/mag[/xmag/rotation/skew]. The magnification
// decides the precision.
func applyCenterMag(rc *engine.RenderContext, s string, paramText []string) error {
	fields, err := split("center-mag", s)
	if err != nil {
		return err
	}
	if len(fields) < 3 || len(fields) > 6 {
		return errors.Wrapf(ErrMalformed, "center-mag: %d values, want 3 to 6", len(fields))
	}
	var v [6]float64
	for i, f := range fields {
		if v[i], err = parseFloat("center-mag", f); err != nil {
			return err
		}
	}
	mag := v[2]
	if mag <= 0 || math.IsInf(mag, 0) {
		return errors.Wrapf(ErrMalformed, "center-mag: magnification %s", fields[2])
	}
	cm := viewport.CenterMag{Mag: mag, XMag: 1, Rotation: v[4], Skew: v[5]}
	if len(fields) > 3 && v[3] != 0 {
		cm.XMag = v[3]
	}

	dec := precision.MagDigits(mag)
	if dec <= doubleDigits {
		cm.Center = vec.Vec2{X: v[0], Y: v[1]}
		rc.Corners = viewport.FromCenterMag(cm, rc.Aspect())
		toDouble(rc)
		return nil
	}

	if err := bigArena(rc, dec, paramText); err != nil {
		return err
	}
	a := rc.Arena
	err = a.Scope(func() error {
		bcm, err := viewport.AllocCenterMag(a)
		if err != nil {
			return err
		}
		if _, err := bigfloat.SetString(bcm.Center.X, number(fields[0])); err != nil {
			return errors.Wrapf(ErrMalformed, "center-mag: %v", err)
		}
		if _, err := bigfloat.SetString(bcm.Center.Y, number(fields[1])); err != nil {
			return errors.Wrapf(ErrMalformed, "center-mag: %v", err)
		}
		if _, err := bigfloat.SetFloat64(bcm.Mag, mag); err != nil {
			return err
		}
		bcm.XMag, bcm.Rotation, bcm.Skew = cm.XMag, cm.Rotation, cm.Skew
		return viewport.FromCenterMagBig(a, bcm, rc.Aspect(), rc.Big)
	})
	if err != nil {
		return err
	}
	rc.Corners = rc.Big.Float64()
	return nil
}

// Format describes rc in center-mag form, with the center printed to the
// precision of the frame.
func Format(rc *engine.RenderContext) (Entry, error) {
	e := Entry{
		Type:    rc.Type.String(),
		MaxIter: rc.MaxIter,
		Bailout: rc.Bailout,
	}
	if rc.BailoutTest != fractal.Mod {
		e.BailoutTest = rc.BailoutTest.String()
	}
	if rc.Perturbation != engine.PerturbAuto {
		e.Perturbation = rc.Perturbation.String()
	}
	if t := rc.Perturb.Tolerance; t != 0 && t != perturb.DefaultConfig().Tolerance {
		e.Tolerance = rc.Perturb.Tolerance
	}

	var ps []string
	for i, p := range rc.Params {
		if rc.Math == engine.BigFloat && i < len(rc.BigParams) {
			ps = append(ps, bigfloat.Text(rc.BigParams[i], rc.Arena.Decimals()))
		} else {
			ps = append(ps, strconv.FormatFloat(p, 'g', -1, 64))
		}
	}
	for len(ps) > 0 && ps[len(ps)-1] == "0" {
		ps = ps[:len(ps)-1]
	}
	e.Params = strings.Join(ps, "/")

	if rc.Math != engine.BigFloat {
		cm := viewport.ToCenterMag(rc.Corners, rc.Aspect())
		g := func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
		e.CenterMag = centerMag(g(cm.Center.X), g(cm.Center.Y), strconv.FormatFloat(cm.Mag, 'g', 10, 64), cm)
		return e, nil
	}
	a := rc.Arena
	err := a.Scope(func() error {
		bcm, err := viewport.AllocCenterMag(a)
		if err != nil {
			return err
		}
		if err := viewport.ToCenterMagBig(a, rc.Big, rc.Aspect(), &bcm); err != nil {
			return err
		}
		d := a.Decimals()
		cm := viewport.CenterMag{XMag: bcm.XMag, Rotation: bcm.Rotation, Skew: bcm.Skew}
		e.CenterMag = centerMag(bigfloat.Text(bcm.Center.X, d), bigfloat.Text(bcm.Center.Y, d), bigfloat.Text(bcm.Mag, 10), cm)
		return nil
	})
	if err != nil {
		return Entry{}, errors.Wrap(err, "format center-mag")
	}
	return e, nil
}

// centerMag joins the center-mag values, leaving out xmag, rotation and
// skew when they print as 1, 0 and 0.
func centerMag(x, y, mag string, cm viewport.CenterMag) string {
	s := x + "/" + y + "/" + mag
	g := func(f float64) string { return strconv.FormatFloat(f, 'g', 10, 64) }
	if extra := g(cm.XMag) + "/" + g(cm.Rotation) + "/" + g(cm.Skew); extra != "1/0/0" {
		s += "/" + extra
	}
	return s
}
