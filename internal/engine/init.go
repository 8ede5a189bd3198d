package engine

import (
	"math"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/marben/deepzoom/internal/perturb"
	"github.com/marben/deepzoom/internal/precision"
	"github.com/marben/deepzoom/internal/viewport"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"seehuhn.de/go/geom/matrix"
)

type initState int

const (
	stateStart initState = iota
	statePrecision
	statePerturb
	stateAdjust
	stateValidate
	stateExpand
	stateEscalate
	stateConverged
)

// Init prepares the frame. It settles the math mode, keeps the viewport in
// range and checks that the pixel grid resolves in the chosen arithmetic.
// When it does not, the viewport is doubled or the frame escalated to
// BigFloat, and the check repeated, at most MaxRetries times.
//
// Perturbation frames skip the grid; Render hands them to rc.Pert.
func (rc *RenderContext) Init() error {
	if rc.XDots < 2 || rc.YDots < 2 {
		return errors.Errorf("engine: frame %dx%d too small", rc.XDots, rc.YDots)
	}
	if rc.MaxIter <= 0 {
		return errors.Errorf("engine: invalid iteration limit %d", rc.MaxIter)
	}
	if rc.Bailout <= 0 {
		rc.Bailout = fractal.DefaultBailout
	}
	if rc.MaxRetries <= 0 {
		rc.MaxRetries = DefaultMaxRetries
	}
	if rc.Kernel == nil {
		k, err := fractal.New(rc.Type, rc.Params)
		if err != nil {
			return err
		}
		rc.Kernel = k
	}
	if rc.Math == BigFloat && (rc.Arena == nil || !rc.Big.Valid()) {
		return errors.New("engine: BigFloat frame without BigFloat corners")
	}
	rc.release()

	log := rc.log().WithField("fractal", rc.Type.String())
	policy := precision.Policy{
		ForceArbitrary:   rc.Debug.ForceArbitrary,
		PreventArbitrary: rc.Debug.PreventArbitrary,
		MathTolerance:    rc.MathTolerance[1],
	}
	rc.UsePerturbation = false
	rc.Tries = 0

	state := stateStart
	for {
		switch state {
		case stateStart:
			if rc.Math == BigFloat && !fractal.SupportsBigFloat(rc.Kernel) {
				log.Debug("type has no BigFloat kernel, using double")
				rc.demote()
			}
			if rc.Potential {
				rc.DistEst = false
			}
			state = statePrecision

		case statePrecision:
			if err := rc.checkPrecision(policy, log); err != nil {
				return err
			}
			rc.FloatFlag = rc.Math == BigFloat || rc.UserFloat || !rc.Kernel.IsInteger() || rc.DistEst
			state = statePerturb

		case statePerturb:
			use, err := rc.wantPerturbation()
			if err != nil {
				return err
			}
			if use {
				return rc.initPerturbation(log)
			}
			state = stateAdjust

		case stateAdjust:
			rc.Tries++
			if rc.Tries > rc.MaxRetries {
				log.WithField("tries", rc.MaxRetries).Warn("viewport did not converge")
				return &ConvergenceError{Fractal: rc.Type.String(), Tries: rc.MaxRetries}
			}
			next, err := rc.adjust()
			if err != nil {
				return err
			}
			state = next

		case stateValidate:
			if rc.validate() {
				state = stateConverged
				break
			}
			if !rc.IntegerFractal && fractal.SupportsBigFloat(rc.Kernel) && policy.AllowBig() {
				state = stateEscalate
			} else {
				state = stateExpand
			}

		case stateExpand:
			if rc.IntegerFractal {
				log.Debug("fixed point grid too coarse, switching to floating point")
				rc.FloatFlag = true
			} else {
				log.WithField("tries", rc.Tries).Debug("doubling viewport")
				rc.Corners, _ = rc.normalizer().Normalize(rc.Corners, 2)
			}
			rc.paramsChanged()
			state = stateAdjust

		case stateEscalate:
			digits, ok := precision.RequiredDigits(rc.Corners, rc.XDots, rc.YDots, precision.Current)
			if !ok {
				digits = precision.MinDigits
			}
			log.WithField("digits", digits).Debug("escalating to BigFloat")
			if err := rc.promote(digits); err != nil {
				return err
			}
			rc.FloatFlag = true
			state = statePerturb

		case stateConverged:
			rc.finish()
			log.WithFields(logrus.Fields{
				"math":  rc.Math,
				"tries": rc.Tries,
			}).Debug("frame initialized")
			return nil
		}
	}
}

// checkPrecision demotes a BigFloat frame that doubles can handle, rescales
// one that needs more digits, and honors a forced escalation.
func (rc *RenderContext) checkPrecision(policy precision.Policy, log logrus.FieldLogger) error {
	if rc.Math == BigFloat {
		digits, ok, err := precision.RequiredDigitsBig(rc.Arena, rc.Big, rc.XDots, rc.YDots, precision.Current)
		if err != nil {
			return err
		}
		if !ok {
			digits = 0
		}
		if !policy.KeepBig(digits) {
			log.WithField("digits", digits).Debug("demoting to double")
			rc.demote()
			return nil
		}
		if digits > rc.Arena.Decimals() {
			log.WithField("digits", digits).Debug("raising precision")
			bc, bp, err := precision.Rescale(rc.Arena, rc.Big, rc.BigParams, digits)
			if err != nil {
				return err
			}
			rc.Big, rc.BigParams = bc, bp
			rc.scratch = rc.Arena.Save()
		}
		return nil
	}
	if rc.Debug.ForceArbitrary && fractal.SupportsBigFloat(rc.Kernel) && policy.AllowBig() {
		digits, ok := precision.RequiredDigits(rc.Corners, rc.XDots, rc.YDots, precision.Current)
		if !ok {
			digits = precision.MinDigits
		}
		return rc.promote(digits)
	}
	return nil
}

// promote moves the frame to BigFloat at digits decimal digits.
func (rc *RenderContext) promote(digits int) error {
	if rc.Arena == nil {
		rc.Arena = bigfloat.NewArena(0)
	}
	bc, bp, err := precision.Promote(rc.Arena, rc.Corners, rc.Params, digits)
	if err != nil {
		return errors.Wrap(err, "escalate to BigFloat")
	}
	rc.Big, rc.BigParams = bc, bp
	rc.Math = BigFloat
	rc.Status = ParamsChanged
	rc.scratch = rc.Arena.Save()
	return nil
}

// demote moves the frame to double precision.
func (rc *RenderContext) demote() {
	corners, params := precision.Demote(rc.Big, rc.BigParams)
	rc.Corners = corners
	if rc.BigParams != nil {
		rc.Params = params
	}
	rc.Math = Double
	rc.Big = viewport.BigCorners{}
	rc.BigParams = nil
	rc.BigDeltas = BigDeltas{}
}

// release frees what a previous Init left in the arena above the corners.
func (rc *RenderContext) release() {
	if rc.Pert != nil {
		rc.Pert.Cleanup()
		rc.Pert = nil
	}
	if rc.Math == BigFloat {
		rc.Arena.Restore(rc.scratch)
		rc.scratch = rc.Arena.Save()
	}
}

func (rc *RenderContext) wantPerturbation() (bool, error) {
	switch {
	case rc.Perturbation == PerturbNo || rc.Debug.ForceStandard:
		return false, nil
	case rc.Perturbation == PerturbYes:
		if !fractal.SupportsPerturbation(rc.Kernel) {
			_, err := perturb.New(rc.Kernel, rc.Perturb)
			return false, err
		}
		return true, nil
	}
	return rc.Math == BigFloat && fractal.SupportsPerturbation(rc.Kernel), nil
}

func (rc *RenderContext) initPerturbation(log logrus.FieldLogger) error {
	cfg := rc.Perturb
	cfg.MaxIter = rc.MaxIter
	cfg.Bailout = rc.Bailout
	cfg.BailoutTest = rc.BailoutTest
	if rc.Workers > cfg.Workers {
		cfg.Workers = rc.Workers
	}
	cfg.Log = log
	e, err := perturb.New(rc.Kernel, cfg)
	if err != nil {
		return err
	}

	// square pixels: the smaller screen dimension spans 2 radius
	var height float64
	if rc.Math == BigFloat {
		hs, err := rc.Arena.AllocN(3)
		if err != nil {
			return errors.Wrap(err, "perturbation frame")
		}
		height = bigfloat.Float64(bigfloat.Sub(hs[2], rc.Big.Max.Y, rc.Big.Min.Y))
		center := viewport.BigPoint{X: hs[0], Y: hs[1]}
		rc.Big.Center(center)
		radius := height / float64(rc.YDots) * float64(min(rc.XDots, rc.YDots)) / 2
		err = e.InitializeFrameBig(rc.Arena, center, rc.BigParams, radius, rc.XDots, rc.YDots)
		if err != nil {
			return err
		}
	} else {
		height = rc.Corners.Max.Y - rc.Corners.Min.Y
		radius := height / float64(rc.YDots) * float64(min(rc.XDots, rc.YDots)) / 2
		c := rc.Corners.Center()
		if err := e.InitializeFrame(complex(c.X, c.Y), radius, rc.XDots, rc.YDots); err != nil {
			return err
		}
	}
	log.WithField("radius", e.Radius()).Debug("perturbation frame")
	rc.Pert = e
	rc.UsePerturbation = true
	return nil
}

func (rc *RenderContext) bitShift() int {
	switch {
	case rc.Debug.ForceBitShift > 0:
		return rc.Debug.ForceBitShift
	case !rc.IntegerFractal:
		return 16
	case !rc.Potential && rc.Bailout <= 4 && rc.BailoutTest == fractal.Mod &&
		math.Abs(rc.Params[0]) < 2 && math.Abs(rc.Params[1]) < 2:
		return 29
	}
	return 24
}

func (rc *RenderContext) normalizer() viewport.Normalizer {
	return viewport.Normalizer{
		Limit:       viewport.Limit(rc.IntegerFractal, rc.BitShift),
		Aspect:      rc.Aspect(),
		AspectDrift: rc.AspectDrift,
		Integer:     rc.IntegerFractal,
	}
}

// adjust normalizes the viewport and computes the pixel steps.
func (rc *RenderContext) adjust() (initState, error) {
	rc.IntegerFractal = rc.Kernel.IsInteger() && !rc.FloatFlag
	rc.BitShift = rc.bitShift()
	n := rc.normalizer()

	if rc.Math == BigFloat {
		moved, err := n.NormalizeBig(rc.Arena, rc.Big, 1)
		if err != nil {
			return 0, err
		}
		if moved {
			rc.paramsChanged()
		}
		rc.Corners = rc.Big.Float64()
		if err := rc.bigDeltas(); err != nil {
			return 0, err
		}
		return stateConverged, nil
	}

	var moved bool
	rc.Corners, moved = n.Normalize(rc.Corners, 1)
	if moved {
		rc.paramsChanged()
	}
	c := rc.Corners
	xres, yres := float64(rc.XDots-1), float64(rc.YDots-1)
	rc.Deltas = Deltas{
		X:  (c.Max.X - c.Third.X) / xres,
		Y:  (c.Max.Y - c.Third.Y) / yres,
		X2: (c.Third.X - c.Min.X) / yres,
		Y2: (c.Third.Y - c.Min.Y) / xres,
	}
	return stateValidate, nil
}

func (rc *RenderContext) bigDeltas() error {
	hs, err := rc.Arena.AllocN(4)
	if err != nil {
		return errors.Wrap(err, "pixel steps")
	}
	c := rc.Big
	xres, yres := int64(rc.XDots-1), int64(rc.YDots-1)
	d := BigDeltas{
		X:  bigfloat.QuoInt(hs[0], bigfloat.Sub(hs[0], c.Max.X, c.Third.X), xres),
		Y:  bigfloat.QuoInt(hs[1], bigfloat.Sub(hs[1], c.Max.Y, c.Third.Y), yres),
		X2: bigfloat.QuoInt(hs[2], bigfloat.Sub(hs[2], c.Third.X, c.Min.X), yres),
		Y2: bigfloat.QuoInt(hs[3], bigfloat.Sub(hs[3], c.Third.Y, c.Min.Y), xres),
	}
	rc.BigDeltas = d
	rc.Deltas = Deltas{
		X:  bigfloat.Float64(d.X),
		Y:  bigfloat.Float64(d.Y),
		X2: bigfloat.Float64(d.X2),
		Y2: bigfloat.Float64(d.Y2),
	}
	return nil
}

// finish derives the minimum step and the plot mappings.
func (rc *RenderContext) finish() {
	d := rc.Deltas
	dm := math.Max(math.Abs(d.X), math.Abs(d.X2))
	if math.Abs(d.Y) > math.Abs(d.Y2) {
		dm = math.Min(math.Abs(d.Y), dm)
	} else if math.Abs(d.Y2) < dm {
		dm = math.Abs(d.Y2)
	}
	rc.DeltaMin = dm

	m := matrix.Matrix{d.X, -d.Y2, d.X2, -d.Y, rc.Corners.Min.X, rc.Corners.Max.Y}
	rc.PixelToPlane = m
	rc.PlaneToPixel = matrix.Matrix{}
	if det := m[0]*m[3] - m[1]*m[2]; det != 0 {
		rc.PlaneToPixel = matrix.Matrix{
			m[3] / det, -m[1] / det,
			-m[2] / det, m[0] / det,
			(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
		}
	}
}
