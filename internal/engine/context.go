// Package engine prepares a frame for calculation and runs it. Init settles
// the precision mode and the viewport in a bounded retry loop; Render then
// evaluates pixels with the standard escape-time loop, in double or
// BigFloat, or hands the frame to the perturbation engine.
package engine

import (
	"fmt"
	"strings"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/marben/deepzoom/internal/perturb"
	"github.com/marben/deepzoom/internal/viewport"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"seehuhn.de/go/geom/matrix"
)

// MathMode is the arithmetic the frame's corners are authoritative in.
type MathMode int

const (
	Double MathMode = iota
	BigFloat
)

func (m MathMode) String() string {
	if m == BigFloat {
		return "bigfloat"
	}
	return "double"
}

// Status tracks whether a calculation can be resumed.
type Status int

const (
	NoFractal Status = iota
	ParamsChanged
	InProgress
	Resumable
	Completed
)

// PerturbationMode decides when the perturbation engine is used.
type PerturbationMode int

const (
	// PerturbAuto uses perturbation for BigFloat frames of supporting types.
	PerturbAuto PerturbationMode = iota
	PerturbYes
	PerturbNo
)

var perturbationNames = [...]string{"auto", "yes", "no"}

func (m PerturbationMode) String() string {
	if m < 0 || int(m) >= len(perturbationNames) {
		return "unknown"
	}
	return perturbationNames[m]
}

// ParsePerturbationMode parses auto, yes or no.
func ParsePerturbationMode(s string) (PerturbationMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range perturbationNames {
		if s == name {
			return PerturbationMode(i), nil
		}
	}
	return PerturbAuto, errors.Errorf("engine: unknown perturbation mode %q", s)
}

// Debug holds the override switches.
type Debug struct {
	// ForceStandard disables perturbation.
	ForceStandard bool
	// ForceArbitrary uses BigFloat even when doubles suffice.
	ForceArbitrary bool
	// PreventArbitrary never escalates to BigFloat and disables the
	// precision loss check.
	PreventArbitrary bool
	// ForceBitShift overrides the fixed point shift when non-zero.
	ForceBitShift int
}

// DefaultMaxRetries bounds the passes Init makes before giving up.
const DefaultMaxRetries = 10

var ErrPrecisionConvergence = errors.New("precision did not converge")

// ConvergenceError reports a frame whose viewport could not be settled
// within the retry bound.
type ConvergenceError struct {
	Fractal string
	Tries   int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("fractal type %q: no usable pixel grid after %d tries", e.Fractal, e.Tries)
}

func (e *ConvergenceError) Unwrap() error { return ErrPrecisionConvergence }

// Deltas are the per pixel steps: moving one column adds (X, -Y2) and
// moving one row adds (X2, -Y).
type Deltas struct {
	X, Y, X2, Y2 float64
}

// BigDeltas are Deltas in BigFloat.
type BigDeltas struct {
	X, Y, X2, Y2 bigfloat.Handle
}

// Grid holds the plane coordinate of every column and row: pixel (i, j)
// is at (X0[i] + X1[j], Y0[j] + Y1[i]).
type Grid struct {
	X0, Y1 []float64 // per column
	Y0, X1 []float64 // per row
}

// At returns the plane coordinate of pixel (col, row).
func (g Grid) At(col, row int) complex128 {
	return complex(g.X0[col]+g.X1[row], g.Y0[row]+g.Y1[col])
}

// RenderContext is the state of one frame. Fields above the outputs
// marker are inputs; Init fills in the rest and may rewrite the viewport,
// the math mode and the status.
type RenderContext struct {
	Type   fractal.Type
	Params fractal.Params
	// Kernel is resolved from Type and Params when nil.
	Kernel fractal.Kernel

	XDots, YDots int
	MaxIter      int
	Bailout      float64
	BailoutTest  fractal.BailoutTest

	// Corners is authoritative in Double mode and a rounded copy of Big
	// in BigFloat mode.
	Corners   viewport.Corners
	Math      MathMode
	Arena     *bigfloat.Arena
	Big       viewport.BigCorners
	BigParams []bigfloat.Handle

	Status Status

	// UserFloat asks for floating point math for integer kernels.
	UserFloat bool
	Potential bool
	DistEst   bool
	// MathTolerance is the ratio tolerance of the precision check for
	// fixed point and floating point math.
	MathTolerance [2]float64
	AspectDrift   float64
	Debug         Debug

	Perturbation PerturbationMode
	Perturb      perturb.Config

	MaxRetries int
	Workers    int
	Log        logrus.FieldLogger

	// outputs

	FloatFlag      bool
	IntegerFractal bool
	BitShift       int
	Deltas         Deltas
	BigDeltas      BigDeltas
	Grid           Grid
	// DeltaMin is the smaller of the two larger per axis steps.
	DeltaMin float64
	// PixelToPlane maps (col, row) to the plane, PlaneToPixel back.
	PixelToPlane matrix.Matrix
	PlaneToPixel matrix.Matrix

	UsePerturbation bool
	Pert            *perturb.Engine
	Tries           int

	// scratch marks the arena top above the corners and parameters.
	scratch bigfloat.Marker
}

// NewRenderContext returns a context for typ with the type's default
// parameters and viewport.
func NewRenderContext(typ fractal.Type, xdots, ydots int) (*RenderContext, error) {
	info, err := fractal.Lookup(typ)
	if err != nil {
		return nil, err
	}
	bailout := info.Bailout
	if bailout == 0 {
		bailout = fractal.DefaultBailout
	}
	return &RenderContext{
		Type:          typ,
		Params:        info.Defaults,
		XDots:         xdots,
		YDots:         ydots,
		MaxIter:       1000,
		Bailout:       bailout,
		Corners:       viewport.Rect(info.Corners[0], info.Corners[1], info.Corners[2], info.Corners[3]),
		MathTolerance: [2]float64{0.05, 0.05},
		AspectDrift:   viewport.DefaultAspectDrift,
		Perturb:       perturb.DefaultConfig(),
		MaxRetries:    DefaultMaxRetries,
		Workers:       1,
	}, nil
}

// Aspect is the height to width ratio of the frame.
func (rc *RenderContext) Aspect() float64 {
	return float64(rc.YDots) / float64(rc.XDots)
}

// paramsChanged marks a resumable calculation as no longer resumable.
func (rc *RenderContext) paramsChanged() {
	if rc.Status == Resumable {
		rc.Status = ParamsChanged
	}
}

func (rc *RenderContext) log() logrus.FieldLogger {
	if rc.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		rc.Log = l
	}
	return rc.Log
}
