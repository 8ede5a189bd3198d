// Package perturb renders deep zooms by perturbation: one reference orbit is
// iterated at full precision and every pixel follows it as a double
// precision delta. Pixels whose delta becomes unreliable are glitched and
// retried against a new reference chosen among them.
package perturb

import (
	"fmt"
	"sync"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/marben/deepzoom/internal/viewport"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrUnsupportedFractalType = errors.New("perturbation not supported")

// UnsupportedFractalTypeError names the fractal type and the formula it lacks.
type UnsupportedFractalTypeError struct {
	Fractal string
	Missing string
}

func (e *UnsupportedFractalTypeError) Error() string {
	return fmt.Sprintf("fractal type %q has no %s", e.Fractal, e.Missing)
}

func (e *UnsupportedFractalTypeError) Unwrap() error { return ErrUnsupportedFractalType }

// Config tunes the engine.
type Config struct {
	// Tolerance scales the reference iterate into the glitch threshold.
	Tolerance float64
	// PercentGlitchTolerance is the share of glitched pixels, in percent,
	// below which no further reference is tried.
	PercentGlitchTolerance float64
	// MaxReferences bounds the reference orbits per frame.
	MaxReferences int
	// Seed drives the choice of new reference points.
	Seed    int64
	Workers int

	MaxIter     int
	Bailout     float64
	BailoutTest fractal.BailoutTest

	Log logrus.FieldLogger
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Tolerance:              1e-6,
		PercentGlitchTolerance: 0.1,
		MaxReferences:          10,
		Seed:                   1,
		Workers:                1,
		MaxIter:                1000,
		Bailout:                fractal.DefaultBailout,
	}
}

// Engine holds one frame's center, scale and primary reference orbit.
type Engine struct {
	kernel fractal.Perturber
	name   string
	cfg    Config
	log    logrus.FieldLogger

	// mu serializes reference computations, which share the arena.
	mu        sync.Mutex
	arena     *bigfloat.Arena
	mark      bigfloat.Marker
	big       bool
	center    complex128
	centerBig viewport.BigPoint
	params    []bigfloat.Handle
	radius    float64
	xdots     int
	ydots     int
	primary   *Reference

	stats Stats
}

// Stats summarises the frames calculated so far.
type Stats struct {
	References int
	Pixels     int
	Glitched   int
}

// New checks that k has every formula perturbation needs.
func New(k fractal.Kernel, cfg Config) (*Engine, error) {
	name := k.Type().String()
	p, ok := k.(fractal.Perturber)
	if !ok {
		missing := "reference orbit or delta formula"
		if fractal.SupportsBigFloat(k) {
			missing = "delta formula"
		}
		return nil, &UnsupportedFractalTypeError{Fractal: name, Missing: missing}
	}
	def := DefaultConfig()
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = def.MaxReferences
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = def.MaxIter
	}
	if cfg.Bailout <= 0 {
		cfg.Bailout = def.Bailout
	}
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Engine{
		kernel: p,
		name:   name,
		cfg:    cfg,
		log:    log.WithField("fractal", name),
	}, nil
}

// InitializeFrame sets a double precision center and the zoom radius, half
// the extent of the smaller screen dimension.
func (e *Engine) InitializeFrame(center complex128, radius float64, xdots, ydots int) error {
	if err := e.setFrame(radius, xdots, ydots); err != nil {
		return err
	}
	e.big = false
	e.center = center
	return nil
}

// InitializeFrameBig sets a BigFloat center. The center and params are
// copied into a scope of a that stays open until Cleanup.
func (e *Engine) InitializeFrameBig(a *bigfloat.Arena, center viewport.BigPoint, params []bigfloat.Handle, radius float64, xdots, ydots int) error {
	if err := e.setFrame(radius, xdots, ydots); err != nil {
		return err
	}
	e.arena = a
	e.mark = a.Save()
	hs, err := a.AllocN(2 + len(params))
	if err != nil {
		a.Restore(e.mark)
		e.arena = nil
		return errors.Wrap(err, "perturbation frame")
	}
	e.big = true
	e.centerBig = viewport.BigPoint{X: bigfloat.Set(hs[0], center.X), Y: bigfloat.Set(hs[1], center.Y)}
	e.params = hs[2:]
	for i, p := range params {
		bigfloat.Set(e.params[i], p)
	}
	e.center = complex(bigfloat.Float64(center.X), bigfloat.Float64(center.Y))
	return nil
}

func (e *Engine) setFrame(radius float64, xdots, ydots int) error {
	e.Cleanup()
	if xdots < 1 || ydots < 1 {
		return errors.Errorf("perturbation: invalid frame %dx%d", xdots, ydots)
	}
	if !(radius > 0) {
		return errors.Errorf("perturbation: zoom radius %g is not representable", radius)
	}
	e.radius = radius
	e.xdots, e.ydots = xdots, ydots
	return nil
}

// Cleanup drops the reference orbits and releases the arena scope opened by
// InitializeFrameBig.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.arena != nil {
		e.arena.Restore(e.mark)
		e.arena = nil
	}
	e.big = false
	e.params = nil
	e.primary = nil
}

// Stats returns the counters of the frames calculated so far.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Radius returns the zoom radius of the frame.
func (e *Engine) Radius() float64 { return e.radius }

// Center returns the frame center rounded to double precision.
func (e *Engine) Center() complex128 { return e.center }
