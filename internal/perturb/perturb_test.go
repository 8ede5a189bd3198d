package perturb

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/marben/deepzoom/internal/viewport"
	"github.com/pkg/errors"
)

func newEngine(t *testing.T, typ fractal.Type, maxIter int) (*Engine, fractal.Kernel) {
	t.Helper()
	info, err := fractal.Lookup(typ)
	if err != nil {
		t.Fatal(err)
	}
	k, err := fractal.New(typ, info.Defaults)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.MaxIter = maxIter
	cfg.Workers = 4
	e, err := New(k, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e, k
}

type frame struct {
	w, h int
	px   []fractal.Result
}

func render(t *testing.T, e *Engine, w, h int) frame {
	t.Helper()
	f := frame{w: w, h: h, px: make([]fractal.Result, w*h)}
	plotted := make([]bool, w*h)
	err := e.CalculateFrame(context.Background(), image.Rect(0, 0, w, h), func(x, y int, r fractal.Result) {
		f.px[y*w+x] = r
		plotted[y*w+x] = true
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, ok := range plotted {
		if !ok {
			t.Fatalf("pixel %d,%d never plotted", i%w, i/w)
		}
	}
	return f
}

// compareDirect counts non-glitched pixels whose iteration count differs
// by more than one from plain double precision iteration.
func compareDirect(e *Engine, k fractal.Kernel, f frame) (checked, mismatched int) {
	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			got := f.px[y*f.w+x]
			if got.Glitched {
				continue
			}
			z, c := k.Start(e.Center() + e.Offset(x, y))
			want := fractal.Iterate(k, z, c, e.cfg.MaxIter, e.cfg.Bailout, e.cfg.BailoutTest)
			checked++
			if d := got.Iter - want.Iter; d > 1 || d < -1 {
				mismatched++
			}
		}
	}
	return checked, mismatched
}

func TestMatchesDirectIteration(t *testing.T) {
	e, k := newEngine(t, fractal.Mandel, 500)
	if err := e.InitializeFrame(complex(-0.75, 0), 0.05, 64, 64); err != nil {
		t.Fatal(err)
	}
	f := render(t, e, 64, 64)
	checked, mismatched := compareDirect(e, k, f)
	if checked < 64*64*9/10 {
		t.Fatalf("only %d of %d pixels not glitched", checked, 64*64)
	}
	if mismatched != 0 {
		t.Fatalf("%d of %d pixels differ from direct iteration by more than one", mismatched, checked)
	}
}

func TestPeriodicReferenceNotGlitched(t *testing.T) {
	e, _ := newEngine(t, fractal.Mandel, 200)
	// c = -1 is the center of the period 2 bulb: 0, -1, 0, -1, ...
	if err := e.InitializeFrame(complex(-1, 0), 1e-3, 32, 32); err != nil {
		t.Fatal(err)
	}
	f := render(t, e, 32, 32)
	for i, r := range f.px {
		if r.Glitched {
			t.Fatalf("pixel %d,%d glitched at iteration %d", i%32, i/32, r.Iter)
		}
		if r.Escaped || r.Iter != 200 {
			t.Fatalf("pixel %d,%d: got %+v, want bounded orbit", i%32, i/32, r)
		}
	}
	if s := e.Stats(); s.References != 1 || s.Glitched != 0 {
		t.Fatalf("got %+v", s)
	}
}

func TestGlitchRecovery(t *testing.T) {
	e, k := newEngine(t, fractal.Mandel, 300)
	// The center escapes, but the left part of the frame lies in the main
	// cardioid, so its pixels outlive the first reference.
	if err := e.InitializeFrame(complex(0.26, 0), 0.05, 48, 48); err != nil {
		t.Fatal(err)
	}
	ref, err := e.PrimaryReference()
	if err != nil {
		t.Fatal(err)
	}
	if !ref.Escaped || ref.Len() > 300 {
		t.Fatalf("center reference should escape early, length %d", ref.Len())
	}

	f := render(t, e, 48, 48)
	s := e.Stats()
	if s.References < 2 {
		t.Fatalf("no new reference chosen: %+v", s)
	}
	if s.Glitched*4 > 48*48 {
		t.Fatalf("%d pixels left glitched", s.Glitched)
	}
	checked, mismatched := compareDirect(e, k, f)
	if mismatched*100 > checked {
		t.Fatalf("%d of %d pixels differ from direct iteration by more than one", mismatched, checked)
	}
}

func TestBigFloatFrame(t *testing.T) {
	center := complex(-0.743643887037151, 0.131825904205330)
	dbl, _ := newEngine(t, fractal.Mandel, 400)
	if err := dbl.InitializeFrame(center, 1e-6, 32, 24); err != nil {
		t.Fatal(err)
	}
	want := render(t, dbl, 32, 24)

	a := bigfloat.NewArena(128)
	if err := a.InitPrecision(40); err != nil {
		t.Fatal(err)
	}
	hs, err := a.AllocN(2)
	if err != nil {
		t.Fatal(err)
	}
	bigfloat.SetFloat64(hs[0], real(center))
	bigfloat.SetFloat64(hs[1], imag(center))
	live := a.Len()

	big, _ := newEngine(t, fractal.Mandel, 400)
	if err := big.InitializeFrameBig(a, viewport.BigPoint{X: hs[0], Y: hs[1]}, nil, 1e-6, 32, 24); err != nil {
		t.Fatal(err)
	}
	got := render(t, big, 32, 24)

	differ := 0
	for i := range got.px {
		if d := got.px[i].Iter - want.px[i].Iter; d > 1 || d < -1 {
			differ++
		}
	}
	if differ*100 > len(got.px) {
		t.Fatalf("%d of %d pixels differ between BigFloat and double references", differ, len(got.px))
	}

	big.Cleanup()
	if a.Len() != live {
		t.Fatalf("Cleanup left %d slots, want %d", a.Len(), live)
	}
	if !hs[0].Valid() {
		t.Fatalf("Cleanup released the caller's slots")
	}
}

func TestUnsupportedFractalType(t *testing.T) {
	k, err := fractal.New(fractal.Lambda, fractal.Params{0.85, 0.6})
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(k, DefaultConfig())
	if !errors.Is(err, ErrUnsupportedFractalType) {
		t.Fatalf("got %v, want ErrUnsupportedFractalType", err)
	}
	var uerr *UnsupportedFractalTypeError
	if !errors.As(err, &uerr) || uerr.Fractal != "lambda" {
		t.Fatalf("got %#v", err)
	}
	if !strings.Contains(err.Error(), "lambda") {
		t.Fatalf("message %q does not name the type", err)
	}
}

func TestCancellation(t *testing.T) {
	e, _ := newEngine(t, fractal.Mandel, 100)
	if err := e.InitializeFrame(complex(-0.5, 0), 1, 64, 64); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plotted := 0
	err := e.CalculateFrame(ctx, image.Rect(0, 0, 64, 64), func(int, int, fractal.Result) { plotted++ })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if plotted != 0 {
		t.Fatalf("%d pixels plotted after cancellation", plotted)
	}
}

func TestInvalidFrame(t *testing.T) {
	e, _ := newEngine(t, fractal.Mandel, 100)
	if err := e.InitializeFrame(0, 0, 10, 10); err == nil {
		t.Fatalf("zero radius accepted")
	}
	if err := e.InitializeFrame(0, 1, 0, 10); err == nil {
		t.Fatalf("empty frame accepted")
	}
}
