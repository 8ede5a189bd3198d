package precision

import (
	"testing"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/marben/deepzoom/internal/viewport"
	"github.com/pkg/errors"
)

func TestRequiredDigits(t *testing.T) {
	tests := []struct {
		name string
		c    viewport.Corners
		want int
	}{
		{"full set", viewport.Rect(-2.5, 1.5, -1.5, 1.5), 3},
		{"seahorse", viewport.Rect(-0.75, -0.625, 0, 0.125), 4},
		{"deep", viewport.Rect(-0.75, -0.75+0x1p-40, 0, 0x1p-40), 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RequiredDigits(tt.c, 101, 101, Current)
			if !ok {
				t.Fatalf("viewport reported degenerate")
			}
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
	if _, ok := RequiredDigits(viewport.Rect(1, 1, 0, 1), 100, 100, Current); ok {
		t.Fatalf("zero width viewport not reported")
	}
}

func TestRequiredDigitsMonotonic(t *testing.T) {
	c := viewport.Rect(-2, 2, -1.5, 1.5)
	center := c.Center()
	last := 0
	for i := 0; i < 60; i++ {
		got, ok := RequiredDigits(c, 640, 480, Current)
		if !ok {
			t.Fatalf("step %d: degenerate", i)
		}
		if got < last {
			t.Fatalf("step %d: digits dropped from %d to %d", i, last, got)
		}
		last = got
		w, h := (c.Max.X-c.Min.X)/4, (c.Max.Y-c.Min.Y)/4
		c = viewport.Rect(center.X-w, center.X+w, center.Y-h, center.Y+h)
	}
	if last <= DoubleDigits {
		t.Fatalf("60 halvings only need %d digits", last)
	}

	a := bigfloat.NewArena(64)
	if err := a.InitPrecision(60); err != nil {
		t.Fatal(err)
	}
	bc, err := viewport.AllocCorners(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := bc.SetFloat64(viewport.Rect(-0.75, -0.7, 0.1, 0.15)); err != nil {
		t.Fatal(err)
	}
	last = 0
	for i := 0; i < 100; i++ {
		got, ok, err := RequiredDigitsBig(a, bc, 640, 480, Current)
		if err != nil || !ok {
			t.Fatalf("step %d: ok=%v err=%v", i, ok, err)
		}
		if got < last {
			t.Fatalf("step %d: digits dropped from %d to %d", i, last, got)
		}
		last = got
		// halve the span towards Min
		bigfloat.Half(bc.Max.X, bigfloat.Add(bc.Max.X, bc.Max.X, bc.Min.X))
		bigfloat.Half(bc.Max.Y, bigfloat.Add(bc.Max.Y, bc.Max.Y, bc.Min.Y))
	}
	if last < 30 {
		t.Fatalf("100 halvings only need %d digits", last)
	}
}

func TestMatchesBig(t *testing.T) {
	c := viewport.Rect(-0.8, -0.7, 0.05, 0.15)
	a := bigfloat.NewArena(64)
	bc, _, err := Promote(a, c, fractal.Params{}, 30)
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range []Resolution{Current, Max} {
		want, _ := RequiredDigits(c, 800, 600, res)
		got, ok, err := RequiredDigitsBig(a, bc, 800, 600, res)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		if got != want {
			t.Fatalf("resolution %d: got %d, want %d", res, got, want)
		}
	}
}

func TestMagDigits(t *testing.T) {
	tests := []struct {
		mag  float64
		want int
	}{
		{0.5, 3},
		{1, 4},
		{1e3, 7},
		{1e15, 19},
		{2e15, 19},
		{9.999999999999999e14, 18},
		{1e30, 34},
		{3.2e40, 44},
	}
	for _, tt := range tests {
		if got := MagDigits(tt.mag); got != tt.want {
			t.Fatalf("MagDigits(%v)=%d, want %d", tt.mag, got, tt.want)
		}
	}
}

func TestPromoteRescaleDemote(t *testing.T) {
	c := viewport.Rect(-0.75, -0.74, 0.1, 0.11)
	var params fractal.Params
	params[0], params[1] = 0.3, -0.6

	a := bigfloat.NewArena(64)
	bc, bp, err := Promote(a, c, params, 20)
	if err != nil {
		t.Fatal(err)
	}
	if a.Decimals() != 20 || len(bp) != fractal.MaxParams {
		t.Fatalf("got %d digits and %d params", a.Decimals(), len(bp))
	}
	old := bc.Min.X

	bc, bp, err = Rescale(a, bc, bp, 50)
	if err != nil {
		t.Fatal(err)
	}
	if old.Valid() {
		t.Fatalf("handle survived Rescale")
	}
	gotC, gotP := Demote(bc, bp)
	if gotC != c || gotP != params {
		t.Fatalf("got %+v %v, want %+v %v", gotC, gotP, c, params)
	}

	if _, _, err := Promote(a, c, params, bigfloat.MaxDecimals+1); !errors.Is(err, bigfloat.ErrPrecisionTooHigh) {
		t.Fatalf("got %v, want ErrPrecisionTooHigh", err)
	}
	small := bigfloat.NewArena(8)
	if _, _, err := Promote(small, c, params, 20); !errors.Is(err, bigfloat.ErrArenaExhausted) {
		t.Fatalf("got %v, want ErrArenaExhausted", err)
	}
}

func TestPolicy(t *testing.T) {
	tests := []struct {
		name  string
		p     Policy
		digit int
		keep  bool
		allow bool
	}{
		{"shallow", Policy{MathTolerance: 0.05}, 12, false, true},
		{"boundary", Policy{MathTolerance: 0.05}, DoubleDigits + 1, false, true},
		{"deep", Policy{MathTolerance: 0.05}, 30, true, true},
		{"forced", Policy{ForceArbitrary: true, MathTolerance: 0.05}, 8, true, true},
		{"tolerance", Policy{MathTolerance: 1}, 30, false, false},
		{"prevented", Policy{PreventArbitrary: true}, 30, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.KeepBig(tt.digit); got != tt.keep {
				t.Fatalf("KeepBig: got %v, want %v", got, tt.keep)
			}
			if got := tt.p.AllowBig(); got != tt.allow {
				t.Fatalf("AllowBig: got %v, want %v", got, tt.allow)
			}
		})
	}
}
