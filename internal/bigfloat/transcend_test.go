package bigfloat

import (
	"math"
	"testing"
)

func TestTranscendental(t *testing.T) {
	a := newTestArena(t, 40)
	x, y, z, w := mustAlloc(t, a), mustAlloc(t, a), mustAlloc(t, a), mustAlloc(t, a)

	for _, v := range []float64{-20, -1, -1e-9, 0, 0.5, 1, 3.25, 40} {
		SetFloat64(x, v)
		Exp(z, x)
		if got, want := Float64(z), math.Exp(v); !closeEnough(got, want, 1e-14) {
			t.Fatalf("exp(%v): got %v, want %v", v, got, want)
		}
	}

	for _, v := range []float64{1e-30, 0.1, 1, 2, 10, 12345.678} {
		SetFloat64(x, v)
		if _, err := Ln(z, x); err != nil {
			t.Fatal(err)
		}
		if got, want := Float64(z), math.Log(v); !closeEnough(got, want, 1e-14) {
			t.Fatalf("ln(%v): got %v, want %v", v, got, want)
		}
	}
	SetInt(x, -1)
	if _, err := Ln(z, x); err == nil {
		t.Fatalf("ln(-1) succeeded")
	}

	for _, v := range []float64{0, 0.3, -1.2, math.Pi / 2, 3, 100, -250.5} {
		SetFloat64(x, v)
		SinCos(z, w, x)
		if got, want := Float64(z), math.Sin(v); math.Abs(got-want) > 1e-14 {
			t.Fatalf("sin(%v): got %v, want %v", v, got, want)
		}
		if got, want := Float64(w), math.Cos(v); math.Abs(got-want) > 1e-14 {
			t.Fatalf("cos(%v): got %v, want %v", v, got, want)
		}
	}

	for _, p := range [][2]float64{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}, {0, 1}, {0, -1}, {3, 0}, {-3, 0}, {0.2, 5}, {7, 0.01}} {
		SetFloat64(y, p[0])
		SetFloat64(x, p[1])
		Atan2(z, y, x)
		if got, want := Float64(z), math.Atan2(p[0], p[1]); math.Abs(got-want) > 1e-14 {
			t.Fatalf("atan2(%v, %v): got %v, want %v", p[0], p[1], got, want)
		}
	}

	SetInt(x, 2)
	if _, err := Sqrt(z, x); err != nil {
		t.Fatal(err)
	}
	if got := Float64(z); got != math.Sqrt2 {
		t.Fatalf("sqrt(2): got %v", got)
	}
}

func TestExpLnHighPrecision(t *testing.T) {
	a := newTestArena(t, 200)
	x, y, z := mustAlloc(t, a), mustAlloc(t, a), mustAlloc(t, a)
	SetString(x, "1.2345678901234567890123456789012345678901234567890")
	if _, err := Ln(y, x); err != nil {
		t.Fatal(err)
	}
	Exp(z, y)
	Sub(z, z, x)
	Abs(z, z)
	SetString(y, "1e-190")
	if Cmp(z, y) > 0 {
		t.Fatalf("exp(ln x) - x = %s", Text(z, 5))
	}
}
