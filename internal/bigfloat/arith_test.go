package bigfloat

import (
	"math"
	"testing"

	"github.com/pkg/errors"
)

func closeEnough(a, b, eps float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	if a == 0 || b == 0 {
		return diff < eps
	}
	return diff/math.Max(math.Abs(a), math.Abs(b)) < eps
}

func TestArithmetic(t *testing.T) {
	a := newTestArena(t, 40)
	x, y, z := mustAlloc(t, a), mustAlloc(t, a), mustAlloc(t, a)
	SetInt(x, 3)
	if _, err := SetFloat64(y, -0.5); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		op   func()
		want float64
	}{
		{"add", func() { Add(z, x, y) }, 2.5},
		{"sub", func() { Sub(z, x, y) }, 3.5},
		{"mul", func() { Mul(z, x, y) }, -1.5},
		{"sqr", func() { Sqr(z, y) }, 0.25},
		{"neg", func() { Neg(z, x) }, -3},
		{"abs", func() { Abs(z, y) }, 0.5},
		{"half", func() { Half(z, x) }, 1.5},
		{"double", func() { Double(z, y) }, -1},
		{"mulint", func() { MulInt(z, y, 10) }, -5},
		{"quoint", func() { QuoInt(z, x, 4) }, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.op()
			if got := Float64(z); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("alias", func(t *testing.T) {
		Set(z, x)
		Mul(z, z, z)
		Add(z, z, x)
		if got := Float64(z); got != 12 {
			t.Fatalf("got %v, want 12", got)
		}
	})

	t.Run("quo", func(t *testing.T) {
		if _, err := Quo(z, x, y); err != nil {
			t.Fatal(err)
		}
		if got := Float64(z); got != -6 {
			t.Fatalf("got %v, want -6", got)
		}
		SetInt(x, 0)
		if _, err := Quo(z, x, x); !errors.Is(err, ErrDomain) {
			t.Fatalf("0/0: got %v, want ErrDomain", err)
		}
		SetInt(x, 3)
	})

	t.Run("compare", func(t *testing.T) {
		if Cmp(x, y) != 1 || Cmp(y, x) != -1 || Cmp(x, x) != 0 {
			t.Fatalf("Cmp wrong")
		}
		Neg(z, x)
		if CmpAbs(z, x) != 0 || CmpAbs(y, x) != -1 {
			t.Fatalf("CmpAbs wrong")
		}
		if Sign(y) != -1 || IsZero(x) {
			t.Fatalf("Sign/IsZero wrong")
		}
	})
}

func TestPowInt(t *testing.T) {
	a := newTestArena(t, 30)
	x, z := mustAlloc(t, a), mustAlloc(t, a)
	SetFloat64(x, 1.5)
	for _, n := range []int{0, 1, 2, 5, 13, -3} {
		if _, err := PowInt(z, x, n); err != nil {
			t.Fatal(err)
		}
		if got, want := Float64(z), math.Pow(1.5, float64(n)); !closeEnough(got, want, 1e-15) {
			t.Fatalf("1.5**%d: got %v, want %v", n, got, want)
		}
	}
	SetInt(x, 0)
	if _, err := PowInt(z, x, -1); !errors.Is(err, ErrDomain) {
		t.Fatalf("got %v, want ErrDomain", err)
	}
}

func TestStrings(t *testing.T) {
	a := newTestArena(t, 50)
	x := mustAlloc(t, a)
	const s = "-0.74364388703715870475219150611477"
	if _, err := SetString(x, s); err != nil {
		t.Fatal(err)
	}
	if got := Text(x, 32); got != s {
		t.Fatalf("Text: got %s, want %s", got, s)
	}
	if got := Text(x, 10); got != "-0.743643887" {
		t.Fatalf("Text(10): got %s", got)
	}
	if _, err := SetString(x, "1.2.3"); !errors.Is(err, ErrSyntax) {
		t.Fatalf("got %v, want ErrSyntax", err)
	}
	if _, err := SetFloat64(x, math.NaN()); !errors.Is(err, ErrDomain) {
		t.Fatalf("got %v, want ErrDomain", err)
	}

	for _, tt := range []struct {
		in   string
		want int
	}{
		{"1e15", 15},
		{"1.5e15", 15},
		{"9.99e-30", -30},
		{"123", 2},
		{"0", 0},
	} {
		SetString(x, tt.in)
		if got := Exponent10(x); got != tt.want {
			t.Fatalf("Exponent10(%s)=%d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBigRoundTrip(t *testing.T) {
	a := newTestArena(t, 30)
	x := mustAlloc(t, a)
	SetString(x, "0.1")
	v := ToBig(x)
	if err := a.InitPrecision(60); err != nil {
		t.Fatal(err)
	}
	y := mustAlloc(t, a)
	SetBig(y, v)
	if got := Float64(y); got != 0.1 {
		t.Fatalf("got %v, want 0.1", got)
	}
}
