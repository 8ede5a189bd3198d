package viewport

import (
	"math"
	"testing"

	"github.com/marben/deepzoom/internal/bigfloat"
	"seehuhn.de/go/geom/vec"
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

func cornersClose(a, b Corners, eps float64) bool {
	pa := []float64{a.Min.X, a.Min.Y, a.Max.X, a.Max.Y, a.Third.X, a.Third.Y}
	pb := []float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y, b.Third.X, b.Third.Y}
	for i := range pa {
		if !closeEnough(pa[i], pb[i], eps) {
			return false
		}
	}
	return true
}

func newArena(t *testing.T, decimals int) *bigfloat.Arena {
	t.Helper()
	a := bigfloat.NewArena(256)
	if err := a.InitPrecision(decimals); err != nil {
		t.Fatal(err)
	}
	return a
}

var sampleViewports = map[string]Corners{
	"mandel":   Rect(-2.5, 1.5, -1.5, 1.5),
	"seahorse": Rect(-0.8, -0.7, 0.05, 0.15),
	"deep":     Rect(-0.743643887037158, -0.743643887037151, 0.131825904205311, 0.131825904205315),
	"rotated":  FromCenterMag(CenterMag{Center: vec.Vec2{X: -0.5}, Mag: 0.8, XMag: 1, Rotation: 30}, 1),
	"skewed":   FromCenterMag(CenterMag{Center: vec.Vec2{X: 0.25, Y: 0.1}, Mag: 5, XMag: 1.3, Rotation: -12, Skew: 20}, 1),
}

func TestNormalizeIdempotent(t *testing.T) {
	n := Normalizer{Limit: FloatLimit}
	for name, c := range sampleViewports {
		t.Run(name, func(t *testing.T) {
			got, moved := n.Normalize(c, 1)
			if moved {
				t.Fatalf("viewport within limits was moved")
			}
			if !cornersClose(got, c, 1e-15) {
				t.Fatalf("got %+v, want %+v", got, c)
			}
		})
	}
}

func TestNormalizeHealsDegenerate(t *testing.T) {
	n := Normalizer{Limit: FloatLimit}
	for _, x := range []float64{-0.75, 1e-3, 3, 0} {
		c := Rect(x, x, -1, 1)
		got, _ := n.Normalize(c, 1)
		if got.Min.X >= got.Max.X {
			t.Fatalf("x=%v: min %v not below max %v", x, got.Min.X, got.Max.X)
		}
		span := got.Max.X - got.Min.X
		ref := math.Max(math.Abs(x), 1)
		if span <= 0 || span > ref*4*nudgeFactor {
			t.Fatalf("x=%v: span %g not about |x|*5e-16", x, span)
		}
	}
	for _, y := range []float64{0.5, -0.5} {
		c := Rect(-1, 1, y, y)
		if got, _ := n.Normalize(c, 1); got.Min.Y >= got.Max.Y {
			t.Fatalf("y=%v: min %v not below max %v", y, got.Min.Y, got.Max.Y)
		}
	}
}

func TestNormalizeExpandAndLimits(t *testing.T) {
	n := Normalizer{Limit: FloatLimit}
	c := Rect(-1, 1, -0.5, 0.5)
	got, _ := n.Normalize(c, 2)
	want := Rect(-2, 2, -1, 1)
	if !cornersClose(got, want, 1e-15) {
		t.Fatalf("expand: got %+v, want %+v", got, want)
	}

	small := Normalizer{Limit: Limit(true, 29)}
	got, moved := small.Normalize(Rect(1, 6, -1, 1), 1)
	if !moved {
		t.Fatalf("out of range viewport not reported as moved")
	}
	if got.Max.X > 3.99+1e-12 || got.Min.X < -3.99-1e-12 {
		t.Fatalf("x range %v..%v outside ±3.99", got.Min.X, got.Max.X)
	}
	if w := got.Max.X - got.Min.X; !closeEnough(w, 5, 1e-12) {
		t.Fatalf("translation changed width to %v", w)
	}

	got, _ = small.Normalize(Rect(-20, 20, -1, 1), 1)
	if w := got.Max.X - got.Min.X; !closeEnough(w, 7.98, 1e-12) {
		t.Fatalf("oversized viewport width %v, want 7.98", w)
	}
}

func TestLimit(t *testing.T) {
	tests := []struct {
		integer bool
		shift   int
		want    float64
	}{
		{false, 29, FloatLimit},
		{true, 16, 1023.99},
		{true, 24, 31.99},
		{true, 29, 3.99},
	}
	for _, tt := range tests {
		if got := Limit(tt.integer, tt.shift); got != tt.want {
			t.Fatalf("Limit(%v, %d)=%v, want %v", tt.integer, tt.shift, got, tt.want)
		}
	}
}

func TestSnapAxisAlignment(t *testing.T) {
	c := Rect(-1, 1, -1, 1)
	c.Third.X += 1e-6
	if got := SnapAxisAlignment(c); got.Third.X != -1 {
		t.Fatalf("near-min third corner not snapped: %v", got.Third.X)
	}
	c = Rect(-1, 1, -1, 1)
	c.Third = vec.Vec2{X: 1, Y: 1 - 1e-7}
	if got := SnapAxisAlignment(c); got.Third.Y != 1 {
		t.Fatalf("near-max third corner not snapped: %v", got.Third.Y)
	}
	rotated := sampleViewports["rotated"]
	if got := SnapAxisAlignment(rotated); got != rotated {
		t.Fatalf("genuinely rotated viewport was snapped")
	}
}

func TestAspectSnap(t *testing.T) {
	n := Normalizer{Limit: FloatLimit, Aspect: 1, AspectDrift: DefaultAspectDrift}
	c := Rect(-1.01, 1.01, -1, 1)
	got, _ := n.Normalize(c, 1)
	if cm := ToCenterMag(got, 1); cm.XMag != 1 {
		t.Fatalf("xmag %v not snapped to 1", cm.XMag)
	}
	c = Rect(-1.5, 1.5, -1, 1)
	if got, _ := n.Normalize(c, 1); got != c {
		t.Fatalf("intentional stretch was snapped")
	}
}

func TestCenterMagRoundTrip(t *testing.T) {
	for name, c := range sampleViewports {
		t.Run(name, func(t *testing.T) {
			cm := ToCenterMag(c, 1)
			got := FromCenterMag(cm, 1)
			if !cornersClose(got, c, 1e-9) {
				t.Fatalf("got %+v, want %+v (cm %+v)", got, c, cm)
			}
		})
	}
	cm := ToCenterMag(Rect(-2, 2, -1.5, 1.5), DefaultAspect)
	if cm.Mag != 2/3.0 || cm.XMag != 1 || cm.Rotation != 0 || cm.Skew != 0 {
		t.Fatalf("got %+v", cm)
	}
}

func loadBig(t *testing.T, a *bigfloat.Arena, c Corners) BigCorners {
	t.Helper()
	b, err := AllocCorners(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetFloat64(c); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestNormalizeBigMatchesDouble(t *testing.T) {
	cases := map[string]struct {
		c      Corners
		expand float64
		n      Normalizer
	}{
		"identity":   {sampleViewports["seahorse"], 1, Normalizer{Limit: FloatLimit}},
		"rotated":    {sampleViewports["rotated"], 1, Normalizer{Limit: FloatLimit}},
		"expand":     {sampleViewports["skewed"], 2, Normalizer{Limit: FloatLimit}},
		"degenerate": {Rect(0.25, 0.25, -1, 1), 1, Normalizer{Limit: FloatLimit}},
		"negative":   {Rect(-0.75, -0.75, -1, 1), 1, Normalizer{Limit: FloatLimit}},
		"flat":       {Rect(-1, 1, -0.5, -0.5), 1, Normalizer{Limit: FloatLimit}},
		"translate":  {Rect(1, 6, -1, 1), 1, Normalizer{Limit: 3.99}},
		"shrink":     {Rect(-10, 30, -1, 1), 1, Normalizer{Limit: 3.99}},
		"aspect":     {Rect(-1.01, 1.01, -1, 1), 1, Normalizer{Limit: FloatLimit, Aspect: 1, AspectDrift: DefaultAspectDrift}},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			a := newArena(t, 20)
			b := loadBig(t, a, tt.c)
			live := a.Len()
			movedBig, err := tt.n.NormalizeBig(a, b, tt.expand)
			if err != nil {
				t.Fatal(err)
			}
			if a.Len() != live {
				t.Fatalf("NormalizeBig leaked %d slots", a.Len()-live)
			}
			want, moved := tt.n.Normalize(tt.c, tt.expand)
			if moved != movedBig {
				t.Fatalf("moved: double %v, big %v", moved, movedBig)
			}
			if got := b.Float64(); !cornersClose(got, want, 1e-15) {
				t.Fatalf("big %+v, double %+v", got, want)
			}
		})
	}
}

func TestCenterMagBig(t *testing.T) {
	a := newArena(t, 40)
	for name, c := range sampleViewports {
		t.Run(name, func(t *testing.T) {
			defer a.Restore(a.Save())
			b := loadBig(t, a, c)
			cm, err := AllocCenterMag(a)
			if err != nil {
				t.Fatal(err)
			}
			if err := ToCenterMagBig(a, b, 1, &cm); err != nil {
				t.Fatal(err)
			}
			want := ToCenterMag(c, 1)
			if !closeEnough(bigfloat.Float64(cm.Mag), want.Mag, 1e-12) ||
				!closeEnough(cm.XMag, want.XMag, 1e-12) ||
				math.Abs(cm.Rotation-want.Rotation) > 1e-9 ||
				math.Abs(cm.Skew-want.Skew) > 1e-9 {
				t.Fatalf("big mag=%v xmag=%v rot=%v skew=%v, double %+v",
					bigfloat.Float64(cm.Mag), cm.XMag, cm.Rotation, cm.Skew, want)
			}
			out, err := AllocCorners(a)
			if err != nil {
				t.Fatal(err)
			}
			if err := FromCenterMagBig(a, cm, 1, out); err != nil {
				t.Fatal(err)
			}
			if got := out.Float64(); !cornersClose(got, c, 1e-9) {
				t.Fatalf("round trip %+v, want %+v", got, c)
			}
		})
	}
}

func TestDeepCenterMagBig(t *testing.T) {
	a := newArena(t, 60)
	cm, err := AllocCenterMag(a)
	if err != nil {
		t.Fatal(err)
	}
	for h, s := range map[bigfloat.Handle]string{
		cm.Center.X: "-1.7497219608062160075000000000000000000000001",
		cm.Center.Y: "0.0000000000000000000000000000000000000000001",
		cm.Mag:      "1e40",
	} {
		if _, err := bigfloat.SetString(h, s); err != nil {
			t.Fatal(err)
		}
	}
	c, err := AllocCorners(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := FromCenterMagBig(a, cm, 0.75, c); err != nil {
		t.Fatal(err)
	}
	back, err := AllocCenterMag(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := ToCenterMagBig(a, c, 0.75, &back); err != nil {
		t.Fatal(err)
	}
	if got := bigfloat.Float64(back.Mag); !closeEnough(got, 1e40, 1e-20) {
		t.Fatalf("mag %v, want 1e40", got)
	}
	if got := bigfloat.Text(back.Center.X, 45); got != bigfloat.Text(cm.Center.X, 45) {
		t.Fatalf("center %s, want %s", got, bigfloat.Text(cm.Center.X, 45))
	}
}
