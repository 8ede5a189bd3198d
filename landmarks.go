package mandel

import (
	"sort"

	"github.com/pkg/errors"
)

// Landmark is a named place worth rendering.
type Landmark struct {
	Name        string
	Description string
	Params      string
}

// Classic regions / landmarks in the Mandelbrot set. The last two are
// deeper than a double can address.
var Landmarks = []Landmark{
	{"seahorse-valley", "dense filaments and repeating seahorse curls",
		"type=mandel center-mag=-0.75/0.1/20 maxiter=1000"},
	{"elephant-valley", "large bulb with trunk-like tendrils",
		"type=mandel center-mag=-1.8/-0.06/25 maxiter=1000"},
	{"spiral-minibrot", "small Mandelbrot copy with tight spiral arms",
		"type=mandel center-mag=-0.74275/0.13175/1333.333333 maxiter=2000"},
	{"triple-spiral", "threefold symmetric spiral structure",
		"type=mandel center-mag=-0.7465/0.0965/666.6666667 maxiter=2000"},
	{"dragon-valley", "deep, highly detailed spiral filaments",
		"type=mandel center-mag=-0.7375/0.1825/400 maxiter=1500"},
	{"mini-spiral-minibrot", "self-similar Mandelbrot copy inside a spiral arm",
		"type=mandel center-mag=-1.73825/-0.02275/1333.333333 maxiter=2000"},
	{"deep-minibrot", "minibrot on the needle, past double precision",
		"type=mandel center-mag=-1.76877851561390137739933/-0.00173889835536638/4e20 maxiter=4000"},
	{"deep-spiral", "double spiral near the seahorse valley at 1e25",
		"type=mandel center-mag=-0.743643887037158704752191506114774/0.131825904205311970493132056385139/1e25 maxiter=8000"},
}

// LookupLandmark returns the landmark called name.
func LookupLandmark(name string) (Landmark, error) {
	for _, l := range Landmarks {
		if l.Name == name {
			return l, nil
		}
	}
	return Landmark{}, errors.Errorf("no landmark %q", name)
}

// LandmarkNames lists the landmark names in order.
func LandmarkNames() []string {
	names := make([]string, len(Landmarks))
	for i, l := range Landmarks {
		names[i] = l.Name
	}
	sort.Strings(names)
	return names
}
