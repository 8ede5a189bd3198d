// Package params reads and writes fractal parameter sets: the one line
// key=value form ("type=mandel center-mag=-0.5/0/1 maxiter=500") and YAML
// files holding named sets in the same keys.
package params

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrMalformed = errors.New("malformed parameter")

// Entry is one parameter set. Numeric lists are kept as text, separated by
// '/', so that coordinates longer than a double survive until the precision
// is known.
type Entry struct {
	Type         string  `yaml:"type,omitempty"`
	CenterMag    string  `yaml:"center-mag,omitempty"`
	Corners      string  `yaml:"corners,omitempty"`
	Params       string  `yaml:"params,omitempty"`
	MaxIter      int     `yaml:"maxiter,omitempty"`
	Bailout      float64 `yaml:"bailout,omitempty"`
	BailoutTest  string  `yaml:"bailoutest,omitempty"`
	Perturbation string  `yaml:"perturbation,omitempty"`
	Tolerance    float64 `yaml:"tolerance,omitempty"`
}

// Parse reads whitespace separated key=value pairs. Text after ';' is a
// comment.
func Parse(line string) (Entry, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	var e Entry
	for _, tok := range strings.Fields(line) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok || val == "" {
			return Entry{}, errors.Wrapf(ErrMalformed, "%q", tok)
		}
		if err := e.set(strings.ToLower(key), val); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

func (e *Entry) set(key, val string) error {
	var err error
	switch key {
	case "type":
		e.Type = val
	case "center-mag":
		e.CenterMag = val
	case "corners":
		e.Corners = val
	case "params":
		e.Params = val
	case "maxiter":
		e.MaxIter, err = strconv.Atoi(val)
	case "bailout":
		e.Bailout, err = strconv.ParseFloat(val, 64)
	case "bailoutest":
		e.BailoutTest = val
	case "perturbation":
		e.Perturbation = val
	case "tolerance":
		e.Tolerance, err = strconv.ParseFloat(val, 64)
	default:
		return errors.Wrapf(ErrMalformed, "unknown key %q", key)
	}
	if err != nil {
		return errors.Wrapf(ErrMalformed, "%s=%s", key, val)
	}
	return nil
}

// String formats e as one line that Parse reads back.
func (e Entry) String() string {
	var kv []string
	add := func(k, v string) {
		if v != "" {
			kv = append(kv, k+"="+v)
		}
	}
	add("type", e.Type)
	add("center-mag", e.CenterMag)
	add("corners", e.Corners)
	add("params", e.Params)
	if e.MaxIter != 0 {
		add("maxiter", strconv.Itoa(e.MaxIter))
	}
	if e.Bailout != 0 {
		add("bailout", strconv.FormatFloat(e.Bailout, 'g', -1, 64))
	}
	add("bailoutest", e.BailoutTest)
	add("perturbation", e.Perturbation)
	if e.Tolerance != 0 {
		add("tolerance", strconv.FormatFloat(e.Tolerance, 'g', -1, 64))
	}
	return strings.Join(kv, " ")
}

// split breaks a numeric list at '/' or ','. Every element must look like
// a number.
func split(key, s string) ([]string, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == ',' })
	for _, f := range fields {
		if !LooksLikeBigFloat(f) {
			return nil, errors.Wrapf(ErrMalformed, "%s: %q is not a number", key, f)
		}
	}
	return fields, nil
}

// LooksLikeBigFloat reports whether s is made of digits, at most one
// decimal point, one exponent marker (e or g) and two signs.
func LooksLikeBigFloat(s string) bool {
	if s == "" {
		return false
	}
	var dots, exps, signs int
	for _, c := range s {
		switch {
		case c == '-' || c == '+':
			signs++
		case c == '.':
			dots++
		case c == 'e' || c == 'E' || c == 'g' || c == 'G':
			exps++
		case c < '0' || c > '9':
			return false
		}
	}
	return dots <= 1 && signs <= 2 && exps <= 1
}

// number normalizes the 'g' exponent marker some parameter files use.
func number(s string) string {
	return strings.NewReplacer("g", "e", "G", "e").Replace(s)
}

func parseFloat(key, s string) (float64, error) {
	f, err := strconv.ParseFloat(number(s), 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformed, "%s: %q", key, s)
	}
	return f, nil
}
