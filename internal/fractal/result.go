package fractal

// Result is the outcome of iterating one pixel.
type Result struct {
	// Iter is the number of iterations performed.
	Iter int
	// Escaped is set when the bailout test fired before the iteration limit.
	Escaped bool
	// Glitched is set when a perturbation result could not be trusted and
	// no later reference point repaired it.
	Glitched bool
	// Z is the last iterate.
	Z complex128
}

// PlotFunc receives finished pixels. Renderers call it from several
// goroutines at once, but never twice for the same pixel of a frame.
type PlotFunc func(x, y int, r Result)

// Iterate runs the escape-time loop from the first iterate z.
func Iterate(k Kernel, z, c complex128, maxIter int, limit float64, test BailoutTest) Result {
	for iter := 0; iter < maxIter; {
		z = k.Step(z, c)
		iter++
		if test.Escaped(z, limit) {
			return Result{Iter: iter, Escaped: true, Z: z}
		}
	}
	return Result{Iter: maxIter, Z: z}
}
