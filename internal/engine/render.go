package engine

import (
	"context"
	"image"

	"github.com/marben/deepzoom/internal/bigfloat"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// cancelCheck is the number of pixels between cancellation checks.
const cancelCheck = 1000

// Render calculates the pixels of rect, clipped to the frame, and hands
// each to plot. Init must have succeeded. Rows are shared between
// Workers goroutines; BigFloat frames give every goroutine its own arena.
func (rc *RenderContext) Render(ctx context.Context, rect image.Rectangle, plot fractal.PlotFunc) error {
	rect = rect.Intersect(image.Rect(0, 0, rc.XDots, rc.YDots))
	if rect.Empty() {
		return nil
	}
	if rc.UsePerturbation {
		return rc.Pert.CalculateFrame(ctx, rect, plot)
	}
	if (rc.Math == Double && len(rc.Grid.X0) != rc.XDots) ||
		(rc.Math == BigFloat && !rc.BigDeltas.Y2.Valid()) {
		return errors.New("engine: Render before Init")
	}

	workers := min(max(1, rc.Workers), rect.Dy())
	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			pixel := rc.Pixel
			if rc.Math == BigFloat {
				bw, err := rc.NewBigWorker()
				if err != nil {
					return err
				}
				pixel = bw.Pixel
			}
			n := 0
			for y := rect.Min.Y + w; y < rect.Max.Y; y += workers {
				for x := rect.Min.X; x < rect.Max.X; x++ {
					if n%cancelCheck == 0 {
						if err := ctx.Err(); err != nil {
							return err
						}
					}
					n++
					r, err := pixel(x, y)
					if err != nil {
						return err
					}
					plot(x, y, r)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Pixel iterates pixel (col, row) of a double precision frame.
func (rc *RenderContext) Pixel(col, row int) (fractal.Result, error) {
	z, c := rc.Kernel.Start(rc.Grid.At(col, row))
	return fractal.Iterate(rc.Kernel, z, c, rc.MaxIter, rc.Bailout, rc.BailoutTest), nil
}

// BigWorker iterates pixels of a BigFloat frame in an arena of its own, so
// that workers never share slots.
type BigWorker struct {
	kernel      fractal.BigKernel
	maxIter     int
	bailout     float64
	test        fractal.BailoutTest
	arena       *bigfloat.Arena
	xmin, ymax  bigfloat.Handle
	d           BigDeltas
	params      []bigfloat.Handle
	pixel, z, c fractal.BigComplex
	t           bigfloat.Handle
}

// NewBigWorker copies the frame's corners, steps and parameters into a new
// arena at the frame's precision.
func (rc *RenderContext) NewBigWorker() (*BigWorker, error) {
	k, ok := rc.Kernel.(fractal.BigKernel)
	if !ok {
		return nil, errors.Errorf("engine: %s has no BigFloat kernel", rc.Type)
	}
	a := bigfloat.NewArena(0)
	if err := a.InitPrecision(rc.Arena.Decimals()); err != nil {
		return nil, err
	}
	src := []bigfloat.Handle{rc.Big.Min.X, rc.Big.Max.Y, rc.BigDeltas.X, rc.BigDeltas.Y, rc.BigDeltas.X2, rc.BigDeltas.Y2}
	src = append(src, rc.BigParams...)
	hs, err := a.AllocN(len(src) + 7)
	if err != nil {
		return nil, errors.Wrap(err, "big worker")
	}
	for i, h := range src {
		bigfloat.SetBig(hs[i], bigfloat.ToBig(h))
	}
	n := len(src)
	return &BigWorker{
		kernel:  k,
		maxIter: rc.MaxIter,
		bailout: rc.Bailout,
		test:    rc.BailoutTest,
		arena:   a,
		xmin:    hs[0],
		ymax:    hs[1],
		d:       BigDeltas{X: hs[2], Y: hs[3], X2: hs[4], Y2: hs[5]},
		params:  hs[6:n],
		pixel:   fractal.BigComplex{Re: hs[n], Im: hs[n+1]},
		z:       fractal.BigComplex{Re: hs[n+2], Im: hs[n+3]},
		c:       fractal.BigComplex{Re: hs[n+4], Im: hs[n+5]},
		t:       hs[n+6],
	}, nil
}

// Pixel iterates pixel (col, row) at full precision. The bailout test runs
// on the rounded iterate.
func (w *BigWorker) Pixel(col, row int) (fractal.Result, error) {
	x, y := int64(col), int64(row)
	// x = xmin + col*dx + row*dx2, y = ymax - row*dy - col*dy2
	bigfloat.MulInt(w.pixel.Re, w.d.X, x)
	bigfloat.Add(w.pixel.Re, w.pixel.Re, w.xmin)
	bigfloat.Add(w.pixel.Re, w.pixel.Re, bigfloat.MulInt(w.t, w.d.X2, y))
	bigfloat.MulInt(w.pixel.Im, w.d.Y, y)
	bigfloat.Sub(w.pixel.Im, w.ymax, w.pixel.Im)
	bigfloat.Sub(w.pixel.Im, w.pixel.Im, bigfloat.MulInt(w.t, w.d.Y2, x))

	if err := w.kernel.StartBig(w.arena, w.z, w.c, w.pixel, w.params); err != nil {
		return fractal.Result{}, err
	}
	var z complex128
	for iter := 0; iter < w.maxIter; {
		if err := w.kernel.StepBig(w.arena, w.z, w.c); err != nil {
			return fractal.Result{}, err
		}
		iter++
		z = w.z.Complex128()
		if w.test.Escaped(z, w.bailout) {
			return fractal.Result{Iter: iter, Escaped: true, Z: z}, nil
		}
	}
	return fractal.Result{Iter: w.maxIter, Z: z}, nil
}
