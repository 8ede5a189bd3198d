package perturb

import (
	"context"
	"image"
	"math/rand"
	"sort"

	"github.com/marben/deepzoom/internal/fractal"
	"golang.org/x/sync/errgroup"
)

// cancelCheck is the number of pixels between cancellation checks.
const cancelCheck = 1000

type point struct{ x, y int }

// PrimaryReference returns the reference orbit of the frame center,
// computing it on first use.
func (e *Engine) PrimaryReference() (*Reference, error) {
	e.mu.Lock()
	ref := e.primary
	e.mu.Unlock()
	if ref != nil {
		return ref, nil
	}
	ref, err := e.ComputeReferenceOrbit(0)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.primary == nil {
		e.primary = ref
	}
	ref = e.primary
	e.mu.Unlock()
	return ref, nil
}

// CalculateFrame computes every pixel of rect and hands it to plot. Glitched
// pixels are retried against references picked at random among them until
// few enough remain, MaxReferences is reached or a pass repairs nothing.
// Pixels still glitched are plotted with Glitched set.
//
// On cancellation ctx.Err() is returned; pixels plotted before stay valid.
func (e *Engine) CalculateFrame(ctx context.Context, rect image.Rectangle, plot fractal.PlotFunc) error {
	rect = rect.Intersect(image.Rect(0, 0, e.xdots, e.ydots))
	if rect.Empty() {
		return nil
	}
	ref, err := e.PrimaryReference()
	if err != nil {
		return err
	}

	pending := make([]point, 0, rect.Dx()*rect.Dy())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			pending = append(pending, point{x, y})
		}
	}
	total := len(pending)
	allowed := float64(total) * e.cfg.PercentGlitchTolerance / 100
	rng := rand.New(rand.NewSource(e.cfg.Seed))

	var glitched []PixelState
	for pass := 1; ; pass++ {
		glitched, err = e.sweep(ctx, ref, pending, plot)
		if err != nil {
			return err
		}
		log := e.log.WithField("pass", pass).WithField("glitched", len(glitched))
		if float64(len(glitched)) <= allowed {
			log.Debug("frame done")
			break
		}
		if pass >= e.cfg.MaxReferences {
			log.Debug("reference limit reached")
			break
		}
		if pass > 1 && len(glitched) == len(pending) {
			log.Debug("no progress")
			break
		}
		pick := glitched[rng.Intn(len(glitched))]
		ref, err = e.ComputeReferenceOrbit(e.Offset(pick.X, pick.Y))
		if err != nil {
			return err
		}
		pending = pending[:0]
		for _, g := range glitched {
			pending = append(pending, point{g.X, g.Y})
		}
	}

	for _, p := range glitched {
		plot(p.X, p.Y, p.result())
	}
	e.mu.Lock()
	e.stats.Pixels += total
	e.stats.Glitched += len(glitched)
	e.mu.Unlock()
	return nil
}

// sweep iterates pts against ref in parallel. Finished pixels are plotted;
// glitched ones are returned ordered by row and column.
func (e *Engine) sweep(ctx context.Context, ref *Reference, pts []point, plot fractal.PlotFunc) ([]PixelState, error) {
	workers := min(e.cfg.Workers, max(1, len(pts)))
	lists := make([][]PixelState, workers)
	chunk := (len(pts) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, len(pts))
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			var local []PixelState
			for i, pt := range pts[lo:hi] {
				if i%cancelCheck == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				p := e.CalculatePoint(ref, pt.x, pt.y)
				if p.Glitched {
					local = append(local, p)
					continue
				}
				plot(p.X, p.Y, p.result())
			}
			lists[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var glitched []PixelState
	for _, l := range lists {
		glitched = append(glitched, l...)
	}
	sort.Slice(glitched, func(i, j int) bool {
		if glitched[i].Y != glitched[j].Y {
			return glitched[i].Y < glitched[j].Y
		}
		return glitched[i].X < glitched[j].X
	})
	return glitched, nil
}
