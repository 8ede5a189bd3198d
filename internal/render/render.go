// Package render implements mandel.Renderer on top of the engine. A job's
// frame is initialized once, on its first tile, and kept while tiles of the
// same job keep arriving; for deep zooms that reuses the reference orbit.
package render

import (
	"context"
	"image"
	"sync"
	"time"

	mandel "github.com/marben/deepzoom"
	"github.com/marben/deepzoom/internal/config"
	"github.com/marben/deepzoom/internal/engine"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/marben/deepzoom/internal/params"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultCacheSize is the number of initialized frames kept.
const DefaultCacheSize = 4

type Renderer struct {
	cfg config.Config
	log logrus.FieldLogger

	// OnTileRender, when set, is called before each tile.
	OnTileRender func(job mandel.Job, tile mandel.Tile)

	m      sync.Mutex
	frames map[string]*frame
	order  []string
	size   int
}

var _ mandel.Renderer = (*Renderer)(nil)

type frame struct {
	once sync.Once
	err  error

	// m serializes renders of one frame; they share its arena.
	m      sync.Mutex
	rc     *engine.RenderContext
	closed bool
}

func New(cfg config.Config, log logrus.FieldLogger) *Renderer {
	return &Renderer{
		cfg:    cfg,
		log:    log,
		frames: make(map[string]*frame),
		size:   DefaultCacheSize,
	}
}

// Context builds and initializes the frame job describes.
func Context(cfg config.Config, job mandel.Job, log logrus.FieldLogger) (*engine.RenderContext, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	e, err := params.Parse(job.Params)
	if err != nil {
		return nil, errors.Wrapf(err, "job %s", job.ID)
	}
	typ := fractal.Mandel
	if e.Type != "" {
		if typ, err = fractal.ParseType(e.Type); err != nil {
			return nil, err
		}
	}
	rc, err := engine.NewRenderContext(typ, job.Width, job.Height)
	if err != nil {
		return nil, err
	}
	cfg.Apply(rc)
	rc.Log = log.WithField("job", job.ID)
	if err := e.Apply(rc); err != nil {
		return nil, errors.Wrapf(err, "job %s", job.ID)
	}
	if err := rc.Init(); err != nil {
		return nil, errors.Wrapf(err, "job %s", job.ID)
	}
	return rc, nil
}

// frame returns the cached frame of job, initializing it on first use.
func (r *Renderer) frame(job mandel.Job) (*frame, error) {
	r.m.Lock()
	f, ok := r.frames[job.ID]
	if !ok {
		f = &frame{}
		r.frames[job.ID] = f
		r.order = append(r.order, job.ID)
		for len(r.order) > r.size {
			r.evict(r.order[0])
		}
	}
	r.m.Unlock()

	f.once.Do(func() {
		start := time.Now()
		f.rc, f.err = Context(r.cfg, job, r.log)
		if f.err != nil {
			return
		}
		fields := logrus.Fields{
			"job":          job.ID,
			"math":         f.rc.Math,
			"perturbation": f.rc.UsePerturbation,
			"tries":        f.rc.Tries,
			"took":         time.Since(start),
		}
		if f.rc.Math == engine.BigFloat {
			fields["digits"] = f.rc.Arena.Decimals()
		}
		r.log.WithFields(fields).Info("frame initialized")
	})
	if f.err != nil {
		r.drop(job.ID, f)
		return nil, f.err
	}
	return f, nil
}

// evict forgets id. r.m is held.
func (r *Renderer) evict(id string) {
	f := r.frames[id]
	delete(r.frames, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if f == nil {
		return
	}
	go func() {
		f.once.Do(func() {})
		f.m.Lock()
		defer f.m.Unlock()
		f.closed = true
		if f.rc != nil && f.rc.Pert != nil {
			f.rc.Pert.Cleanup()
		}
	}()
}

// drop forgets a frame that failed to initialize so the job can be retried.
func (r *Renderer) drop(id string, f *frame) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.frames[id] == f {
		r.evict(id)
	}
}

func (r *Renderer) RenderTile(ctx context.Context, job mandel.Job, tile mandel.Tile) (*image.RGBA, error) {
	if r.OnTileRender != nil {
		r.OnTileRender(job, tile)
	}
	var f *frame
	for {
		var err error
		if f, err = r.frame(job); err != nil {
			return nil, err
		}
		f.m.Lock()
		if !f.closed {
			break
		}
		// evicted between lookup and lock
		f.m.Unlock()
	}
	defer f.m.Unlock()

	img := image.NewRGBA(tile.Rect())
	pal := NewPalette(f.rc.MaxIter)
	err := f.rc.Render(ctx, img.Bounds(), func(x, y int, res fractal.Result) {
		img.SetRGBA(x, y, pal.Color(res))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "render tile %v", tile.Rect())
	}
	return img, nil
}

// RenderFrame renders the whole of job on the local machine.
func (r *Renderer) RenderFrame(ctx context.Context, job mandel.Job) (*image.RGBA, error) {
	return r.RenderTile(ctx, job, mandel.TileOf(job.Bounds()))
}
