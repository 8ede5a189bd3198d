package main

import (
	"context"
	"image"
	"image/draw"
	"sync"

	mandel "github.com/marben/deepzoom"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// maxTileFailures is the number of tiles workers may report as failed
// before the job is abandoned.
const maxTileFailures = 3

var errJobReplaced = errors.New("job replaced")

// imgWorkScheduler hands the tiles of one job to connected renderers and
// assembles the frame.
type imgWorkScheduler struct {
	job mandel.Job
	img *image.RGBA
	log logrus.FieldLogger

	ctx       context.Context
	ctxCancel context.CancelCauseFunc

	workers        int
	totalPixels    int
	finishedPixels int
	failures       int

	unstarted map[mandel.Tile]struct{}
	inProcess map[mandel.Tile]struct{}
	m         sync.Mutex
}

func newImgWorkScheduler(job mandel.Job, tileSize int, log logrus.FieldLogger) *imgWorkScheduler {
	img := image.NewRGBA(job.Bounds())
	allTiles := make(map[mandel.Tile]struct{})
	for _, t := range mandel.SplitRect(img.Bounds(), tileSize, tileSize) {
		allTiles[t] = struct{}{}
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &imgWorkScheduler{
		job:         job,
		img:         img,
		log:         log.WithField("job", job.ID),
		unstarted:   allTiles,
		inProcess:   make(map[mandel.Tile]struct{}),
		totalPixels: job.Width * job.Height,
		ctx:         ctx,
		ctxCancel:   cancel,
	}
}

func (iws *imgWorkScheduler) popTile() (tile mandel.Tile, found bool) {
	iws.m.Lock()
	defer iws.m.Unlock()

	if iws.ctx.Err() != nil {
		return mandel.Tile{}, false
	}

	// Get unstarted tile
	for tile = range iws.unstarted {
		delete(iws.unstarted, tile)

		// Move popped tile to currently processed tiles
		iws.inProcess[tile] = struct{}{}
		return tile, true
	}

	// If there is no unstarted tile, we work again on a started one
	for tile = range iws.inProcess {
		return tile, true
	}

	return mandel.Tile{}, false
}

// GetImage implements mandel.ImgProvider.
func (iws *imgWorkScheduler) GetImage(ctx context.Context) (*image.RGBA, error) {
	select {
	case <-iws.ctx.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if iws.failed() {
		return nil, iws.err()
	}
	return iws.snapshot(), nil
}

// snapshot copies the frame as rendered so far.
func (iws *imgWorkScheduler) snapshot() *image.RGBA {
	iws.m.Lock()
	defer iws.m.Unlock()
	img := image.NewRGBA(iws.img.Bounds())
	copy(img.Pix, iws.img.Pix)
	return img
}

// done reports whether the job finished, failed or was replaced.
func (iws *imgWorkScheduler) done() <-chan struct{} {
	return iws.ctx.Done()
}

func (iws *imgWorkScheduler) complete() bool {
	return errors.Is(iws.err(), context.Canceled)
}

// failed reports whether the job was abandoned or replaced.
func (iws *imgWorkScheduler) failed() bool {
	return iws.ctx.Err() != nil && !iws.complete()
}

// err is nil while the job runs and context.Canceled once it completed.
func (iws *imgWorkScheduler) err() error {
	return context.Cause(iws.ctx)
}

func (iws *imgWorkScheduler) stop(cause error) {
	iws.ctxCancel(cause)
}

func (iws *imgWorkScheduler) finished() float32 {
	iws.m.Lock()
	defer iws.m.Unlock()
	return float32(iws.finishedPixels) / float32(iws.totalPixels)
}

func (iws *imgWorkScheduler) activeWorkers() int {
	iws.m.Lock()
	defer iws.m.Unlock()
	return iws.workers
}

func (iws *imgWorkScheduler) tileFinished(tile mandel.Tile, tileImg *image.RGBA) {
	iws.m.Lock()
	defer iws.m.Unlock()

	if _, found := iws.inProcess[tile]; !found {
		// another worker delivered it first
		return
	}
	draw.Draw(iws.img, tileImg.Bounds(), tileImg, tileImg.Bounds().Min, draw.Src)
	iws.finishedPixels += tile.W * tile.H
	delete(iws.inProcess, tile)

	iws.log.WithField("finished", float32(iws.finishedPixels)/float32(iws.totalPixels)).Debug("tile done")

	if len(iws.unstarted) == 0 && len(iws.inProcess) == 0 {
		iws.log.Info("frame complete")
		iws.ctxCancel(nil)
	}
}

// tileFailed puts a tile a worker could not render back in the queue.
func (iws *imgWorkScheduler) tileFailed(tile mandel.Tile, err error) {
	iws.m.Lock()
	defer iws.m.Unlock()

	if _, found := iws.inProcess[tile]; found {
		delete(iws.inProcess, tile)
		iws.unstarted[tile] = struct{}{}
	}
	iws.failures++
	if iws.failures >= maxTileFailures {
		iws.log.WithError(err).Error("job abandoned")
		iws.ctxCancel(errors.Wrapf(err, "job %s: %d failed tiles", iws.job.ID, iws.failures))
	}
}

func (iws *imgWorkScheduler) incActiveWorker() {
	iws.m.Lock()
	iws.workers++
	w := iws.workers
	iws.m.Unlock()

	iws.log.WithField("workers", w).Info("worker joined")
}

func (iws *imgWorkScheduler) decActiveWorkers() {
	iws.m.Lock()
	iws.workers--
	w := iws.workers
	iws.m.Unlock()

	iws.log.WithField("workers", w).Info("worker left")
}

// render renders unfinished tiles on the provided Renderer until none are
// left. It can be called from multiple goroutines in parallel. A tile in
// flight when the job ends is finished and discarded, since cancelling a
// websocket read closes the connection. An error means the renderer is
// unusable; tiles it reported failed are requeued.
func (iws *imgWorkScheduler) render(ctx context.Context, renderer mandel.Renderer) error {
	iws.incActiveWorker()
	defer iws.decActiveWorkers()

	for {
		tile, found := iws.popTile()
		if !found {
			return nil
		}
		tileImg, err := renderer.RenderTile(ctx, iws.job, tile)
		var remote *mandel.RemoteError
		switch {
		case err == nil:
			iws.tileFinished(tile, tileImg)
		case errors.As(err, &remote):
			iws.log.WithField("tile", tile.Rect()).WithError(err).Warn("tile failed")
			iws.tileFailed(tile, err)
		default:
			return errors.Wrapf(err, "render tile %v", tile.Rect())
		}
	}
}
