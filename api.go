package mandel

import (
	"context"
	"image"
)

// ImgProvider hands out the finished frame. GetImage blocks until every
// tile is rendered or ctx is done.
type ImgProvider interface {
	GetImage(ctx context.Context) (*image.RGBA, error)
}

// Renderer renders one tile of a job. The returned image is in global
// frame coordinates: its bounds equal tile.Rect().
type Renderer interface {
	RenderTile(ctx context.Context, job Job, tile Tile) (*image.RGBA, error)
}
