// Package mandel holds the contracts shared by the deep zoom server, its
// remote workers and the command line client: jobs, tiles, the renderer and
// image provider interfaces and the websocket messages carrying them.
package mandel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// Job is one frame to render. Params is a parameter line such as
// "type=mandel center-mag=-0.75/0.1/20 maxiter=800"; its coordinates are
// text so that deep zooms travel without losing digits.
type Job struct {
	ID     string `json:"id"`
	Params string `json:"params"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// NewJob returns the job for params at the given size. The id is derived
// from the content, so workers may cache frames by id.
func NewJob(params string, width, height int) Job {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%d\x00%d", params, width, height))
	return Job{ID: hex.EncodeToString(sum[:6]), Params: params, Width: width, Height: height}
}

func (j Job) Validate() error {
	if j.ID == "" {
		return errors.New("job without id")
	}
	if j.Width <= 0 || j.Height <= 0 {
		return errors.Errorf("job %s: frame size %dx%d", j.ID, j.Width, j.Height)
	}
	return nil
}

// Bounds is the rectangle of the whole frame.
func (j Job) Bounds() image.Rectangle {
	return image.Rect(0, 0, j.Width, j.Height)
}

type Tile struct {
	X0, Y0 int // top-left pixel in global image
	W, H   int // tile width & height
}

func TileOf(r image.Rectangle) Tile {
	return Tile{X0: r.Min.X, Y0: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect returns the tile in global image coordinates.
func (t Tile) Rect() image.Rectangle {
	return image.Rect(t.X0, t.Y0, t.X0+t.W, t.Y0+t.H)
}

// SplitRect splits r into tiles of size tileW × tileH.
// Tiles at the right and bottom edges are smaller if r is not divisible.
func SplitRect(r image.Rectangle, tileW, tileH int) []Tile {
	if tileW <= 0 || tileH <= 0 {
		panic("tile dimensions must be positive")
	}

	var tiles []Tile
	for y := r.Min.Y; y < r.Max.Y; y += tileH {
		h := min(tileH, r.Max.Y-y)
		for x := r.Min.X; x < r.Max.X; x += tileW {
			tiles = append(tiles, Tile{X0: x, Y0: y, W: min(tileW, r.Max.X-x), H: h})
		}
	}
	return tiles
}
