package mandel

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/png"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxMessageSize bounds a websocket message. A tile travels as PNG inside
// one JSON message.
const MaxMessageSize = 32 << 20

// TileRequest is sent by the server to a worker.
type TileRequest struct {
	Seq  uint64 `json:"seq"`
	Job  Job    `json:"job"`
	Tile Tile   `json:"tile"`
}

// TileResponse answers the TileRequest with the same Seq. Either PNG or
// Error is set.
type TileResponse struct {
	Seq   uint64 `json:"seq"`
	PNG   []byte `json:"png,omitempty"`
	Error string `json:"error,omitempty"`
}

// RemoteError is a tile failure reported by the worker. The connection
// stays usable.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return "worker: " + e.Msg }

// RemoteRenderer implements Renderer over a websocket connection to a
// worker running ServeRenderer. Calls are serialized.
type RemoteRenderer struct {
	conn *websocket.Conn

	m   sync.Mutex
	seq uint64
}

var _ Renderer = (*RemoteRenderer)(nil)

func NewRemoteRenderer(c *websocket.Conn) *RemoteRenderer {
	c.SetReadLimit(MaxMessageSize)
	return &RemoteRenderer{conn: c}
}

func (r *RemoteRenderer) RenderTile(ctx context.Context, job Job, tile Tile) (*image.RGBA, error) {
	r.m.Lock()
	defer r.m.Unlock()

	r.seq++
	req := TileRequest{Seq: r.seq, Job: job, Tile: tile}
	if err := wsjson.Write(ctx, r.conn, req); err != nil {
		return nil, errors.Wrap(err, "send tile request")
	}
	var resp TileResponse
	if err := wsjson.Read(ctx, r.conn, &resp); err != nil {
		return nil, errors.Wrap(err, "read tile response")
	}
	if resp.Seq != req.Seq {
		return nil, errors.Errorf("tile response %d for request %d", resp.Seq, req.Seq)
	}
	if resp.Error != "" {
		return nil, &RemoteError{Msg: resp.Error}
	}
	return DecodeTile(resp.PNG, tile)
}

// ServeRenderer answers tile requests arriving on c with r until the
// connection closes or ctx is done. A normal closure returns nil.
func ServeRenderer(ctx context.Context, c *websocket.Conn, r Renderer, log logrus.FieldLogger) error {
	c.SetReadLimit(MaxMessageSize)
	for {
		var req TileRequest
		if err := wsjson.Read(ctx, c, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return errors.Wrap(err, "read tile request")
		}

		resp := TileResponse{Seq: req.Seq}
		img, err := r.RenderTile(ctx, req.Job, req.Tile)
		if err == nil {
			resp.PNG, err = EncodeTile(img)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithFields(logrus.Fields{"job": req.Job.ID, "tile": req.Tile.Rect()}).WithError(err).Warn("tile failed")
			resp.Error = err.Error()
		}
		if err := wsjson.Write(ctx, c, resp); err != nil {
			return errors.Wrap(err, "send tile response")
		}
	}
}

func EncodeTile(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode tile")
	}
	return buf.Bytes(), nil
}

// DecodeTile decodes a PNG tile and moves it to the tile's place in the
// frame.
func DecodeTile(b []byte, tile Tile) (*image.RGBA, error) {
	src, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "decode tile")
	}
	if sz := src.Bounds().Size(); sz.X != tile.W || sz.Y != tile.H {
		return nil, errors.Errorf("tile is %v, want %dx%d", sz, tile.W, tile.H)
	}
	dst := image.NewRGBA(tile.Rect())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst, nil
}
