package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	mandel "github.com/marben/deepzoom"
	"github.com/marben/deepzoom/internal/config"
	"github.com/marben/deepzoom/internal/render"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load(config.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Workers = 2
	cfg.Width, cfg.Height = 48, 36
	cfg.Server.TileSize = 16
	return cfg
}

// fakeRenderer paints pixels from their coordinates and fails the first
// failN tiles.
type fakeRenderer struct {
	m     sync.Mutex
	failN int
	calls int
}

func (f *fakeRenderer) RenderTile(_ context.Context, _ mandel.Job, tile mandel.Tile) (*image.RGBA, error) {
	f.m.Lock()
	f.calls++
	fail := f.calls <= f.failN
	f.m.Unlock()
	if fail {
		return nil, &mandel.RemoteError{Msg: "out of memory"}
	}
	img := image.NewRGBA(tile.Rect())
	for y := tile.Y0; y < tile.Y0+tile.H; y++ {
		for x := tile.X0; x < tile.X0+tile.W; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x), uint8(y), 1, 255})
		}
	}
	return img, nil
}

func TestSchedulerAssemblesFrame(t *testing.T) {
	job := mandel.NewJob("center-mag=0/0/1", 100, 70)
	iws := newImgWorkScheduler(job, 32, quietLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := iws.render(ctx, &fakeRenderer{}); err != nil {
				t.Error(err)
			}
		}()
	}
	img, err := iws.GetImage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if f := iws.finished(); f != 1 {
		t.Fatalf("got finished %v, want 1", f)
	}
	for _, p := range []image.Point{{0, 0}, {99, 69}, {64, 33}} {
		if got, want := img.RGBAAt(p.X, p.Y), (color.RGBA{uint8(p.X), uint8(p.Y), 1, 255}); got != want {
			t.Fatalf("pixel %v: got %v, want %v", p, got, want)
		}
	}
}

func TestSchedulerRetriesFailedTiles(t *testing.T) {
	ctx := context.Background()
	job := mandel.NewJob("center-mag=0/0/1", 40, 40)

	iws := newImgWorkScheduler(job, 16, quietLogger())
	if err := iws.render(ctx, &fakeRenderer{failN: maxTileFailures - 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := iws.GetImage(ctx); err != nil {
		t.Fatalf("got %v after %d failures", err, maxTileFailures-1)
	}

	iws = newImgWorkScheduler(job, 16, quietLogger())
	if err := iws.render(ctx, &fakeRenderer{failN: 1000}); err != nil {
		t.Fatal(err)
	}
	if _, err := iws.GetImage(ctx); err == nil || !iws.failed() {
		t.Fatalf("job with failing tiles completed")
	}
}

func TestGetImageCancelled(t *testing.T) {
	iws := newImgWorkScheduler(mandel.NewJob("maxiter=5", 8, 8), 4, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := iws.GetImage(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestServerWithWorker(t *testing.T) {
	cfg := testConfig(t)
	log := quietLogger()
	s := newServer(cfg, log)
	if _, err := s.submit("center-mag=-0.75/0.1/20 maxiter=200", cfg.Width, cfg.Height); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(webServer(s, "").Handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.CloseNow()
	go mandel.ServeRenderer(ctx, c, render.New(cfg, log), log)

	resp, err := http.Get(srv.URL + "/image.png")
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != cfg.Width || b.Dy() != cfg.Height {
		t.Fatalf("got image %v", b)
	}

	st := getStatus(t, srv.URL)
	if !st.Complete || st.Finished != 1 {
		t.Fatalf("got status %+v", st)
	}

	body, _ := json.Marshal(JobRequest{Landmark: "elephant-valley", Width: 32, Height: 24})
	resp, err = http.Post(srv.URL+"/job", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var job mandel.Job
	err = json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == st.Job.ID || job.Width != 32 {
		t.Fatalf("got job %+v", job)
	}

	// the connected worker moves on to the new job
	resp, err = http.Get(srv.URL + "/image.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Job-Id") != job.ID {
		t.Fatalf("got %s for job %s", resp.Status, resp.Header.Get("X-Job-Id"))
	}

	resp, err = http.Post(srv.URL+"/job", "application/json", strings.NewReader(`{"params":"color=3"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad params: got %s", resp.Status)
	}
}

func getStatus(t *testing.T, url string) Status {
	t.Helper()
	resp, err := http.Get(url + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	return st
}
