package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	mandel "github.com/marben/deepzoom"
	"github.com/marben/deepzoom/internal/config"
	"github.com/marben/deepzoom/internal/render"
	"github.com/sirupsen/logrus"
)

func TestWorkServesTiles(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load(config.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	job := mandel.NewJob("center-mag=-0.5/0/1 maxiter=100", 40, 30)
	got := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			got <- err
			return
		}
		defer c.CloseNow()
		remote := mandel.NewRemoteRenderer(c)
		_, err = remote.RenderTile(r.Context(), job, mandel.Tile{X0: 8, Y0: 8, W: 16, H: 16})
		got <- err
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if err := work(ctx, url, 0, render.New(cfg, log), log); err == nil {
		t.Fatalf("closed connection not reported")
	}
	if err := <-got; err != nil {
		t.Fatal(err)
	}
}

func TestWorkStopsOnCancel(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := work(ctx, "ws://127.0.0.1:1/ws", time.Second, nil, log); err != nil {
		t.Fatalf("got %v, want nil after cancel", err)
	}
}
