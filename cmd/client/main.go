// The client is a remote worker: it connects to the deep zoom server and
// renders the tiles the server asks for until it is stopped.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	mandel "github.com/marben/deepzoom"
	"github.com/marben/deepzoom/internal/config"
	"github.com/marben/deepzoom/internal/render"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatalf("run: %+v", err)
	}
}

func run() error {
	v := config.New()
	var (
		server string
		retry  time.Duration
	)
	cmd := &cobra.Command{
		Use:           "deepzoom-client",
		Short:         "Render tiles for a deep zoom server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := config.FromCommand(cmd, v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			renderer := render.New(cfg, log)
			renderer.OnTileRender = func(job mandel.Job, tile mandel.Tile) {
				log.WithFields(logrus.Fields{"job": job.ID, "tile": tile.Rect()}).Debug("rendering tile")
			}
			return work(ctx, server, retry, renderer, log)
		},
	}
	config.AddFlags(cmd, v)
	cmd.Flags().StringVar(&server, "server", "ws://localhost:8080/ws", "server websocket endpoint")
	cmd.Flags().DurationVar(&retry, "retry", 2*time.Second, "pause before reconnecting, 0 exits on disconnect")
	return cmd.ExecuteContext(context.Background())
}

// work keeps a connection to the server and serves tiles over it,
// reconnecting after retry when the connection drops.
func work(ctx context.Context, url string, retry time.Duration, r mandel.Renderer, log logrus.FieldLogger) error {
	for {
		err := serveOnce(ctx, url, r, log)
		if ctx.Err() != nil {
			return nil
		}
		if retry == 0 {
			return err
		}
		log.WithError(err).WithField("retry", retry).Warn("disconnected")
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return nil
		}
	}
}

func serveOnce(ctx context.Context, url string, r mandel.Renderer, log logrus.FieldLogger) error {
	log.WithField("server", url).Info("connecting")
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer c.CloseNow()

	log.Info("connected, waiting for tiles")
	if err := mandel.ServeRenderer(ctx, c, r, log); err != nil {
		return err
	}
	return errors.New("server closed the connection")
}
