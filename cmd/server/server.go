package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mandel "github.com/marben/deepzoom"
	"github.com/marben/deepzoom/internal/config"
	"github.com/marben/deepzoom/internal/params"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// main is the entry point for the deep zoom server.
// Note: All rendering is performed by workers; the server only coordinates and distributes work.
func main() {
	if err := run(); err != nil {
		logrus.Fatalf("run: %+v", err)
	}
}

func run() error {
	v := config.New()
	var landmark, paramLine string
	cmd := &cobra.Command{
		Use:           "deepzoom-server",
		Short:         "Split frames into tiles and hand them to connected workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := config.FromCommand(cmd, v)
			if err != nil {
				return err
			}
			if paramLine == "" {
				l, err := mandel.LookupLandmark(landmark)
				if err != nil {
					return err
				}
				paramLine = l.Params
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, paramLine)
		},
	}
	config.AddFlags(cmd, v)
	config.AddServerFlags(cmd, v)
	cmd.Flags().StringVar(&landmark, "landmark", "seahorse-valley", "landmark rendered at start")
	cmd.Flags().StringVar(&paramLine, "params", "", "parameter line rendered at start, overrides --landmark")
	return cmd.ExecuteContext(context.Background())
}

func serve(ctx context.Context, cfg config.Config, log *logrus.Logger, paramLine string) error {
	s := newServer(cfg, log)
	if _, err := s.submit(paramLine, cfg.Width, cfg.Height); err != nil {
		return err
	}

	httpServer := webServer(s, cfg.Server.HTTP)
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.HTTP).Info("listening")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// server owns the current job. Submitting a job replaces it and moves
// every connected worker over.
type server struct {
	cfg config.Config
	log logrus.FieldLogger

	m       sync.Mutex
	current *imgWorkScheduler
	// changed is closed when current is replaced.
	changed chan struct{}
}

func newServer(cfg config.Config, log logrus.FieldLogger) *server {
	return &server{cfg: cfg, log: log, changed: make(chan struct{})}
}

// submit makes the parameter line the current job. Resubmitting the
// running job keeps its progress.
func (s *server) submit(paramLine string, width, height int) (mandel.Job, error) {
	if _, err := params.Parse(paramLine); err != nil {
		return mandel.Job{}, err
	}
	job := mandel.NewJob(paramLine, width, height)
	if err := job.Validate(); err != nil {
		return mandel.Job{}, err
	}

	s.m.Lock()
	defer s.m.Unlock()
	if s.current != nil {
		if s.current.job == job && !s.current.failed() {
			return job, nil
		}
		s.current.stop(errJobReplaced)
	}
	s.current = newImgWorkScheduler(job, s.cfg.Server.TileSize, s.log)
	close(s.changed)
	s.changed = make(chan struct{})
	s.log.WithFields(logrus.Fields{"job": job.ID, "params": paramLine}).Info("new job")
	return job, nil
}

func (s *server) job() (*imgWorkScheduler, <-chan struct{}) {
	s.m.Lock()
	defer s.m.Unlock()
	return s.current, s.changed
}

// serveWorker renders the current job and every later one on renderer
// until it fails or ctx is done.
func (s *server) serveWorker(ctx context.Context, renderer mandel.Renderer) error {
	for {
		iws, changed := s.job()
		if err := iws.render(ctx, renderer); err != nil {
			return err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil
		}
	}
}
