// The cliclient is the deepzoom command line tool. It renders frames
// locally, fetches frames from a server and reports how a frame's
// precision was settled.
package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	mandel "github.com/marben/deepzoom"
	"github.com/marben/deepzoom/internal/config"
	"github.com/marben/deepzoom/internal/engine"
	"github.com/marben/deepzoom/internal/params"
	"github.com/marben/deepzoom/internal/render"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		logrus.Fatalf("run: %+v", err)
	}
}

// frameFlags select the parameters of a frame: a parameter line, a named
// set in a parameter file or a landmark, in that order.
type frameFlags struct {
	params   string
	file     string
	name     string
	landmark string
}

func (f *frameFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.params, "params", "", `parameter line, e.g. "type=julia params=-0.8/0.156"`)
	cmd.Flags().StringVar(&f.file, "file", "", "YAML parameter file")
	cmd.Flags().StringVar(&f.name, "name", "", "entry of the parameter file")
	cmd.Flags().StringVar(&f.landmark, "landmark", "seahorse-valley", "landmark name")
}

func (f *frameFlags) line() (string, error) {
	switch {
	case f.params != "":
		return f.params, nil
	case f.file != "":
		pf, err := params.LoadFile(f.file)
		if err != nil {
			return "", err
		}
		e, err := pf.Lookup(f.name)
		if err != nil {
			return "", err
		}
		return e.String(), nil
	}
	l, err := mandel.LookupLandmark(f.landmark)
	if err != nil {
		return "", err
	}
	return l.Params, nil
}

func run(args []string, out io.Writer) error {
	v := config.New()
	root := &cobra.Command{
		Use:           "deepzoom",
		Short:         "Deep zoom fractal renderer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(root, v)
	root.AddCommand(renderCmd(v), fetchCmd(v), infoCmd(v, out), landmarksCmd(out))
	root.SetArgs(args)
	root.SetOut(out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

func renderCmd(v *viper.Viper) *cobra.Command {
	var (
		frame  frameFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a frame on this machine and save it as PNG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := config.FromCommand(cmd, v)
			if err != nil {
				return err
			}
			line, err := frame.line()
			if err != nil {
				return err
			}
			job := mandel.NewJob(line, cfg.Width, cfg.Height)
			log.WithFields(logrus.Fields{"job": job.ID, "params": line}).Info("rendering")

			start := time.Now()
			img, err := render.New(cfg, log).RenderFrame(cmd.Context(), job)
			if err != nil {
				return err
			}
			log.WithField("took", time.Since(start)).Info("rendered")
			return savePNG(output, img, log)
		},
	}
	frame.add(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "mandel.png", "output file")
	return cmd
}

func fetchCmd(v *viper.Viper) *cobra.Command {
	var (
		frame   frameFlags
		server  string
		output  string
		submit  bool
		partial bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the frame a server is rendering and save it as PNG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := config.FromCommand(cmd, v)
			if err != nil {
				return err
			}
			c := &client{base: server}
			if submit {
				line, err := frame.line()
				if err != nil {
					return err
				}
				job, err := c.submit(cmd.Context(), line, cfg.Width, cfg.Height)
				if err != nil {
					return err
				}
				log.WithField("job", job.ID).Info("job submitted")
			}

			log.WithField("server", server).Info("asking server for the rendered image")
			img, err := c.image(cmd.Context(), partial)
			if err != nil {
				return err
			}
			return savePNG(output, img, log)
		},
	}
	frame.add(cmd)
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "server address")
	cmd.Flags().StringVarP(&output, "output", "o", "mandel.png", "output file")
	cmd.Flags().BoolVar(&submit, "submit", false, "make the selected frame the server's job first")
	cmd.Flags().BoolVar(&partial, "partial", false, "take what is rendered so far")
	return cmd
}

func infoCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	var frame frameFlags
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Report the precision and calculation mode chosen for a frame",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := config.FromCommand(cmd, v)
			if err != nil {
				return err
			}
			line, err := frame.line()
			if err != nil {
				return err
			}
			rc, err := render.Context(cfg, mandel.NewJob(line, cfg.Width, cfg.Height), log)
			if err != nil {
				return err
			}
			return report(out, rc)
		},
	}
	frame.add(cmd)
	return cmd
}

func report(w io.Writer, rc *engine.RenderContext) error {
	e, err := params.Format(rc)
	if err != nil {
		return err
	}
	digits := 0
	if rc.Math == engine.BigFloat {
		digits = rc.Arena.Decimals()
	}
	c := rc.Corners
	_, err = fmt.Fprintf(w, `fractal:       %s
frame:         %dx%d
math:          %s
digits:        %d
perturbation:  %v
float:         %v
bitshift:      %d
tries:         %d
corners:       %.17g/%.17g/%.17g/%.17g
pixel step:    %.6g
parameters:    %s
`,
		rc.Type, rc.XDots, rc.YDots, rc.Math, digits, rc.UsePerturbation, rc.FloatFlag,
		rc.BitShift, rc.Tries, c.Min.X, c.Max.X, c.Min.Y, c.Max.Y, rc.DeltaMin, e)
	return errors.Wrap(err, "write report")
}

func landmarksCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "landmarks",
		Short: "List the named landmarks",
		RunE: func(*cobra.Command, []string) error {
			for _, l := range mandel.Landmarks {
				if _, err := fmt.Fprintf(out, "%-22s %s\n", l.Name, l.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func savePNG(filename string, img image.Image, log logrus.FieldLogger) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "create output file")
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrap(err, "encode PNG")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close output file")
	}
	log.WithField("file", filename).Info("image saved")
	return nil
}
