package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marben/deepzoom/internal/engine"
	"github.com/marben/deepzoom/internal/fractal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 1920 || cfg.Height != 1080 || cfg.MaxIter != 1000 {
		t.Fatalf("got %dx%d maxiter %d", cfg.Width, cfg.Height, cfg.MaxIter)
	}
	if cfg.MaxRetries != engine.DefaultMaxRetries {
		t.Fatalf("got max-retries %d, want %d", cfg.MaxRetries, engine.DefaultMaxRetries)
	}
	if cfg.Perturb.MaxReferences != 10 || cfg.Perturb.Tolerance != 1e-6 {
		t.Fatalf("got perturb %+v", cfg.Perturb)
	}
	if cfg.Server.HTTP != ":8080" || cfg.Server.TileSize != 64 {
		t.Fatalf("got server %+v", cfg.Server)
	}
}

func TestFileAndEnv(t *testing.T) {
	doc := `
log-level: debug
width: 800
height: 600
math-tolerance: [0.1, 0.2]
debug:
  force-arbitrary: true
  force-bitshift: 24
perturb:
  max-references: 3
server:
  tile-size: 32
`
	path := filepath.Join(t.TempDir(), "deepzoom.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEEPZOOM_MAX_ITER", "5000")
	t.Setenv("DEEPZOOM_PERTURB_SEED", "42")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" || cfg.Width != 800 || cfg.Height != 600 {
		t.Fatalf("file not read: %+v", cfg)
	}
	if cfg.MaxIter != 5000 || cfg.Perturb.Seed != 42 {
		t.Fatalf("environment not read: maxiter %d seed %d", cfg.MaxIter, cfg.Perturb.Seed)
	}

	rc, err := engine.NewRenderContext(fractal.Mandel, cfg.Width, cfg.Height)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Apply(rc)
	if !rc.Debug.ForceArbitrary || rc.Debug.ForceBitShift != 24 {
		t.Fatalf("got debug %+v", rc.Debug)
	}
	if rc.MathTolerance != [2]float64{0.1, 0.2} || rc.MaxIter != 5000 {
		t.Fatalf("got tolerance %v maxiter %d", rc.MathTolerance, rc.MaxIter)
	}
	if rc.Perturb.MaxReferences != 3 || rc.Perturb.Seed != 42 || rc.Perturb.Tolerance != 1e-6 {
		t.Fatalf("got perturb %+v", rc.Perturb)
	}
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name, doc string
	}{
		{"size", "width: 0\n"},
		{"maxiter", "max-iter: -1\n"},
		{"tolerance", "math-tolerance: [0.1]\n"},
		{"tile", "server:\n  tile-size: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			if err := os.WriteFile(path, []byte(tt.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(New(), path); err == nil {
				t.Fatalf("got no error")
			}
		})
	}

	if _, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing explicit file accepted")
	}
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	if l.GetLevel() != logrus.WarnLevel {
		t.Fatalf("got level %v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("got formatter %T", l.Formatter)
	}
	if _, err := NewLogger("loud", "text"); err == nil {
		t.Fatalf("bad level accepted")
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatalf("bad format accepted")
	}
}

func TestFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	v := New()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	AddFlags(cmd, v)
	AddServerFlags(cmd, v)
	cmd.SetArgs([]string{"--width", "320", "--force-arbitrary", "--tile-size", "16", "--log-level", "debug"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	cfg, log, err := FromCommand(cmd, v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 320 || cfg.Height != 1080 || !cfg.Debug.ForceArbitrary || cfg.Server.TileSize != 16 {
		t.Fatalf("got %+v", cfg)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("got level %v", log.GetLevel())
	}
}
