// Package config loads the settings shared by the server, the workers and
// the command line tool, and builds their logger.
package config

import (
	"os"
	"runtime"
	"strings"

	"github.com/marben/deepzoom/internal/engine"
	"github.com/marben/deepzoom/internal/perturb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: DEEPZOOM_MAX_ITER sets max-iter.
const EnvPrefix = "DEEPZOOM"

type Config struct {
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	Workers       int       `mapstructure:"workers"`
	Width         int       `mapstructure:"width"`
	Height        int       `mapstructure:"height"`
	MaxIter       int       `mapstructure:"max-iter"`
	MaxRetries    int       `mapstructure:"max-retries"`
	MathTolerance []float64 `mapstructure:"math-tolerance"`

	Debug   DebugConfig   `mapstructure:"debug"`
	Perturb PerturbConfig `mapstructure:"perturb"`
	Server  ServerConfig  `mapstructure:"server"`
}

type DebugConfig struct {
	ForceStandard    bool `mapstructure:"force-standard"`
	ForceArbitrary   bool `mapstructure:"force-arbitrary"`
	PreventArbitrary bool `mapstructure:"prevent-arbitrary"`
	ForceBitShift    int  `mapstructure:"force-bitshift"`
}

type PerturbConfig struct {
	Tolerance              float64 `mapstructure:"tolerance"`
	PercentGlitchTolerance float64 `mapstructure:"percent-glitch-tolerance"`
	MaxReferences          int     `mapstructure:"max-references"`
	Seed                   int64   `mapstructure:"seed"`
}

type ServerConfig struct {
	// HTTP is the listen address of the websocket and image endpoints.
	HTTP     string `mapstructure:"http"`
	TileSize int    `mapstructure:"tile-size"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	p := perturb.DefaultConfig()

	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("width", 1920)
	v.SetDefault("height", 1080)
	v.SetDefault("max-iter", 1000)
	v.SetDefault("max-retries", engine.DefaultMaxRetries)
	v.SetDefault("math-tolerance", []float64{0.05, 0.05})

	v.SetDefault("debug.force-standard", false)
	v.SetDefault("debug.force-arbitrary", false)
	v.SetDefault("debug.prevent-arbitrary", false)
	v.SetDefault("debug.force-bitshift", 0)

	v.SetDefault("perturb.tolerance", p.Tolerance)
	v.SetDefault("perturb.percent-glitch-tolerance", p.PercentGlitchTolerance)
	v.SetDefault("perturb.max-references", p.MaxReferences)
	v.SetDefault("perturb.seed", p.Seed)

	v.SetDefault("server.http", ":8080")
	v.SetDefault("server.tile-size", 64)
}

// New returns a viper instance with the defaults set and environment
// overrides enabled. The caller binds flags before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or deepzoom.yaml in the working
// directory when path is empty and such a file exists, and decodes v.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("deepzoom")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no frame can be rendered with.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return errors.Errorf("config: frame size %dx%d", c.Width, c.Height)
	case c.MaxIter <= 0:
		return errors.Errorf("config: max-iter %d", c.MaxIter)
	case c.Workers <= 0:
		return errors.Errorf("config: workers %d", c.Workers)
	case len(c.MathTolerance) != 2:
		return errors.Errorf("config: math-tolerance needs two values, got %d", len(c.MathTolerance))
	case c.Server.TileSize <= 0:
		return errors.Errorf("config: tile-size %d", c.Server.TileSize)
	}
	return nil
}

// NewLogger builds the process logger. format is text or json.
func NewLogger(level, format string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log-level")
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("log-format %q: want text or json", format)
	}
	return l, nil
}

// Apply copies the calculation settings onto rc. The fractal type and
// viewport are left alone; parameter sets applied afterwards override the
// iteration limit.
func (c Config) Apply(rc *engine.RenderContext) {
	rc.Workers = c.Workers
	if c.MaxIter > 0 {
		rc.MaxIter = c.MaxIter
	}
	if c.MaxRetries > 0 {
		rc.MaxRetries = c.MaxRetries
	}
	if len(c.MathTolerance) == 2 {
		rc.MathTolerance = [2]float64{c.MathTolerance[0], c.MathTolerance[1]}
	}
	rc.Debug = engine.Debug{
		ForceStandard:    c.Debug.ForceStandard,
		ForceArbitrary:   c.Debug.ForceArbitrary,
		PreventArbitrary: c.Debug.PreventArbitrary,
		ForceBitShift:    c.Debug.ForceBitShift,
	}
	rc.Perturb = c.Perturb.Engine(rc.Perturb)
}

// Engine overlays the set fields of p on base.
func (p PerturbConfig) Engine(base perturb.Config) perturb.Config {
	if p.Tolerance > 0 {
		base.Tolerance = p.Tolerance
	}
	if p.PercentGlitchTolerance > 0 {
		base.PercentGlitchTolerance = p.PercentGlitchTolerance
	}
	if p.MaxReferences > 0 {
		base.MaxReferences = p.MaxReferences
	}
	if p.Seed != 0 {
		base.Seed = p.Seed
	}
	return base
}

// AddFlags registers the flags every command shares on cmd and binds them
// to v.
func AddFlags(cmd *cobra.Command, v *viper.Viper) {
	fs := cmd.PersistentFlags()
	fs.String("config", "", "config file (default ./deepzoom.yaml)")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text or json")
	fs.Int("workers", runtime.NumCPU(), "goroutines per frame")
	fs.Int("width", 1920, "frame width in pixels")
	fs.Int("height", 1080, "frame height in pixels")
	fs.Int("max-iter", 1000, "iteration limit when the parameters set none")
	fs.Bool("force-arbitrary", false, "use BigFloat even when doubles suffice")
	fs.Bool("force-standard", false, "never use perturbation")

	bind(v, fs, map[string]string{
		"log-level":             "log-level",
		"log-format":            "log-format",
		"workers":               "workers",
		"width":                 "width",
		"height":                "height",
		"max-iter":              "max-iter",
		"debug.force-arbitrary": "force-arbitrary",
		"debug.force-standard":  "force-standard",
	})
}

// AddServerFlags registers the server address flags on cmd.
func AddServerFlags(cmd *cobra.Command, v *viper.Viper) {
	fs := cmd.Flags()
	fs.String("http", ":8080", "server listen address")
	fs.Int("tile-size", 64, "tile edge in pixels")
	bind(v, fs, map[string]string{
		"server.http":      "http",
		"server.tile-size": "tile-size",
	})
}

// bind maps config keys to flag names.
func bind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// FromCommand loads the configuration with cmd's flags applied and builds
// the logger it names.
func FromCommand(cmd *cobra.Command, v *viper.Viper) (Config, *logrus.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return Config{}, nil, err
	}
	cfg, err := Load(v, path)
	if err != nil {
		return Config{}, nil, err
	}
	log, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return Config{}, nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.WithField("file", used).Debug("config loaded")
	}
	return cfg, log, nil
}
