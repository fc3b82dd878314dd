// Package config parses the command line of the quad presenter.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
)

const (
	PresentModeFIFO      = "fifo"
	PresentModeMailbox   = "mailbox"
	PresentModeImmediate = "immediate"
)

type Config struct {
	Title  string
	Width  int
	Height int

	PresentMode string
	Validation  bool

	QuadSize float32
	MeshPath string

	LogLevel      string
	StatsInterval int
	IdleDelay     time.Duration
}

func Default() Config {
	return Config{
		Title:         "Quad",
		Width:         600,
		Height:        600,
		PresentMode:   PresentModeMailbox,
		QuadSize:      0.25,
		LogLevel:      "info",
		StatsInterval: 600,
		IdleDelay:     10 * time.Millisecond,
	}
}

// Parse reads flags from args, which should not include the program name. Help output and
// errors other than pflag.ErrHelp are written to output.
func Parse(args []string, output io.Writer) (Config, error) {
	cfg, err := parse(args, output)
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(output, "quad: %v\n", err)
	}

	return cfg, err
}

func parse(args []string, output io.Writer) (Config, error) {
	cfg := Default()

	flags := pflag.NewFlagSet("quad", pflag.ContinueOnError)
	flags.SetOutput(output)

	flags.StringVar(&cfg.Title, "title", cfg.Title, "window title")
	flags.IntVar(&cfg.Width, "width", cfg.Width, "initial window width in pixels")
	flags.IntVar(&cfg.Height, "height", cfg.Height, "initial window height in pixels")
	flags.StringVar(&cfg.PresentMode, "present-mode", cfg.PresentMode, "preferred present mode: fifo, mailbox or immediate (falls back to fifo)")
	flags.BoolVar(&cfg.Validation, "validation", cfg.Validation, "enable the Khronos validation layer")
	flags.Float32Var(&cfg.QuadSize, "quad-size", cfg.QuadSize, "side length of the quad in clip space")
	flags.StringVar(&cfg.MeshPath, "mesh", cfg.MeshPath, "Wavefront OBJ file to draw instead of the quad")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.IntVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "log frame statistics every N presents, 0 to disable")
	flags.DurationVar(&cfg.IdleDelay, "idle-delay", cfg.IdleDelay, "sleep between polls while the window is minimized")

	err := flags.Parse(args)
	if err != nil {
		return cfg, err
	}

	if flags.NArg() > 0 {
		return cfg, errors.Newf("unexpected arguments: %s", strings.Join(flags.Args(), " "))
	}

	cfg.PresentMode = strings.ToLower(cfg.PresentMode)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Width, c.Height)
	}

	switch c.PresentMode {
	case PresentModeFIFO, PresentModeMailbox, PresentModeImmediate:
	default:
		return errors.Newf("unknown present mode %q", c.PresentMode)
	}

	_, err := c.level()
	if err != nil {
		return err
	}

	if c.QuadSize <= 0 {
		return errors.Newf("quad size %g must be positive", c.QuadSize)
	}

	if c.StatsInterval < 0 {
		return errors.Newf("stats interval %d must not be negative", c.StatsInterval)
	}

	if c.IdleDelay < 0 {
		return errors.Newf("idle delay %s must not be negative", c.IdleDelay)
	}

	return nil
}

func (c Config) level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return slog.LevelInfo, errors.Newf("unknown log level %q", c.LogLevel)
}

// Logger returns a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
