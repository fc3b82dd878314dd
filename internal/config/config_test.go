package config

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, io.Discard)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 600, cfg.Width)
	require.Equal(t, 600, cfg.Height)
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"--title", "A",
		"--width=800",
		"--height", "480",
		"--present-mode", "FIFO",
		"--validation",
		"--quad-size", "0.5",
		"--mesh", "room.obj",
		"--log-level", "Debug",
		"--stats-interval", "0",
		"--idle-delay", "25ms",
	}, io.Discard)
	require.NoError(t, err)

	require.Equal(t, Config{
		Title:         "A",
		Width:         800,
		Height:        480,
		PresentMode:   PresentModeFIFO,
		Validation:    true,
		QuadSize:      0.5,
		MeshPath:      "room.obj",
		LogLevel:      "debug",
		StatsInterval: 0,
		IdleDelay:     25 * time.Millisecond,
	}, cfg)
}

func TestParseRejects(t *testing.T) {
	cases := map[string][]string{
		"zero width":     {"--width", "0"},
		"present mode":   {"--present-mode", "vsync"},
		"log level":      {"--log-level", "loud"},
		"quad size":      {"--quad-size=-1"},
		"stats interval": {"--stats-interval=-3"},
		"idle delay":     {"--idle-delay=-1s"},
		"positional":     {"extra"},
		"unknown flag":   {"--fullscreen"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := Parse(args, &out)
			require.Error(t, err)
			require.Contains(t, out.String(), err.Error())
		})
	}
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	_, err := Parse([]string{"--help"}, &out)
	require.ErrorIs(t, err, pflag.ErrHelp)
	require.Contains(t, out.String(), "--present-mode")
	require.NotContains(t, out.String(), "quad: ")
}

func TestLoggerLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"

	logger := cfg.Logger(io.Discard)
	require.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}
