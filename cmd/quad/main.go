package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/vkngwrapper/quad/internal/config"
	"github.com/vkngwrapper/quad/internal/frame"
	"github.com/vkngwrapper/quad/internal/input"
	"github.com/vkngwrapper/quad/internal/meshload"
	"github.com/vkngwrapper/quad/internal/scene"
	"github.com/vkngwrapper/quad/internal/vulkan"
	"github.com/vkngwrapper/quad/internal/window"
)

func main() {
	// SDL and presentation must stay on the main thread.
	runtime.LockOSThread()

	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	} else if err != nil {
		// Parse has already reported the error on stderr.
		os.Exit(2)
	}

	logger := cfg.Logger(os.Stderr)

	err = run(cfg, logger)
	if err != nil {
		logger.Error("quad failed", "device_failure", frame.IsDeviceFailure(err))
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func loadScene(cfg config.Config) (scene.State, error) {
	if cfg.MeshPath == "" {
		return scene.Quad(cfg.QuadSize), nil
	}

	return meshload.LoadFile(cfg.MeshPath, cfg.QuadSize)
}

func run(cfg config.Config, logger *slog.Logger) error {
	state, err := loadScene(cfg)
	if err != nil {
		return errors.Wrap(err, "load scene")
	}
	logger.Info("scene loaded",
		"vertices", len(state.Vertices),
		"indices", len(state.Indices),
		"center", state.Center())

	win, err := window.Open(cfg.Title, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer win.Destroy()

	ctx, err := vulkan.NewContext(win.SDL(), vulkan.Options{
		ApplicationName: cfg.Title,
		Validation:      cfg.Validation,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer ctx.Close()

	dispatcher := input.NewDispatcher()
	dispatcher.On(input.Began, input.AnyKey(), func(in input.Input) {
		logger.Debug("key pressed", "key", in.Key, "space_held", dispatcher.Held(input.KeySpace))
	})
	dispatcher.On(input.Began, input.OnlyKey(input.KeyA), func(in input.Input) {
		logger.Info("A pressed")
	})
	dispatcher.On(input.Began, input.OnlyKey(input.KeyEscape), func(in input.Input) {
		win.RequestClose()
	})

	logger.Debug("key handlers registered", "count", dispatcher.Len())

	synchronizer, err := frame.New(frame.Config{
		Surface:       win,
		Swapchains:    vulkan.NewSwapchainManager(ctx, cfg.PresentMode),
		Builder:       vulkan.NewPipelineBuilder(ctx),
		Queue:         vulkan.NewQueue(ctx),
		Scene:         state,
		Dispatcher:    dispatcher,
		Logger:        logger,
		IdleDelay:     cfg.IdleDelay,
		StatsInterval: cfg.StatsInterval,
	})
	if err != nil {
		return err
	}

	err = synchronizer.Run()
	if err != nil {
		return err
	}

	stats := synchronizer.Stats()
	logger.Info("quad closed",
		"presented", stats.Presented,
		"recreations", stats.Recreations,
		"average_frame", stats.AverageFrame())
	return nil
}
