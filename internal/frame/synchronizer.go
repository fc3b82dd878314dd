package frame

import (
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/quad/internal/input"
	"github.com/vkngwrapper/quad/internal/scene"
)

type State int

const (
	StateRunning State = iota
	StateAwaitingResize
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateAwaitingResize:
		return "AwaitingResize"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "State(?)"
	}
}

// Cursor records the image index used by the most recent submission.
type Cursor struct {
	Previous int
	// First is true until the current resource generation has been submitted once. It only
	// selects the debug line logged for a generation's first submission.
	First bool
}

const DefaultIdleDelay = 10 * time.Millisecond

type Config struct {
	Surface    Surface
	Swapchains SwapchainManager
	Builder    ResourceBuilder
	Queue      Queue
	Scene      scene.State

	// Dispatcher receives keyboard events during polling. A new one is created when nil.
	Dispatcher *input.Dispatcher
	// Logger defaults to discarding everything.
	Logger *slog.Logger

	// IdleDelay is slept on ticks that do no work while waiting for a usable surface size.
	// Zero disables the sleep.
	IdleDelay time.Duration
	// StatsInterval logs frame statistics every StatsInterval presents. Zero disables it.
	StatsInterval int
}

// Synchronizer owns the swapchain, the live FrameResources generation and one fence slot per
// swapchain image. All methods must be called from a single goroutine.
type Synchronizer struct {
	surface    Surface
	swapchains SwapchainManager
	builder    ResourceBuilder
	queue      Queue
	scene      scene.State
	dispatcher *input.Dispatcher
	log        *slog.Logger

	idleDelay     time.Duration
	statsInterval uint64

	state      State
	started    bool
	chain      Swapchain
	resources  FrameResources
	generation uuid.UUID
	fences     []Fence
	cursor     Cursor
	stats      Stats
}

func New(cfg Config) (*Synchronizer, error) {
	if cfg.Surface == nil || cfg.Swapchains == nil || cfg.Builder == nil || cfg.Queue == nil {
		return nil, errors.New("frame: surface, swapchain manager, resource builder and queue are all required")
	}

	if err := cfg.Scene.Validate(); err != nil {
		return nil, errors.Wrap(err, "frame: invalid scene")
	}

	if cfg.IdleDelay < 0 || cfg.StatsInterval < 0 {
		return nil, errors.Newf("frame: negative idle delay %s or stats interval %d", cfg.IdleDelay, cfg.StatsInterval)
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = input.NewDispatcher()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Synchronizer{
		surface:       cfg.Surface,
		swapchains:    cfg.Swapchains,
		builder:       cfg.Builder,
		queue:         cfg.Queue,
		scene:         cfg.Scene.Clone(),
		dispatcher:    dispatcher,
		log:           logger,
		idleDelay:     cfg.IdleDelay,
		statsInterval: uint64(cfg.StatsInterval),
		state:         StateAwaitingResize,
	}, nil
}

func (s *Synchronizer) State() State {
	return s.state
}

func (s *Synchronizer) Stats() Stats {
	return s.stats
}

func (s *Synchronizer) Cursor() Cursor {
	return s.cursor
}

// Swapchain returns the live swapchain, or nil while none could be created.
func (s *Synchronizer) Swapchain() Swapchain {
	return s.chain
}

// InFlight returns the number of occupied fence slots.
func (s *Synchronizer) InFlight() int {
	count := 0
	for _, fence := range s.fences {
		if fence != nil {
			count++
		}
	}

	return count
}

// Run owns the present loop until the surface asks to close, then waits for the device to go
// idle and releases the swapchain and frame resources. Collaborator errors are marked
// ErrDeviceFailure. Calling Run after Start returns an unmarked usage error.
func (s *Synchronizer) Run() (err error) {
	defer func() {
		shutdownErr := s.Shutdown()
		if err == nil {
			err = shutdownErr
		}
	}()

	err = s.Start()
	if err != nil {
		return err
	}

	for s.state != StateShuttingDown {
		err = s.Step()
		if err != nil {
			return err
		}
	}

	return nil
}

// Start creates the first swapchain and resource generation. A surface that is not yet usable
// leaves the synchronizer in StateAwaitingResize.
func (s *Synchronizer) Start() error {
	if s.started {
		return errors.New("frame: synchronizer already started")
	}
	s.started = true

	extent := s.surface.DrawableExtent()
	chain, err := s.swapchains.Create(extent)
	if errors.Is(err, ErrUnsupportedExtent) {
		s.log.Info("surface not presentable yet, waiting for resize", "extent", extent)
		s.state = StateAwaitingResize
		return nil
	} else if err != nil {
		return deviceFailure(err, "create swapchain at %s", extent)
	}

	return s.adopt(chain)
}

// Step runs one iteration of the loop: poll the surface, recreate if needed, then draw one
// frame.
func (s *Synchronizer) Step() error {
	if !s.started {
		return errors.New("frame: Step called before Start")
	}

	if s.state == StateShuttingDown {
		return nil
	}

	events := s.surface.PollEvents(s.dispatcher)
	if events.CloseRequested {
		s.log.Info("close requested")
		s.state = StateShuttingDown
		return nil
	}

	if events.Resized {
		s.state = StateAwaitingResize
	}

	if s.state == StateAwaitingResize {
		ready, err := s.recreate()
		if err != nil {
			return err
		}

		if !ready {
			s.stats.IdleTicks++
			if s.idleDelay > 0 {
				time.Sleep(s.idleDelay)
			}
			return nil
		}
	}

	return s.drawFrame()
}

// Shutdown waits for every occupied fence slot and for the device to go idle, then releases the
// frame resources and the swapchain. It is terminal.
func (s *Synchronizer) Shutdown() error {
	s.state = StateShuttingDown

	err := s.drain()
	if err != nil {
		return err
	}

	s.releaseResources()
	if s.chain != nil {
		s.swapchains.Destroy(s.chain)
		s.chain = nil
	}

	s.log.Info("present loop stopped",
		"presented", s.stats.Presented,
		"recreations", s.stats.Recreations,
		"averageFrame", s.stats.AverageFrame(),
	)
	return nil
}

func (s *Synchronizer) drawFrame() error {
	extent := s.surface.DrawableExtent()
	if extent != s.chain.Extent() {
		s.log.Debug("drawable extent changed", "from", s.chain.Extent(), "to", extent)
		s.state = StateAwaitingResize
		return nil
	}

	imageIndex, status, err := s.chain.AcquireNextImage()
	if err != nil {
		return deviceFailure(err, "acquire swapchain image")
	}

	stale := false
	switch status {
	case StatusOutOfDate:
		s.stats.OutOfDate++
		s.state = StateAwaitingResize
		return nil
	case StatusSuboptimal:
		s.stats.Suboptimal++
		stale = true
	}

	if imageIndex < 0 || imageIndex >= len(s.fences) {
		return deviceFailure(errors.Newf("image index %d outside swapchain of %d images", imageIndex, len(s.fences)), "acquire swapchain image")
	}

	// The command buffer for this image may still be executing from its previous submission.
	if fence := s.fences[imageIndex]; fence != nil {
		err = fence.Wait()
		if err != nil {
			return deviceFailure(err, "wait for image %d fence", imageIndex)
		}
	}

	if s.cursor.First {
		s.log.Debug("first submission for generation", "generation", s.generation, "image", imageIndex)
	}

	fence, err := s.queue.Submit(Submission{
		Swapchain:  s.chain,
		Resources:  s.resources,
		ImageIndex: imageIndex,
	})
	if err != nil {
		return deviceFailure(err, "submit image %d", imageIndex)
	}
	s.fences[imageIndex] = fence

	status, err = s.chain.Present(imageIndex, fence)
	if err != nil {
		return deviceFailure(err, "present image %d", imageIndex)
	}

	s.cursor = Cursor{Previous: imageIndex}

	switch status {
	case StatusOutOfDate:
		s.stats.OutOfDate++
		stale = true
	case StatusSuboptimal:
		s.stats.Suboptimal++
		stale = true
		s.stats.markPresented()
	default:
		s.stats.markPresented()
	}

	if stale {
		s.state = StateAwaitingResize
	}

	if s.statsInterval > 0 && s.stats.Presented > 0 && s.stats.Presented%s.statsInterval == 0 {
		s.log.Debug("frame stats",
			"presented", s.stats.Presented,
			"lastFrame", s.stats.LastFrame,
			"averageFrame", s.stats.AverageFrame(),
			"inFlight", s.InFlight(),
		)
	}

	return nil
}

// recreate replaces the swapchain and rebuilds frame resources for the current drawable extent.
// It reports false when the surface cannot be presented to at that size.
func (s *Synchronizer) recreate() (bool, error) {
	extent := s.surface.DrawableExtent()

	err := s.drain()
	if err != nil {
		return false, err
	}
	s.releaseResources()

	var chain Swapchain
	if s.chain == nil {
		chain, err = s.swapchains.Create(extent)
	} else {
		chain, err = s.swapchains.Recreate(s.chain, extent)
	}

	if errors.Is(err, ErrUnsupportedExtent) {
		s.log.Debug("swapchain extent not supported", "extent", extent)
		return false, nil
	} else if err != nil {
		return false, deviceFailure(err, "recreate swapchain at %s", extent)
	}

	s.stats.Recreations++
	s.stats.resetPacing()

	err = s.adopt(chain)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *Synchronizer) adopt(chain Swapchain) error {
	s.chain = chain

	resources, err := s.builder.Build(chain, s.scene)
	if err != nil {
		return deviceFailure(err, "build frame resources for %s swapchain", chain.Extent())
	}

	s.resources = resources
	s.generation = uuid.New()
	s.fences = make([]Fence, chain.ImageCount())
	s.cursor = Cursor{First: true}
	s.state = StateRunning

	s.log.Info("swapchain ready",
		"generation", s.generation,
		"extent", chain.Extent(),
		"images", chain.ImageCount(),
		"format", chain.ImageFormat(),
		"presentMode", chain.PresentMode(),
	)
	return nil
}

// drain blocks until every occupied fence slot has signaled and the device is idle.
func (s *Synchronizer) drain() error {
	for imageIndex, fence := range s.fences {
		if fence == nil {
			continue
		}

		err := fence.Wait()
		if err != nil {
			return deviceFailure(err, "wait for image %d fence", imageIndex)
		}
	}

	err := s.queue.WaitIdle()
	if err != nil {
		return deviceFailure(err, "wait for device idle")
	}

	return nil
}

// releaseResources destroys the live generation. Callers must drain first.
func (s *Synchronizer) releaseResources() {
	if s.resources != nil {
		s.resources.Destroy()
		s.resources = nil
	}

	for i := range s.fences {
		s.fences[i] = nil
	}
	s.cursor = Cursor{First: true}
}
