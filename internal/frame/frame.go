// Package frame drives the acquire, wait, submit and present cycle for a swapchain and rebuilds
// the swapchain and its per-image resources when the surface changes under it.
//
// The package knows nothing about a particular graphics API. Collaborators implement Surface,
// SwapchainManager, ResourceBuilder and Queue; internal/vulkan provides the real ones.
package frame

import (
	"fmt"

	"github.com/vkngwrapper/quad/internal/input"
	"github.com/vkngwrapper/quad/internal/scene"
)

type Extent struct {
	Width  int
	Height int
}

// Empty reports whether the extent has no area, as for a minimized window.
func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Status is the non-error outcome of an acquire or present.
type Status int

const (
	StatusOK Status = iota
	// StatusSuboptimal means the operation succeeded but the swapchain should be recreated.
	StatusSuboptimal
	// StatusOutOfDate means the operation did not happen and the swapchain must be recreated.
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusSuboptimal:
		return "Suboptimal"
	case StatusOutOfDate:
		return "OutOfDate"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Events is what the surface reports for one loop tick.
type Events struct {
	Resized        bool
	CloseRequested bool
}

// Surface is the window the swapchain presents to.
type Surface interface {
	// DrawableExtent returns the current drawable size in pixels; zero when minimized.
	DrawableExtent() Extent
	// PollEvents drains pending window events without blocking, feeding keyboard events to
	// the dispatcher.
	PollEvents(dispatcher *input.Dispatcher) Events
}

// Fence is a host-waitable completion signal for one queue submission.
type Fence interface {
	// Wait blocks until the submission completes.
	Wait() error
}

// Swapchain is one generation of presentable images. It is never mutated; a resize produces a
// new Swapchain through SwapchainManager.Recreate.
type Swapchain interface {
	Extent() Extent
	ImageCount() int
	ImageFormat() string
	PresentMode() string

	// AcquireNextImage blocks without timeout until the presentation engine hands out an
	// image. StatusOutOfDate is returned with a nil error and no image.
	AcquireNextImage() (int, Status, error)
	// Present queues imageIndex for display once wait has signaled on the GPU.
	Present(imageIndex int, wait Fence) (Status, error)
}

// SwapchainManager creates and replaces swapchains. Both methods return ErrUnsupportedExtent
// when the surface rejects the requested size; they never retry.
type SwapchainManager interface {
	Create(extent Extent) (Swapchain, error)
	// Recreate builds a replacement for old. On success old is destroyed and must not be used.
	// On failure old is left untouched.
	Recreate(old Swapchain, extent Extent) (Swapchain, error)
	Destroy(chain Swapchain)
}

// FrameResources is one generation of per-image state derived from a swapchain: framebuffers,
// the pipeline and one recorded command buffer per image.
type FrameResources interface {
	Destroy()
}

// ResourceBuilder compiles the pipeline and records command buffers for a swapchain. Build is a
// pure function of its inputs; any error is fatal.
type ResourceBuilder interface {
	Build(chain Swapchain, scene scene.State) (FrameResources, error)
}

// Submission describes the command buffer to execute for one acquired image. The queue always
// makes the submission wait on the image-acquired signal of ImageIndex.
type Submission struct {
	Swapchain  Swapchain
	Resources  FrameResources
	ImageIndex int
}

// Queue is the graphics and present capable queue of the device.
type Queue interface {
	// Submit executes the command buffer recorded for sub.ImageIndex and returns a fence that
	// signals when it completes.
	Submit(sub Submission) (Fence, error)
	// WaitIdle blocks until the device has no pending work.
	WaitIdle() error
}
