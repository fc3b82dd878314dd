package vulkan

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/quad/internal/frame"
)

var presentModes = map[string]khr_surface.PresentMode{
	"fifo":      khr_surface.PresentModeFIFO,
	"mailbox":   khr_surface.PresentModeMailbox,
	"immediate": khr_surface.PresentModeImmediate,
}

// SwapchainManager creates swapchains for the context's surface.
type SwapchainManager struct {
	ctx         *Context
	presentMode string
	logger      *slog.Logger
}

// NewSwapchainManager returns a manager that asks for presentMode ("fifo", "mailbox" or
// "immediate") and falls back to FIFO when the surface does not offer it.
func NewSwapchainManager(ctx *Context, presentMode string) *SwapchainManager {
	return &SwapchainManager{
		ctx:         ctx,
		presentMode: presentMode,
		logger:      ctx.logger,
	}
}

func (m *SwapchainManager) Create(extent frame.Extent) (frame.Swapchain, error) {
	chain, err := m.create(extent, nil)
	if err != nil {
		return nil, err
	}

	return chain, nil
}

func (m *SwapchainManager) Recreate(old frame.Swapchain, extent frame.Extent) (frame.Swapchain, error) {
	oldChain, ok := old.(*Swapchain)
	if !ok {
		return nil, errors.AssertionFailedf("recreate from foreign swapchain %T", old)
	}

	chain, err := m.create(extent, oldChain)
	if err != nil {
		return nil, err
	}

	oldChain.destroy()
	return chain, nil
}

func (m *SwapchainManager) Destroy(chain frame.Swapchain) {
	sc, ok := chain.(*Swapchain)
	if !ok {
		return
	}

	sc.destroy()
}

func (m *SwapchainManager) create(extent frame.Extent, old *Swapchain) (*Swapchain, error) {
	support, err := m.ctx.querySwapchainSupport(m.ctx.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query surface support")
	}

	err = checkExtent(support.capabilities, extent)
	if err != nil {
		return nil, err
	}

	surfaceFormat := chooseSwapSurfaceFormat(support.formats)
	presentMode := chooseSwapPresentMode(support.presentModes, m.presentMode)
	sharingMode, familyIndices := m.ctx.sharing()

	createInfo := khr_swapchain.SwapchainCreateInfo{
		Surface: m.ctx.surface,

		MinImageCount:    chooseImageCount(support.capabilities),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      core1_0.Extent2D{Width: extent.Width, Height: extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: familyIndices,

		PreTransform:   support.capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	}
	if old != nil {
		createInfo.OldSwapchain = old.handle
	}

	handle, _, err := m.ctx.swapchainExtension.CreateSwapchain(nil, createInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "create swapchain %s", extent)
	}

	chain := &Swapchain{
		ctx:         m.ctx,
		handle:      handle,
		format:      surfaceFormat.Format,
		extent:      extent,
		presentMode: presentMode,
	}

	chain.images, _, err = m.ctx.swapchainExtension.GetSwapchainImages(handle)
	if err != nil {
		chain.destroy()
		return nil, errors.Wrap(err, "get swapchain images")
	}

	err = chain.createSemaphores()
	if err != nil {
		chain.destroy()
		return nil, err
	}

	m.logger.Debug("swapchain created",
		"extent", extent,
		"images", len(chain.images),
		"format", chain.ImageFormat(),
		"present_mode", chain.PresentMode())
	return chain, nil
}

// checkExtent reports frame.ErrUnsupportedExtent when the surface cannot take a swapchain of the
// requested size right now.
func checkExtent(capabilities *khr_surface.SurfaceCapabilities, extent frame.Extent) error {
	if extent.Empty() {
		return errors.Wrapf(frame.ErrUnsupportedExtent, "extent %s has no area", extent)
	}

	// A current extent of -1 means the surface follows whatever the swapchain asks for.
	current := capabilities.CurrentExtent
	if current.Width != -1 {
		if current.Width != extent.Width || current.Height != extent.Height {
			return errors.Wrapf(frame.ErrUnsupportedExtent, "surface is %dx%d, requested %s", current.Width, current.Height, extent)
		}
		return nil
	}

	minExtent := capabilities.MinImageExtent
	maxExtent := capabilities.MaxImageExtent
	if extent.Width < minExtent.Width || extent.Height < minExtent.Height ||
		extent.Width > maxExtent.Width || extent.Height > maxExtent.Height {
		return errors.Wrapf(frame.ErrUnsupportedExtent, "extent %s outside %dx%d to %dx%d",
			extent, minExtent.Width, minExtent.Height, maxExtent.Width, maxExtent.Height)
	}

	return nil
}

func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}

	return imageCount
}

func chooseSwapSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

func chooseSwapPresentMode(availablePresentModes []khr_surface.PresentMode, preferred string) khr_surface.PresentMode {
	want, known := presentModes[preferred]
	if !known {
		return khr_surface.PresentModeFIFO
	}

	for _, presentMode := range availablePresentModes {
		if presentMode == want {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// Swapchain is one generation of presentable images together with the semaphores that signal
// their acquisition.
type Swapchain struct {
	ctx         *Context
	handle      khr_swapchain.Swapchain
	images      []core1_0.Image
	format      core1_0.Format
	extent      frame.Extent
	presentMode khr_surface.PresentMode

	// acquired[i] is signaled by the acquire that returned image i. spare is handed to the next
	// acquire and traded for the slot of the image it returns.
	acquired []core1_0.Semaphore
	spare    core1_0.Semaphore
}

func (s *Swapchain) createSemaphores() error {
	for i := 0; i <= len(s.images); i++ {
		semaphore, _, err := s.ctx.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create image acquired semaphore")
		}

		if i == len(s.images) {
			s.spare = semaphore
		} else {
			s.acquired = append(s.acquired, semaphore)
		}
	}

	return nil
}

func (s *Swapchain) Extent() frame.Extent { return s.extent }
func (s *Swapchain) ImageCount() int      { return len(s.images) }
func (s *Swapchain) ImageFormat() string  { return fmt.Sprint(s.format) }
func (s *Swapchain) PresentMode() string  { return fmt.Sprint(s.presentMode) }

func (s *Swapchain) AcquireNextImage() (int, frame.Status, error) {
	semaphore := s.spare
	imageIndex, res, err := s.ctx.swapchainExtension.AcquireNextImage(s.handle, common.NoTimeout, &semaphore, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return -1, frame.StatusOutOfDate, nil
	} else if err != nil {
		return -1, frame.StatusOK, err
	}

	if imageIndex < 0 || imageIndex >= len(s.acquired) {
		return imageIndex, frame.StatusOK, nil
	}

	// The old slot was last waited on by the submission the caller waits for before it
	// submits again, so it is free for the following acquire.
	s.spare = s.acquired[imageIndex]
	s.acquired[imageIndex] = semaphore

	if res == khr_swapchain.VKSuboptimal {
		return imageIndex, frame.StatusSuboptimal, nil
	}
	return imageIndex, frame.StatusOK, nil
}

func (s *Swapchain) Present(imageIndex int, wait frame.Fence) (frame.Status, error) {
	fence, ok := wait.(*submitFence)
	if !ok {
		return frame.StatusOK, errors.AssertionFailedf("present waits on foreign fence %T", wait)
	}

	res, err := s.ctx.swapchainExtension.QueuePresent(s.ctx.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{fence.renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{s.handle},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate {
		return frame.StatusOutOfDate, nil
	} else if err != nil {
		return frame.StatusOK, err
	}

	if res == khr_swapchain.VKSuboptimal {
		return frame.StatusSuboptimal, nil
	}
	return frame.StatusOK, nil
}

func (s *Swapchain) destroy() {
	for _, semaphore := range s.acquired {
		s.ctx.deviceDriver.DestroySemaphore(semaphore, nil)
	}
	s.acquired = nil

	if s.spare.Initialized() {
		s.ctx.deviceDriver.DestroySemaphore(s.spare, nil)
		s.spare = core1_0.Semaphore{}
	}

	if s.handle.Initialized() {
		s.ctx.swapchainExtension.DestroySwapchain(s.handle, nil)
		s.handle = khr_swapchain.Swapchain{}
	}
	s.images = nil
}
