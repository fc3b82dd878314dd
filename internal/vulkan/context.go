// Package vulkan implements the swapchain, resource and queue collaborators of the frame
// synchronizer on top of vkngwrapper.
package vulkan

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Options struct {
	ApplicationName string
	Validation      bool
	Logger          *slog.Logger
}

type queueFamilies struct {
	graphics *int
	present  *int
}

func (q queueFamilies) complete() bool {
	return q.graphics != nil && q.present != nil
}

// Context owns the instance, the window surface, the logical device and its queues. Everything
// else in the package borrows from it and must be destroyed before Close.
type Context struct {
	logger *slog.Logger

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	deviceName     string
	families       queueFamilies

	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue

	swapchainExtension khr_swapchain.ExtensionDriver
}

// NewContext brings up Vulkan for window, which must have been created with sdl.WINDOW_VULKAN.
// On error everything created so far is released.
func NewContext(window *sdl.Window, opts Options) (*Context, error) {
	ctx := &Context{logger: opts.Logger}
	if ctx.logger == nil {
		ctx.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var err error
	ctx.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}

	err = ctx.init(window, opts)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	return ctx, nil
}

func (c *Context) init(window *sdl.Window, opts Options) error {
	err := c.createInstance(window, opts)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}

	if opts.Validation {
		c.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
		c.debugMessenger, _, err = c.debugDriver.CreateDebugUtilsMessenger(nil, c.debugMessengerOptions())
		if err != nil {
			return errors.Wrap(err, "create debug messenger")
		}
	}

	c.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
	c.surface, err = vkng_sdl2.CreateSurface(c.instanceDriver.Instance(), c.surfaceExtension, window)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	err = c.pickPhysicalDevice()
	if err != nil {
		return err
	}

	err = c.createLogicalDevice()
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}

	c.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(c.deviceDriver)

	c.logger.Info("vulkan device ready",
		"device", c.deviceName,
		"graphics_family", *c.families.graphics,
		"present_family", *c.families.present,
		"validation", opts.Validation)
	return nil
}

func (c *Context) createInstance(window *sdl.Window, opts Options) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := window.VulkanGetInstanceExtensions()
	extensions, _, err := c.globalDriver.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("cannot initialize sdl: missing extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := c.globalDriver.AvailableLayers()
		if err != nil {
			return err
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("validation layer %s not available, install the Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers messages from instance creation and destruction.
		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.instanceDriver, _, err = c.globalDriver.CreateInstance(nil, instanceOptions)
	return err
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}

	c.logger.Log(context.Background(), level, data.Message, "type", msgType)
	return false
}

type deviceCandidate struct {
	device   core1_0.PhysicalDevice
	name     string
	rank     int
	families queueFamilies
}

// deviceRank orders device types from most to least preferred.
func deviceRank(deviceType core1_0.PhysicalDeviceType) int {
	switch deviceType {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		return 0
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		return 1
	case core1_0.PhysicalDeviceTypeVirtualGPU:
		return 2
	case core1_0.PhysicalDeviceTypeCPU:
		return 3
	default:
		return 4
	}
}

func (c *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := c.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	var candidates []deviceCandidate
	for _, device := range physicalDevices {
		families, suitable := c.isDeviceSuitable(device)
		if !suitable {
			continue
		}

		properties, err := c.instanceDriver.GetPhysicalDeviceProperties(device)
		if err != nil {
			return errors.Wrap(err, "read device properties")
		}

		candidates = append(candidates, deviceCandidate{
			device:   device,
			name:     properties.DeviceName,
			rank:     deviceRank(properties.DeviceType),
			families: families,
		})
	}

	if len(candidates) == 0 {
		return errors.New("failed to find a suitable GPU")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rank < candidates[j].rank
	})

	chosen := candidates[0]
	c.physicalDevice = chosen.device
	c.deviceName = chosen.name
	c.families = chosen.families
	return nil
}

func (c *Context) isDeviceSuitable(device core1_0.PhysicalDevice) (queueFamilies, bool) {
	families, err := c.findQueueFamilies(device)
	if err != nil || !families.complete() {
		return families, false
	}

	if !c.checkDeviceExtensionSupport(device) {
		return families, false
	}

	support, err := c.querySwapchainSupport(device)
	if err != nil {
		return families, false
	}

	return families, len(support.formats) > 0 && len(support.presentModes) > 0
}

func (c *Context) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

// findQueueFamilies prefers a single family that can both draw and present.
func (c *Context) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilies, error) {
	families := queueFamilies{}
	queueFamilyProps := c.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for familyIdx, family := range queueFamilyProps {
		graphics := family.QueueFlags&core1_0.QueueGraphics != 0
		present, _, err := c.surfaceExtension.GetPhysicalDeviceSurfaceSupport(c.surface, device, familyIdx)
		if err != nil {
			return families, err
		}

		if graphics && present {
			idx := familyIdx
			return queueFamilies{graphics: &idx, present: &idx}, nil
		}

		if graphics && families.graphics == nil {
			idx := familyIdx
			families.graphics = &idx
		}
		if present && families.present == nil {
			idx := familyIdx
			families.present = &idx
		}
	}

	return families, nil
}

type swapchainSupport struct {
	capabilities *khr_surface.SurfaceCapabilities
	formats      []khr_surface.SurfaceFormat
	presentModes []khr_surface.PresentMode
}

func (c *Context) querySwapchainSupport(device core1_0.PhysicalDevice) (swapchainSupport, error) {
	var support swapchainSupport
	var err error

	support.capabilities, _, err = c.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(c.surface, device)
	if err != nil {
		return support, err
	}

	support.formats, _, err = c.surfaceExtension.GetPhysicalDeviceSurfaceFormats(c.surface, device)
	if err != nil {
		return support, err
	}

	support.presentModes, _, err = c.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(c.surface, device)
	return support, err
}

func (c *Context) createLogicalDevice() error {
	uniqueFamilies := []int{*c.families.graphics}
	if uniqueFamilies[0] != *c.families.present {
		uniqueFamilies = append(uniqueFamilies, *c.families.present)
	}

	var queueOptions []core1_0.DeviceQueueCreateInfo
	for _, family := range uniqueFamilies {
		queueOptions = append(queueOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string(nil), deviceExtensions...)

	// Required on MoltenVK.
	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(c.physicalDevice)
	if err != nil {
		return err
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.deviceDriver, _, err = c.instanceDriver.CreateDevice(c.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}

	c.graphicsQueue = c.deviceDriver.GetQueue(*c.families.graphics, 0)
	c.presentQueue = c.deviceDriver.GetQueue(*c.families.present, 0)
	return nil
}

// sharing returns the image sharing mode for swapchain images used by both queue families.
func (c *Context) sharing() (core1_0.SharingMode, []int) {
	if *c.families.graphics == *c.families.present {
		return core1_0.SharingModeExclusive, nil
	}

	return core1_0.SharingModeConcurrent, []int{*c.families.graphics, *c.families.present}
}

func (c *Context) DeviceName() string {
	return c.deviceName
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *Context) WaitIdle() error {
	if c.deviceDriver == nil {
		return nil
	}

	_, err := c.deviceDriver.DeviceWaitIdle()
	return err
}

// Close destroys the device, surface and instance. Swapchains and frame resources must already
// be destroyed.
func (c *Context) Close() {
	if c.deviceDriver != nil {
		c.deviceDriver.DestroyDevice(nil)
		c.deviceDriver = nil
	}

	if c.debugMessenger.Initialized() {
		c.debugDriver.DestroyDebugUtilsMessenger(c.debugMessenger, nil)
		c.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if c.surface.Initialized() {
		c.surfaceExtension.DestroySurface(c.surface, nil)
		c.surface = khr_surface.Surface{}
	}

	if c.instanceDriver != nil {
		c.instanceDriver.DestroyInstance(nil)
		c.instanceDriver = nil
	}
}
