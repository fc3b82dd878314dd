package vulkan

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/quad/internal/frame"
	"github.com/vkngwrapper/quad/internal/scene"
	"golang.org/x/sync/errgroup"
)

func vertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := scene.Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := scene.Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

// PipelineBuilder turns a swapchain and a scene into the resources needed to draw every image
// of that swapchain.
type PipelineBuilder struct {
	ctx    *Context
	logger *slog.Logger
}

func NewPipelineBuilder(ctx *Context) *PipelineBuilder {
	return &PipelineBuilder{ctx: ctx, logger: ctx.logger}
}

// Resources is everything derived from one swapchain generation. The vertex and index buffers
// are uploaded again with each generation.
type Resources struct {
	ctx *Context

	imageViews     []core1_0.ImageView
	renderPass     core1_0.RenderPass
	pipelineLayout core1_0.PipelineLayout
	pipeline       core1_0.Pipeline
	framebuffers   []core1_0.Framebuffer

	commandPool    core1_0.CommandPool
	commandBuffers []core1_0.CommandBuffer

	vertexBuffer deviceBuffer
	indexBuffer  deviceBuffer
	indexCount   int

	// Per image: the fence of the last submission and the semaphore it signals for present.
	fences         []core1_0.Fence
	renderFinished []core1_0.Semaphore
}

func (b *PipelineBuilder) Build(chain frame.Swapchain, state scene.State) (frame.FrameResources, error) {
	sc, ok := chain.(*Swapchain)
	if !ok {
		return nil, errors.AssertionFailedf("build for foreign swapchain %T", chain)
	}

	err := state.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid scene")
	}

	r := &Resources{ctx: b.ctx, indexCount: len(state.Indices)}
	err = r.build(sc, state)
	if err != nil {
		r.Destroy()
		return nil, err
	}

	b.logger.Debug("frame resources built",
		"extent", sc.extent,
		"images", len(sc.images),
		"vertices", len(state.Vertices),
		"indices", len(state.Indices))
	return r, nil
}

func (r *Resources) build(sc *Swapchain, state scene.State) error {
	err := r.createImageViews(sc)
	if err != nil {
		return errors.Wrap(err, "create image views")
	}

	err = r.createRenderPass(sc)
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}

	err = r.createGraphicsPipeline(sc)
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline")
	}

	err = r.createFramebuffers(sc)
	if err != nil {
		return errors.Wrap(err, "create framebuffers")
	}

	r.commandPool, _, err = r.ctx.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: *r.ctx.families.graphics,
	})
	if err != nil {
		return errors.Wrap(err, "create command pool")
	}

	r.vertexBuffer, err = r.ctx.uploadBuffer(r.commandPool, state.Vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "upload vertices")
	}

	r.indexBuffer, err = r.ctx.uploadBuffer(r.commandPool, state.Indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "upload indices")
	}

	err = r.recordCommandBuffers(sc)
	if err != nil {
		return errors.Wrap(err, "record command buffers")
	}

	return r.createSyncObjects(len(sc.images))
}

func (r *Resources) createImageViews(sc *Swapchain) error {
	for _, image := range sc.images {
		view, _, err := r.ctx.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   sc.format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return err
		}

		r.imageViews = append(r.imageViews, view)
	}

	return nil
}

func (r *Resources) createRenderPass(sc *Swapchain) error {
	var err error
	r.renderPass, _, err = r.ctx.deviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         sc.format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	return err
}

func (r *Resources) loadShaders() (vert, frag core1_0.ShaderModule, err error) {
	var group errgroup.Group

	load := func(name string, module *core1_0.ShaderModule) func() error {
		return func() error {
			code, err := readShader(name)
			if err != nil {
				return err
			}

			*module, _, err = r.ctx.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
				Code: code,
			})
			return errors.Wrapf(err, "create shader module %s", name)
		}
	}

	group.Go(load("vert.spv", &vert))
	group.Go(load("frag.spv", &frag))

	err = group.Wait()
	return vert, frag, err
}

func (r *Resources) createGraphicsPipeline(sc *Swapchain) error {
	vertShader, fragShader, err := r.loadShaders()
	if vertShader.Initialized() {
		defer r.ctx.deviceDriver.DestroyShaderModule(vertShader, nil)
	}
	if fragShader.Initialized() {
		defer r.ctx.deviceDriver.DestroyShaderModule(fragShader, nil)
	}
	if err != nil {
		return err
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   vertexBindingDescriptions(),
		VertexAttributeDescriptions: vertexAttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	extent := core1_0.Extent2D{Width: sc.extent.Width, Height: sc.extent.Height}
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
		},
	}

	// Meshes loaded from disk have no agreed winding, so nothing is culled.
	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeNone,
		FrontFace:   core1_0.FrontFaceClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	r.pipelineLayout, _, err = r.ctx.deviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}

	pipelines, _, err := r.ctx.deviceDriver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			ColorBlendState:    colorBlend,
			Layout:             r.pipelineLayout,
			RenderPass:         r.renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return err
	}
	r.pipeline = pipelines[0]

	return nil
}

func (r *Resources) createFramebuffers(sc *Swapchain) error {
	for _, imageView := range r.imageViews {
		framebuffer, _, err := r.ctx.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  r.renderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{imageView},
			Width:       sc.extent.Width,
			Height:      sc.extent.Height,
		})
		if err != nil {
			return err
		}

		r.framebuffers = append(r.framebuffers, framebuffer)
	}

	return nil
}

func (r *Resources) recordCommandBuffers(sc *Swapchain) error {
	buffers, _, err := r.ctx.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: len(sc.images),
	})
	if err != nil {
		return err
	}
	r.commandBuffers = buffers

	extent := core1_0.Extent2D{Width: sc.extent.Width, Height: sc.extent.Height}
	for bufferIdx, buffer := range buffers {
		_, err = r.ctx.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
		if err != nil {
			return err
		}

		err = r.ctx.deviceDriver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
			core1_0.RenderPassBeginInfo{
				RenderPass:  r.renderPass,
				Framebuffer: r.framebuffers[bufferIdx],
				RenderArea: core1_0.Rect2D{
					Offset: core1_0.Offset2D{X: 0, Y: 0},
					Extent: extent,
				},
				ClearValues: []core1_0.ClearValue{
					core1_0.ClearValueFloat{0, 0, 0, 1},
				},
			})
		if err != nil {
			return err
		}

		r.ctx.deviceDriver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, r.pipeline)
		r.ctx.deviceDriver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{r.vertexBuffer.buffer}, []int{0})
		r.ctx.deviceDriver.CmdBindIndexBuffer(buffer, r.indexBuffer.buffer, 0, core1_0.IndexTypeUInt32)
		r.ctx.deviceDriver.CmdDrawIndexed(buffer, r.indexCount, 1, 0, 0, 0)
		r.ctx.deviceDriver.CmdEndRenderPass(buffer)

		_, err = r.ctx.deviceDriver.EndCommandBuffer(buffer)
		if err != nil {
			return err
		}
	}

	return nil
}

// createSyncObjects makes one unsignaled fence and one render-finished semaphore per image.
func (r *Resources) createSyncObjects(imageCount int) error {
	for i := 0; i < imageCount; i++ {
		fence, _, err := r.ctx.deviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create fence")
		}
		r.fences = append(r.fences, fence)

		semaphore, _, err := r.ctx.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create render finished semaphore")
		}
		r.renderFinished = append(r.renderFinished, semaphore)
	}

	return nil
}

// Destroy releases everything in the generation. The device must not be using any of it.
func (r *Resources) Destroy() {
	driver := r.ctx.deviceDriver

	for _, semaphore := range r.renderFinished {
		driver.DestroySemaphore(semaphore, nil)
	}
	r.renderFinished = nil

	for _, fence := range r.fences {
		driver.DestroyFence(fence, nil)
	}
	r.fences = nil

	if len(r.commandBuffers) > 0 {
		driver.FreeCommandBuffers(r.commandBuffers...)
		r.commandBuffers = nil
	}

	r.ctx.destroyBuffer(&r.indexBuffer)
	r.ctx.destroyBuffer(&r.vertexBuffer)

	if r.commandPool.Initialized() {
		driver.DestroyCommandPool(r.commandPool, nil)
		r.commandPool = core1_0.CommandPool{}
	}

	for _, framebuffer := range r.framebuffers {
		driver.DestroyFramebuffer(framebuffer, nil)
	}
	r.framebuffers = nil

	if r.pipeline.Initialized() {
		driver.DestroyPipeline(r.pipeline, nil)
		r.pipeline = core1_0.Pipeline{}
	}

	if r.pipelineLayout.Initialized() {
		driver.DestroyPipelineLayout(r.pipelineLayout, nil)
		r.pipelineLayout = core1_0.PipelineLayout{}
	}

	if r.renderPass.Initialized() {
		driver.DestroyRenderPass(r.renderPass, nil)
		r.renderPass = core1_0.RenderPass{}
	}

	for _, imageView := range r.imageViews {
		driver.DestroyImageView(imageView, nil)
	}
	r.imageViews = nil
}
