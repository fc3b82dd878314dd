package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/quad/internal/frame"
)

// Queue submits recorded frames to the graphics queue.
type Queue struct {
	ctx *Context
}

func NewQueue(ctx *Context) *Queue {
	return &Queue{ctx: ctx}
}

// Submit resets the image's fence and submits its command buffer. The submission waits on the
// semaphore its acquire signaled and signals the image's render-finished semaphore.
func (q *Queue) Submit(sub frame.Submission) (frame.Fence, error) {
	chain, ok := sub.Swapchain.(*Swapchain)
	if !ok {
		return nil, errors.AssertionFailedf("submit to foreign swapchain %T", sub.Swapchain)
	}

	resources, ok := sub.Resources.(*Resources)
	if !ok {
		return nil, errors.AssertionFailedf("submit with foreign resources %T", sub.Resources)
	}

	i := sub.ImageIndex
	if i < 0 || i >= len(resources.commandBuffers) || i >= len(chain.acquired) {
		return nil, errors.Newf("image index %d out of range", i)
	}

	fence := resources.fences[i]
	_, err := q.ctx.deviceDriver.ResetFences(fence)
	if err != nil {
		return nil, errors.Wrap(err, "reset fence")
	}

	_, err = q.ctx.deviceDriver.QueueSubmit(q.ctx.graphicsQueue, &fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{chain.acquired[i]},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{resources.commandBuffers[i]},
			SignalSemaphores: []core1_0.Semaphore{resources.renderFinished[i]},
		},
	)
	if err != nil {
		return nil, err
	}

	return &submitFence{
		driver:         q.ctx.deviceDriver,
		fence:          fence,
		renderFinished: resources.renderFinished[i],
	}, nil
}

func (q *Queue) WaitIdle() error {
	return q.ctx.WaitIdle()
}

// submitFence is the fence of one submission and the semaphore that submission signals.
type submitFence struct {
	driver         core1_0.DeviceDriver
	fence          core1_0.Fence
	renderFinished core1_0.Semaphore
}

func (f *submitFence) Wait() error {
	_, err := f.driver.WaitForFences(true, common.NoTimeout, f.fence)
	return err
}
