package vulkan

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// deviceBuffer is a buffer and the memory bound to it.
type deviceBuffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
}

func (c *Context) destroyBuffer(b *deviceBuffer) {
	if b.buffer.Initialized() {
		c.deviceDriver.DestroyBuffer(b.buffer, nil)
		b.buffer = core1_0.Buffer{}
	}

	if b.memory.Initialized() {
		c.deviceDriver.FreeMemory(b.memory, nil)
		b.memory = core1_0.DeviceMemory{}
	}
}

func (c *Context) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (deviceBuffer, error) {
	var result deviceBuffer
	var err error

	result.buffer, _, err = c.deviceDriver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return result, err
	}

	memRequirements := c.deviceDriver.GetBufferMemoryRequirements(result.buffer)
	memoryTypeIndex, err := c.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		return result, err
	}

	result.memory, _, err = c.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return result, err
	}

	_, err = c.deviceDriver.BindBufferMemory(result.buffer, result.memory, 0)
	return result, err
}

func (c *Context) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := c.instanceDriver.GetPhysicalDeviceMemoryProperties(c.physicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type matches filter %b with properties %s", typeFilter, properties)
}

func writeData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	bufferSize := binary.Size(data)
	if bufferSize < 0 {
		return errors.Newf("cannot encode %T", data)
	}

	memoryPtr, _, err := driver.MapMemory(memory, offset, bufferSize, 0)
	if err != nil {
		return err
	}
	defer driver.UnmapMemory(memory)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

// uploadBuffer copies data into a new device-local buffer through a host-visible staging buffer,
// waiting for the copy to finish.
func (c *Context) uploadBuffer(pool core1_0.CommandPool, data any, usage core1_0.BufferUsageFlags) (deviceBuffer, error) {
	bufferSize := binary.Size(data)
	if bufferSize <= 0 {
		return deviceBuffer{}, errors.Newf("cannot upload %T of size %d", data, bufferSize)
	}

	staging, err := c.createBuffer(bufferSize, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	defer c.destroyBuffer(&staging)
	if err != nil {
		return deviceBuffer{}, errors.Wrap(err, "create staging buffer")
	}

	err = writeData(c.deviceDriver, staging.memory, 0, data)
	if err != nil {
		return deviceBuffer{}, errors.Wrap(err, "fill staging buffer")
	}

	target, err := c.createBuffer(bufferSize, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		c.destroyBuffer(&target)
		return deviceBuffer{}, err
	}

	err = c.copyBuffer(pool, staging.buffer, target.buffer, bufferSize)
	if err != nil {
		c.destroyBuffer(&target)
		return deviceBuffer{}, errors.Wrap(err, "copy staging buffer")
	}

	return target, nil
}

func (c *Context) copyBuffer(pool core1_0.CommandPool, srcBuffer core1_0.Buffer, dstBuffer core1_0.Buffer, size int) error {
	buffers, _, err := c.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return err
	}

	buffer := buffers[0]
	defer c.deviceDriver.FreeCommandBuffers(buffer)

	_, err = c.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return err
	}

	err = c.deviceDriver.CmdCopyBuffer(buffer, srcBuffer, dstBuffer,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
	if err != nil {
		return err
	}

	_, err = c.deviceDriver.EndCommandBuffer(buffer)
	if err != nil {
		return err
	}

	_, err = c.deviceDriver.QueueSubmit(c.graphicsQueue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return err
	}

	_, err = c.deviceDriver.QueueWaitIdle(c.graphicsQueue)
	return err
}
