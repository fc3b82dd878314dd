package frame

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/quad/internal/input"
	"github.com/vkngwrapper/quad/internal/scene"
)

type acquireResult struct {
	index  int
	status Status
	err    error
}

// fakeGPU stands in for the device: submissions only complete when their fence is waited on,
// so any resubmission of an image before its fence was waited is caught.
type fakeGPU struct {
	t          *testing.T
	imageCount int

	acquires   []acquireResult
	presents   []Status
	presentErr error
	submitErr  error
	waitErr    error
	buildErr   error

	log       []string
	fences    []*fakeFence
	latest    map[int]*fakeFence
	presented []int
	waitIdle  int

	liveChains    int
	liveResources int
	generations   int
}

func newFakeGPU(t *testing.T, imageCount int) *fakeGPU {
	return &fakeGPU{
		t:          t,
		imageCount: imageCount,
		latest:     make(map[int]*fakeFence),
	}
}

func (g *fakeGPU) record(format string, args ...interface{}) {
	g.log = append(g.log, fmt.Sprintf(format, args...))
}

func (g *fakeGPU) unsignaled() int {
	count := 0
	for _, fence := range g.fences {
		if !fence.signaled {
			count++
		}
	}
	return count
}

type fakeFence struct {
	gpu      *fakeGPU
	image    int
	signaled bool
	waits    int
}

func (f *fakeFence) Wait() error {
	if f.gpu.waitErr != nil {
		return f.gpu.waitErr
	}

	f.signaled = true
	f.waits++
	return nil
}

type fakeSurface struct {
	extent         Extent
	pending        []Events
	polls          int
	closeAfter     int
	lastDispatcher *input.Dispatcher
}

func (s *fakeSurface) DrawableExtent() Extent {
	return s.extent
}

func (s *fakeSurface) PollEvents(dispatcher *input.Dispatcher) Events {
	s.polls++
	s.lastDispatcher = dispatcher

	if s.closeAfter > 0 && s.polls >= s.closeAfter {
		return Events{CloseRequested: true}
	}

	if len(s.pending) == 0 {
		return Events{}
	}

	events := s.pending[0]
	s.pending = s.pending[1:]
	return events
}

func (s *fakeSurface) resize(extent Extent) {
	s.extent = extent
	s.pending = append(s.pending, Events{Resized: true})
}

type fakeManager struct {
	gpu *fakeGPU
}

func (m *fakeManager) newChain(extent Extent) (Swapchain, error) {
	if extent.Empty() {
		return nil, errors.Wrapf(ErrUnsupportedExtent, "extent %s", extent)
	}

	m.gpu.liveChains++
	return &fakeChain{gpu: m.gpu, extent: extent, images: m.gpu.imageCount}, nil
}

func (m *fakeManager) Create(extent Extent) (Swapchain, error) {
	m.gpu.record("create %s", extent)
	return m.newChain(extent)
}

func (m *fakeManager) Recreate(old Swapchain, extent Extent) (Swapchain, error) {
	m.gpu.record("recreate %s", extent)

	oldChain := old.(*fakeChain)
	if oldChain.destroyed {
		m.gpu.t.Errorf("recreate from destroyed swapchain")
	}
	if n := m.gpu.unsignaled(); n > 0 {
		m.gpu.t.Errorf("recreate with %d submissions in flight", n)
	}

	chain, err := m.newChain(extent)
	if err != nil {
		return nil, err
	}

	m.destroy(oldChain)
	return chain, nil
}

func (m *fakeManager) Destroy(chain Swapchain) {
	m.gpu.record("destroy swapchain")
	m.destroy(chain.(*fakeChain))
}

func (m *fakeManager) destroy(chain *fakeChain) {
	if chain.destroyed {
		m.gpu.t.Errorf("swapchain destroyed twice")
	}
	if n := m.gpu.unsignaled(); n > 0 {
		m.gpu.t.Errorf("swapchain destroyed with %d submissions in flight", n)
	}

	chain.destroyed = true
	m.gpu.liveChains--
}

type fakeChain struct {
	gpu       *fakeGPU
	extent    Extent
	images    int
	next      int
	destroyed bool
}

func (c *fakeChain) Extent() Extent      { return c.extent }
func (c *fakeChain) ImageCount() int     { return c.images }
func (c *fakeChain) ImageFormat() string { return "B8G8R8A8SRGB" }
func (c *fakeChain) PresentMode() string { return "FIFO" }

func (c *fakeChain) AcquireNextImage() (int, Status, error) {
	if c.destroyed {
		c.gpu.t.Errorf("acquire from destroyed swapchain")
	}
	c.gpu.record("acquire")

	if len(c.gpu.acquires) > 0 {
		result := c.gpu.acquires[0]
		c.gpu.acquires = c.gpu.acquires[1:]
		return result.index, result.status, result.err
	}

	index := c.next
	c.next = (c.next + 1) % c.images
	return index, StatusOK, nil
}

func (c *fakeChain) Present(imageIndex int, wait Fence) (Status, error) {
	if c.destroyed {
		c.gpu.t.Errorf("present to destroyed swapchain")
	}
	c.gpu.record("present %d", imageIndex)

	fence := wait.(*fakeFence)
	if fence.image != imageIndex {
		c.gpu.t.Errorf("present of image %d waits on fence for image %d", imageIndex, fence.image)
	}

	if c.gpu.presentErr != nil {
		return StatusOK, c.gpu.presentErr
	}

	status := StatusOK
	if len(c.gpu.presents) > 0 {
		status = c.gpu.presents[0]
		c.gpu.presents = c.gpu.presents[1:]
	}

	if status != StatusOutOfDate {
		c.gpu.presented = append(c.gpu.presented, imageIndex)
	}
	return status, nil
}

type fakeBuilder struct {
	gpu    *fakeGPU
	scenes []scene.State
}

func (b *fakeBuilder) Build(chain Swapchain, sc scene.State) (FrameResources, error) {
	b.gpu.record("build %s", chain.Extent())
	b.scenes = append(b.scenes, sc)

	if b.gpu.buildErr != nil {
		return nil, b.gpu.buildErr
	}

	b.gpu.liveResources++
	b.gpu.generations++
	return &fakeResources{gpu: b.gpu, chain: chain.(*fakeChain)}, nil
}

type fakeResources struct {
	gpu       *fakeGPU
	chain     *fakeChain
	destroyed bool
}

func (r *fakeResources) Destroy() {
	r.gpu.record("release")

	if r.destroyed {
		r.gpu.t.Errorf("frame resources destroyed twice")
	}
	if n := r.gpu.unsignaled(); n > 0 {
		r.gpu.t.Errorf("frame resources destroyed with %d submissions in flight", n)
	}

	r.destroyed = true
	r.gpu.liveResources--
}

type fakeQueue struct {
	gpu *fakeGPU
}

func (q *fakeQueue) Submit(sub Submission) (Fence, error) {
	q.gpu.record("submit %d", sub.ImageIndex)

	if q.gpu.submitErr != nil {
		return nil, q.gpu.submitErr
	}

	resources := sub.Resources.(*fakeResources)
	if resources.destroyed {
		q.gpu.t.Errorf("submit with destroyed frame resources")
	}
	if resources.chain != sub.Swapchain {
		q.gpu.t.Errorf("submit pairs resources with a different swapchain")
	}

	if previous := q.gpu.latest[sub.ImageIndex]; previous != nil && !previous.signaled {
		q.gpu.t.Errorf("image %d submitted while its previous submission is in flight", sub.ImageIndex)
	}

	fence := &fakeFence{gpu: q.gpu, image: sub.ImageIndex}
	q.gpu.latest[sub.ImageIndex] = fence
	q.gpu.fences = append(q.gpu.fences, fence)
	return fence, nil
}

func (q *fakeQueue) WaitIdle() error {
	q.gpu.record("idle")
	q.gpu.waitIdle++
	return nil
}

type harness struct {
	sync    *Synchronizer
	gpu     *fakeGPU
	surface *fakeSurface
	builder *fakeBuilder
}

func newHarness(t *testing.T, imageCount int, extent Extent) *harness {
	t.Helper()

	gpu := newFakeGPU(t, imageCount)
	surface := &fakeSurface{extent: extent}
	builder := &fakeBuilder{gpu: gpu}

	s, err := New(Config{
		Surface:    surface,
		Swapchains: &fakeManager{gpu: gpu},
		Builder:    builder,
		Queue:      &fakeQueue{gpu: gpu},
		Scene:      scene.Quad(0.25),
	})
	if err != nil {
		t.Fatalf("new synchronizer: %+v", err)
	}

	return &harness{sync: s, gpu: gpu, surface: surface, builder: builder}
}

func (h *harness) steps(t *testing.T, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		if err := h.sync.Step(); err != nil {
			t.Fatalf("step %d: %+v", i, err)
		}
	}
}
