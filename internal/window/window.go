// Package window is the SDL2 window the swapchain presents to.
package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/quad/internal/frame"
	"github.com/vkngwrapper/quad/internal/input"
)

// Window wraps a resizable Vulkan-capable SDL window. All methods must be called from the
// thread that opened it.
type Window struct {
	window         *sdl.Window
	closeRequested bool
}

// Open initializes SDL video and creates the window.
func Open(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &Window{window: window}, nil
}

// SDL returns the underlying window for surface creation.
func (w *Window) SDL() *sdl.Window {
	return w.window
}

// DrawableExtent is zero while the window is minimized.
func (w *Window) DrawableExtent() frame.Extent {
	if (w.window.GetFlags() & sdl.WINDOW_MINIMIZED) != 0 {
		return frame.Extent{}
	}

	width, height := w.window.VulkanGetDrawableSize()
	return frame.Extent{Width: int(width), Height: int(height)}
}

// RequestClose makes the next PollEvents report a close request.
func (w *Window) RequestClose() {
	w.closeRequested = true
}

func (w *Window) PollEvents(dispatcher *input.Dispatcher) frame.Events {
	var events frame.Events

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			events.CloseRequested = true
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED,
				sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_MAXIMIZED, sdl.WINDOWEVENT_RESTORED:
				events.Resized = true
			case sdl.WINDOWEVENT_CLOSE:
				events.CloseRequested = true
			case sdl.WINDOWEVENT_FOCUS_LOST:
				// Releases are not delivered to unfocused windows.
				if dispatcher != nil {
					dispatcher.Reset()
				}
			}
		case *sdl.KeyboardEvent:
			if dispatcher != nil {
				dispatcher.Dispatch(input.KeyEvent{
					Key:     input.Key(e.Keysym.Sym),
					Pressed: e.State == sdl.PRESSED,
				})
			}
		}
	}

	if w.closeRequested {
		events.CloseRequested = true
	}

	return events
}

// Destroy closes the window and shuts SDL down.
func (w *Window) Destroy() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
