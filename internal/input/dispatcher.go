// Package input routes keyboard transitions to registered handlers.
package input

import "fmt"

// Key identifies a keyboard key. Values are SDL keycodes.
type Key int32

const (
	KeyEscape Key = 27
	KeySpace  Key = ' '
	KeyA      Key = 'a'
	KeyQ      Key = 'q'
)

// Edge selects which transition of a key a handler fires on.
type Edge int

const (
	// Began fires when a key goes from released to held. Auto-repeat presses do not fire it again.
	Began Edge = iota
	// Ended fires when a held key is released.
	Ended
)

func (e Edge) String() string {
	switch e {
	case Began:
		return "Began"
	case Ended:
		return "Ended"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// Filter restricts a handler to a single key. The zero Filter matches every key.
type Filter struct {
	key Key
	set bool
}

// AnyKey matches every key.
func AnyKey() Filter {
	return Filter{}
}

// OnlyKey matches a single key.
func OnlyKey(key Key) Filter {
	return Filter{key: key, set: true}
}

func (f Filter) Matches(key Key) bool {
	return !f.set || f.key == key
}

// Input is handed to a handler when it fires.
type Input struct {
	Key  Key
	Edge Edge
}

type Handler func(Input)

// KeyEvent is a raw press or release reported by the window.
type KeyEvent struct {
	Key     Key
	Pressed bool
}

type entry struct {
	filter  Filter
	edge    Edge
	handler Handler
}

// Dispatcher holds an ordered list of (filter, edge, handler) entries and the set of keys
// currently held. It is owned by the application root and handed to the event-polling step;
// it is not safe for concurrent use.
type Dispatcher struct {
	entries []entry
	held    map[Key]bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		held: make(map[Key]bool),
	}
}

// On registers handler for the given edge of every key matched by filter. Handlers fire in
// registration order.
func (d *Dispatcher) On(edge Edge, filter Filter, handler Handler) {
	if handler == nil {
		return
	}

	d.entries = append(d.entries, entry{filter: filter, edge: edge, handler: handler})
}

// Dispatch applies a raw key event and returns the number of handlers that fired.
func (d *Dispatcher) Dispatch(event KeyEvent) int {
	var edge Edge
	if event.Pressed {
		if d.held[event.Key] {
			return 0
		}
		d.held[event.Key] = true
		edge = Began
	} else {
		if !d.held[event.Key] {
			return 0
		}
		delete(d.held, event.Key)
		edge = Ended
	}

	fired := 0
	for _, e := range d.entries {
		if e.edge != edge || !e.filter.Matches(event.Key) {
			continue
		}

		e.handler(Input{Key: event.Key, Edge: edge})
		fired++
	}

	return fired
}

// Held reports whether key is currently down.
func (d *Dispatcher) Held(key Key) bool {
	return d.held[key]
}

// Reset forgets every held key without firing Ended handlers. Used when the window loses
// keyboard focus and release events will never arrive.
func (d *Dispatcher) Reset() {
	for key := range d.held {
		delete(d.held, key)
	}
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	return len(d.entries)
}
