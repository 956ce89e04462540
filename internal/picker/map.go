package picker

import (
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// Control is an overlay that injects elements and listeners into a map.
// Attach registers everything through the binding; whatever was registered is
// torn down when the binding is released.
type Control interface {
	Name() string
	Attach(b *ControlBinding) error
}

// Map is the external handle to a map instance. Controls attach to it through
// scoped bindings instead of extending it.
type Map struct {
	view *Viewport

	mu        sync.Mutex
	elements  map[string]string // element id -> control name
	listeners map[uint64]func(domain.Coordinates)
	nextID    uint64
	bindings  map[*ControlBinding]struct{}
}

// NewMap wraps a viewport.
func NewMap(view *Viewport) *Map {
	return &Map{
		view:      view,
		elements:  make(map[string]string),
		listeners: make(map[uint64]func(domain.Coordinates)),
		bindings:  make(map[*ControlBinding]struct{}),
	}
}

// View returns the underlying viewport.
func (m *Map) View() *Viewport { return m.view }

// Attach binds c to the map. Attachment is all-or-nothing: if c.Attach fails,
// everything it registered is released before the error is returned.
func (m *Map) Attach(c Control) (*ControlBinding, error) {
	b := &ControlBinding{m: m, name: c.Name()}

	m.mu.Lock()
	m.bindings[b] = struct{}{}
	m.mu.Unlock()

	if err := c.Attach(b); err != nil {
		b.Release()
		return nil, fmt.Errorf("attach %s: %w", c.Name(), err)
	}
	return b, nil
}

// Click dispatches a click at p to every registered listener, in registration
// order. It reports how many listeners ran.
func (m *Map) Click(p domain.Coordinates) int {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(domain.Coordinates), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
	return len(fns)
}

// Elements lists the ids of all injected overlay elements, sorted.
func (m *Map) Elements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.elements))
	for id := range m.elements {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Listeners reports the number of registered click listeners.
func (m *Map) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Bindings reports the number of live control bindings.
func (m *Map) Bindings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bindings)
}

// ControlBinding pairs one attached control with the elements and listeners it
// owns on the map.
type ControlBinding struct {
	m    *Map
	name string

	mu       sync.Mutex
	released bool
	elements []string
	cleanups []func()
}

// Map returns the map the control is attached to.
func (b *ControlBinding) Map() *Map { return b.m }

// Name returns the name of the bound control.
func (b *ControlBinding) Name() string { return b.name }

// AddElement injects an overlay element with a map-unique id.
func (b *ControlBinding) AddElement(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrBindingReleased
	}

	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	if owner, ok := b.m.elements[id]; ok {
		return fmt.Errorf("%w: %q owned by %s", ErrElementExists, id, owner)
	}
	b.m.elements[id] = b.name
	b.elements = append(b.elements, id)
	return nil
}

// OnClick registers a map click listener owned by this binding.
func (b *ControlBinding) OnClick(fn func(domain.Coordinates)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrBindingReleased
	}

	b.m.mu.Lock()
	b.m.nextID++
	id := b.m.nextID
	b.m.listeners[id] = fn
	b.m.mu.Unlock()

	b.cleanups = append(b.cleanups, func() {
		b.m.mu.Lock()
		delete(b.m.listeners, id)
		b.m.mu.Unlock()
	})
	return nil
}

// Defer registers fn to run on release, after listeners registered before it
// have been removed (cleanups run in reverse order).
func (b *ControlBinding) Defer(fn func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrBindingReleased
	}
	b.cleanups = append(b.cleanups, fn)
	return nil
}

// Release tears down everything the control registered. Safe to call more
// than once.
func (b *ControlBinding) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	cleanups := b.cleanups
	elements := b.elements
	b.cleanups, b.elements = nil, nil
	b.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	b.m.mu.Lock()
	for _, id := range elements {
		delete(b.m.elements, id)
	}
	delete(b.m.bindings, b)
	b.m.mu.Unlock()
}

// Released reports whether Release has run.
func (b *ControlBinding) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}
