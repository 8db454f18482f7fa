package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ResourceKind tells buffers and textures apart.
type ResourceKind uint8

const (
	// ResourceBuffer is a GPU buffer.
	ResourceBuffer ResourceKind = iota
	// ResourceTexture is a GPU texture.
	ResourceTexture
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceBuffer:
		return "buffer"
	case ResourceTexture:
		return "texture"
	default:
		return fmt.Sprintf("ResourceKind(%d)", uint8(k))
	}
}

// Resource is a GPU object referenced by recorded commands. The engine never
// owns resources; collaborators keep them alive until the buffers that
// reference them retire. Implementations must be comparable (pointer types)
// because open transitions are tracked per resource.
type Resource interface {
	ResourceKind() ResourceKind
	Label() string
}

// Handle is a backend-neutral Resource, useful for devices that only track
// identity (such as the capture backend).
type Handle struct {
	kind  ResourceKind
	label string
}

// NewBufferHandle returns a buffer handle.
func NewBufferHandle(label string) *Handle { return &Handle{kind: ResourceBuffer, label: label} }

// NewTextureHandle returns a texture handle.
func NewTextureHandle(label string) *Handle { return &Handle{kind: ResourceTexture, label: label} }

// ResourceKind implements Resource.
func (h *Handle) ResourceKind() ResourceKind { return h.kind }

// Label implements Resource.
func (h *Handle) Label() string { return h.label }

// AccessState is the intended usage of a resource. Only the field matching
// the resource kind is meaningful.
type AccessState struct {
	Texture gputypes.TextureUsage
	Buffer  gputypes.BufferUsage
}

// TextureAccess returns an AccessState for a texture usage.
func TextureAccess(u gputypes.TextureUsage) AccessState { return AccessState{Texture: u} }

// BufferAccess returns an AccessState for a buffer usage.
func BufferAccess(u gputypes.BufferUsage) AccessState { return AccessState{Buffer: u} }

// Transition is a declared change of a resource's access state.
type Transition struct {
	Resource Resource
	Before   AccessState
	After    AccessState
}

func (t Transition) String() string {
	name := "<nil>"
	if t.Resource != nil {
		name = t.Resource.ResourceKind().String() + " " + fmt.Sprintf("%q", t.Resource.Label())
	}
	return fmt.Sprintf("%s %+v -> %+v", name, t.Before, t.After)
}

// transitionTracker pairs BeginTransition with EndTransition per resource.
type transitionTracker struct {
	open  map[Resource]Transition
	order []Resource
}

func (tt *transitionTracker) begin(t Transition) error {
	if t.Resource == nil {
		return ErrNilResource
	}
	if _, ok := tt.open[t.Resource]; ok {
		return fmt.Errorf("%w: %s", ErrTransitionAlreadyBegun, t)
	}
	if tt.open == nil {
		tt.open = make(map[Resource]Transition)
	}
	tt.open[t.Resource] = t
	tt.order = append(tt.order, t.Resource)
	return nil
}

func (tt *transitionTracker) end(t Transition) error {
	if t.Resource == nil {
		return ErrNilResource
	}
	b, ok := tt.open[t.Resource]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransitionNotBegun, t)
	}
	if b.Before != t.Before || b.After != t.After {
		return fmt.Errorf("%w: begun as %s, ended as %s", ErrTransitionMismatch, b, t)
	}
	delete(tt.open, t.Resource)
	for i, r := range tt.order {
		if r == t.Resource {
			tt.order = append(tt.order[:i], tt.order[i+1:]...)
			break
		}
	}
	return nil
}

// merge adds donor's open transitions.
func (tt *transitionTracker) merge(donor *transitionTracker) error {
	for _, r := range donor.order {
		if err := tt.begin(donor.open[r]); err != nil {
			return err
		}
	}
	return nil
}

func (tt *transitionTracker) count() int { return len(tt.open) }

// first returns the oldest open transition.
func (tt *transitionTracker) first() (Transition, bool) {
	if len(tt.order) == 0 {
		return Transition{}, false
	}
	return tt.open[tt.order[0]], true
}

func (tt *transitionTracker) reset() {
	tt.open = nil
	tt.order = nil
}
