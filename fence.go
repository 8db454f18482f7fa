package rhi

import (
	"context"
	"sync/atomic"
)

// Completion is an opaque handle that becomes done exactly once.
// *Fence implements it; producers may supply their own (for example a
// channel closed by another subsystem) as buffer prerequisites.
type Completion interface {
	Done() <-chan struct{}
}

// Fence is a signal-once, wait-many completion token. It may carry the
// error of the work it tracks.
type Fence struct {
	label    string
	done     chan struct{}
	signaled atomic.Bool
	err      error
}

// NewFence returns an unsignaled fence.
func NewFence(label string) *Fence {
	return &Fence{label: label, done: make(chan struct{})}
}

// Label returns the fence label.
func (f *Fence) Label() string { return f.label }

// Signal completes the fence with err. Signaling twice panics.
func (f *Fence) Signal(err error) {
	if !f.signaled.CompareAndSwap(false, true) {
		panic("rhi: fence " + f.label + " signaled twice")
	}
	f.err = err
	close(f.done)
}

// Done returns a channel closed when the fence is signaled.
func (f *Fence) Done() <-chan struct{} { return f.done }

// Signaled reports whether the fence has been signaled.
func (f *Fence) Signaled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the error the fence was signaled with, or nil when unsignaled.
func (f *Fence) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the fence is signaled or ctx is done.
// Waiting on a signaled fence returns immediately with the same result.
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
