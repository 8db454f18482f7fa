// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package capture provides an in-memory rhi.Device that records every
// context call as an Event.
//
// Events of a context stay private until its list is submitted; Submit
// appends them to the device log in submission order and numbers them. The
// log therefore shows exactly what the device would have executed, in the
// order it would have executed it.
//
//	dev := capture.New(capture.WithAccelerators(2))
//	exec, _ := rhi.NewExecutor(dev)
//	...
//	for _, ev := range dev.Log() {
//	    fmt.Println(ev)
//	}
//
// Importing the package registers the "capture" backend.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend"
)

// BackendCapture is the registry name of the capture device.
const BackendCapture = "capture"

func init() {
	backend.Register(BackendCapture, func() (rhi.Device, error) {
		return New(), nil
	})
}

// ErrMaskOutOfRange is returned for masks naming accelerators the device
// does not have.
var ErrMaskOutOfRange = errors.New("capture: accelerator mask out of range")

// EventKind identifies a context call.
type EventKind uint8

const (
	KindMask EventKind = iota
	KindPipelineState
	KindBeginRenderPass
	KindEndRenderPass
	KindDraw
	KindDrawIndexed
	KindDispatch
	KindCopyBuffer
	KindUpdateBuffer
	KindBeginTransition
	KindEndTransition
	KindBeginBreadcrumb
	KindEndBreadcrumb

	numKinds
)

var kindNames = [numKinds]string{
	KindMask:            "mask",
	KindPipelineState:   "state",
	KindBeginRenderPass: "begin-pass",
	KindEndRenderPass:   "end-pass",
	KindDraw:            "draw",
	KindDrawIndexed:     "draw-indexed",
	KindDispatch:        "dispatch",
	KindCopyBuffer:      "copy",
	KindUpdateBuffer:    "update",
	KindBeginTransition: "begin-transition",
	KindEndTransition:   "end-transition",
	KindBeginBreadcrumb: "begin-crumb",
	KindEndBreadcrumb:   "end-crumb",
}

func (k EventKind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is one device-visible call.
type Event struct {
	// Seq numbers events in submission order, starting at 1.
	Seq      uint64
	Pipeline rhi.Pipeline
	Mask     rhi.AcceleratorMask
	Kind     EventKind
	Detail   string
	// Breadcrumb is the path of the innermost open breadcrumb on the
	// context when the call was made, or "".
	Breadcrumb string
}

func (e Event) String() string {
	s := fmt.Sprintf("#%d %s %s %s", e.Seq, e.Pipeline, e.Mask, e.Kind)
	if e.Detail != "" {
		s += " " + e.Detail
	}
	if e.Breadcrumb != "" {
		s += " @" + e.Breadcrumb
	}
	return s
}

// Option configures a Device.
type Option func(*Device)

// WithAccelerators sets the number of accelerators (default 1).
func WithAccelerators(n int) Option {
	return func(d *Device) { d.accelerators = min(max(n, 1), rhi.MaxAccelerators) }
}

// WithName sets the device name (default "capture").
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// Device records events. It is safe for concurrent use.
type Device struct {
	name         string
	accelerators int

	mu          sync.Mutex
	log         []Event
	submissions int
	failures    map[EventKind]error
	failSubmit  error

	logger   atomic.Pointer[slog.Logger]
	contexts atomic.Int64
}

var _ rhi.Device = (*Device)(nil)

// New creates a capture device.
func New(opts ...Option) *Device {
	d := &Device{name: BackendCapture, accelerators: 1}
	for _, opt := range opts {
		opt(d)
	}
	d.logger.Store(rhi.Logger())
	return d
}

// Name implements rhi.Device.
func (d *Device) Name() string { return d.name }

// Accelerators implements rhi.Device.
func (d *Device) Accelerators() int { return d.accelerators }

// SetLogger receives the executor's logger.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = rhi.Logger()
	}
	d.logger.Store(l)
}

// NewContext implements rhi.Device.
func (d *Device) NewContext(p rhi.Pipeline) (rhi.Context, error) {
	d.contexts.Add(1)
	return &captureContext{
		d:    d,
		list: &captureList{pipe: p},
		mask: rhi.DefaultAcceleratorMask,
	}, nil
}

// Submit implements rhi.Device.
func (d *Device) Submit(lists []rhi.CommandList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSubmit != nil {
		return d.failSubmit
	}
	own := make([]*captureList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*captureList)
		if !ok {
			return fmt.Errorf("capture: foreign command list %T", l)
		}
		own = append(own, cl)
	}
	n := 0
	for _, cl := range own {
		for _, ev := range cl.events {
			ev.Seq = uint64(len(d.log) + 1)
			d.log = append(d.log, ev)
			n++
		}
	}
	d.submissions++
	d.logger.Load().Debug("capture: submit", "device", d.name, "lists", len(own), "events", n)
	return nil
}

// FailOn makes every later context call of kind return err. A nil err
// clears the failure.
func (d *Device) FailOn(kind EventKind, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, kind)
		return
	}
	if d.failures == nil {
		d.failures = make(map[EventKind]error)
	}
	d.failures[kind] = err
}

// FailSubmit makes later Submit calls return err. A nil err clears it.
func (d *Device) FailSubmit(err error) {
	d.mu.Lock()
	d.failSubmit = err
	d.mu.Unlock()
}

func (d *Device) failure(kind EventKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures[kind]
}

// Log returns a copy of the submitted events.
func (d *Device) Log() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.log))
	copy(out, d.log)
	return out
}

// Events returns the submitted events of the given kinds, or all events
// when no kind is given.
func (d *Device) Events(kinds ...EventKind) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for _, ev := range d.log {
		if len(kinds) == 0 {
			out = append(out, ev)
			continue
		}
		for _, k := range kinds {
			if ev.Kind == k {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// Draws returns the number of submitted draw and indexed draw events.
func (d *Device) Draws() int {
	return len(d.Events(KindDraw, KindDrawIndexed))
}

// Submissions returns the number of successful Submit calls.
func (d *Device) Submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions
}

// Contexts returns the number of contexts created.
func (d *Device) Contexts() int { return int(d.contexts.Load()) }

// Reset clears the log, counters and injected failures.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
	d.submissions = 0
	d.failures = nil
	d.failSubmit = nil
	d.contexts.Store(0)
}
