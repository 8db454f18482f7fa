// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/cache"
)

// DefaultPipelineCacheSize is the soft limit of compiled pipeline states.
const DefaultPipelineCacheSize = 64

// Option configures a Device.
type Option func(*options)

type options struct {
	name      string
	cacheSize int
	format    gputypes.TextureFormat
}

func defaultOptions() options {
	return options{
		name:      "native",
		cacheSize: DefaultPipelineCacheSize,
		format:    gputypes.TextureFormatRGBA8Unorm,
	}
}

// WithName sets the name reported by Device.Name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithPipelineCacheSize sets the soft limit of compiled pipeline states.
// Zero disables the limit.
func WithPipelineCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = max(n, 0) }
}

// WithFormat sets the color target format used by render pipeline states
// that do not name one.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		if f != gputypes.TextureFormatUndefined {
			o.format = f
		}
	}
}

// Stats are counters of a native device.
type Stats struct {
	Contexts       uint64
	Submissions    uint64
	CommandBuffers uint64
	StagingBytes   uint64

	// LastSubmission is the hal submission index of the latest Submit.
	LastSubmission uint64

	Pipelines cache.Stats
}

// Device is an rhi.Device backed by a hal device and queue.
//
// Device is safe for concurrent use: contexts are created and translated on
// worker goroutines while Submit runs on the executor's submission stage.
type Device struct {
	opts  options
	dev   hal.Device
	queue hal.Queue

	states *cache.Cache[*rhi.PipelineState, *compiled]

	mu        sync.Mutex
	open      int                      // contexts not finished yet
	pending   map[*commandList]struct{} // finished, not submitted
	graveyard []*compiled
	release   func()
	closed    bool

	logger atomic.Pointer[slog.Logger]

	contexts     atomic.Uint64
	submissions  atomic.Uint64
	cmdBuffers   atomic.Uint64
	stagingBytes atomic.Uint64
	lastIndex    atomic.Uint64
}

var _ rhi.Device = (*Device)(nil)

// Open wraps an opened hal device and its queue. The caller keeps ownership
// of both: Close releases only what the Device created.
func Open(dev hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		opts:    o,
		dev:     dev,
		queue:   queue,
		pending: make(map[*commandList]struct{}),
	}
	d.states = cache.New[*rhi.PipelineState, *compiled](o.cacheSize, func(_ *rhi.PipelineState, c *compiled) {
		d.bury(c)
	})
	d.logger.Store(rhi.Logger())
	return d, nil
}

// OpenProvider shares the device of a host application. The provider must
// also expose HalDevice() any and HalQueue() any returning hal types, as
// gogpu windows do. The surface format becomes the default target format.
// The host keeps ownership of the device.
func OpenProvider(p gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNotHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNotHAL, hp.HalQueue())
	}
	name := "provider"
	if info := p.AdapterInfo(); info.Name != "" {
		name += ":" + info.Name
	}
	opts = append([]Option{WithName(name), WithFormat(p.SurfaceFormat())}, opts...)
	return Open(dev, queue, opts...)
}

// Name implements rhi.Device.
func (d *Device) Name() string { return d.opts.name }

// Accelerators implements rhi.Device. hal devices are single-GPU.
func (d *Device) Accelerators() int { return 1 }

// SetLogger receives the executor's logger.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = rhi.Logger()
	}
	d.logger.Store(l)
}

func (d *Device) log() *slog.Logger { return d.logger.Load() }

// HAL returns the underlying hal device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.dev, d.queue }

// Stats returns the device counters.
func (d *Device) Stats() Stats {
	return Stats{
		Contexts:       d.contexts.Load(),
		Submissions:    d.submissions.Load(),
		CommandBuffers: d.cmdBuffers.Load(),
		StagingBytes:   d.stagingBytes.Load(),
		LastSubmission: d.lastIndex.Load(),
		Pipelines:      d.states.Stats(),
	}
}

// NewContext implements rhi.Device.
func (d *Device) NewContext(p rhi.Pipeline) (rhi.Context, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.open++
	d.mu.Unlock()

	label := "rhi-" + p.String()
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err == nil {
		if err = enc.BeginEncoding(label); err != nil {
			enc.Destroy()
		}
	}
	if err != nil {
		d.mu.Lock()
		d.open--
		d.mu.Unlock()
		return nil, fmt.Errorf("native: create encoder for %s: %w", p, err)
	}
	d.contexts.Add(1)
	return &passContext{d: d, pipe: p, enc: enc, mask: rhi.NewAcceleratorMask(0)}, nil
}

// Submit implements rhi.Device. It submits the lists in order and waits for
// the GPU to go idle, so a signaled rhi fence means the work completed.
func (d *Device) Submit(lists []rhi.CommandList) error {
	if len(lists) == 0 {
		return nil
	}
	own := make([]*commandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok || cl.d != d {
			return fmt.Errorf("%w: %T", ErrForeignList, l)
		}
		own = append(own, cl)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	for _, cl := range own {
		delete(d.pending, cl)
	}
	d.mu.Unlock()

	cbs := make([]hal.CommandBuffer, len(own))
	for i, cl := range own {
		cbs[i] = cl.cb
	}
	idx, err := d.queue.Submit(cbs)
	if err == nil {
		err = d.dev.WaitIdle()
	}
	for _, cl := range own {
		cl.release(d.dev)
	}
	if err != nil {
		return fmt.Errorf("native: submit: %w", err)
	}

	d.lastIndex.Store(idx)
	d.submissions.Add(1)
	d.cmdBuffers.Add(uint64(len(cbs)))
	if done := d.queue.PollCompleted(); done < idx {
		d.log().Warn("native: submission reported incomplete after idle",
			"submission", idx, "completed", done)
	}
	d.sweep()
	return nil
}

// Close destroys cached pipelines and pending lists. Devices opened by
// OpenNoop also destroy their hal device and instance. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	err := d.dev.WaitIdle()
	for cl := range pending {
		cl.release(d.dev)
	}
	d.states.Clear()

	d.mu.Lock()
	dead := d.graveyard
	d.graveyard = nil
	release := d.release
	d.release = nil
	d.mu.Unlock()
	for _, c := range dead {
		c.destroy(d.dev)
	}
	if release != nil {
		release()
	}
	d.log().Info("native: device closed", "name", d.opts.name, "submissions", d.submissions.Load())
	if err != nil {
		return errors.Join(ErrClosed, err)
	}
	return nil
}

// finished moves a context into the pending set.
func (d *Device) finished(cl *commandList) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open--
	if cl != nil {
		d.pending[cl] = struct{}{}
	}
}

// bury defers destruction of an evicted pipeline until no context can
// reference it. Called with the cache lock held.
func (d *Device) bury(c *compiled) {
	d.mu.Lock()
	d.graveyard = append(d.graveyard, c)
	d.mu.Unlock()
}

// sweep destroys buried pipelines once every context has been submitted.
func (d *Device) sweep() {
	d.mu.Lock()
	if d.open > 0 || len(d.pending) > 0 || len(d.graveyard) == 0 {
		d.mu.Unlock()
		return
	}
	dead := d.graveyard
	d.graveyard = nil
	d.mu.Unlock()

	for _, c := range dead {
		c.destroy(d.dev)
	}
	d.log().Debug("native: destroyed evicted pipelines", "count", len(dead))
}
