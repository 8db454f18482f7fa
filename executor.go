// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/rhi/breadcrumb"
	"github.com/gogpu/rhi/internal/parallel"
	"github.com/gogpu/rhi/internal/pipe"
)

// ExecutorState is the coarse state of an Executor.
type ExecutorState uint32

const (
	// ExecutorIdle has no submission in flight.
	ExecutorIdle ExecutorState = iota
	// ExecutorAccepting has submissions queued in the dispatch pipe.
	ExecutorAccepting
	// ExecutorTranslating is replaying a submission.
	ExecutorTranslating
	// ExecutorSubmitting is handing lists to the device.
	ExecutorSubmitting
)

var executorStateNames = [...]string{
	ExecutorIdle:        "Idle",
	ExecutorAccepting:   "Accepting",
	ExecutorTranslating: "Translating",
	ExecutorSubmitting:  "Submitting",
}

func (s ExecutorState) String() string {
	if int(s) < len(executorStateNames) {
		return executorStateNames[s]
	}
	return fmt.Sprintf("ExecutorState(%d)", uint32(s))
}

// translateResult is the output of one translate task.
type translateResult struct {
	lists []CommandList
	stats Stats
	marks []breadcrumb.Mark
	err   error
}

// translateTask is a parallel translate task. res is valid once done is
// closed.
type translateTask struct {
	done chan struct{}
	res  translateResult
}

// plan is one submitted buffer and how it is translated.
type plan struct {
	buf      *CommandBuffer
	strategy Strategy
	tasks    []*translateTask
}

// Executor turns closed command buffers into device submissions.
//
// Submissions enter a dispatch pipe and reach the device in the order Submit
// was called. Buffers selected for parallel translation start replaying on
// the worker pool right away; their lists are still submitted in order.
//
// Executor is safe for concurrent use. Each Executor owns an immediate buffer
// for bottom-of-pipe work.
type Executor struct {
	dev    Device
	cfg    Config
	tracer trace.Tracer
	pool   *parallel.WorkerPool
	pipe   *pipe.Pipe

	imm    *immediateContext
	immBuf *CommandBuffer

	state atomic.Uint32

	mu     sync.Mutex
	closed bool
	stats  Stats
	lost   error
}

// NewExecutor creates an executor for dev.
func NewExecutor(dev Device, opts ...Option) (*Executor, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	o := defaultExecutorOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	e := &Executor{
		dev:    dev,
		cfg:    o.cfg,
		tracer: tp.Tracer(tracerName),
		pipe:   pipe.New(),
	}
	if o.cfg.policy().AllowParallel {
		e.pool = parallel.NewWorkerPool(o.cfg.TranslateWorkers)
	}
	e.immBuf = newCommandBuffer(e, "immediate", true)
	e.imm = newImmediateContext(dev, e.immBuf.crumbs.Root())

	propagateLogger(dev, Logger())
	Logger().Info("rhi: executor created",
		"device", dev.Name(),
		"accelerators", dev.Accelerators(),
		"bypass", o.cfg.Bypass,
		"parallel", o.cfg.policy().AllowParallel)
	return e, nil
}

// NewCommandBuffer returns an empty buffer in the Recording state.
func (e *Executor) NewCommandBuffer(name string) *CommandBuffer {
	return newCommandBuffer(e, name, false)
}

// Immediate returns the executor's immediate buffer. Commands recorded into
// it execute at once and are submitted ahead of the next submission.
//
// The immediate buffer's recording state (active pipelines, accelerator
// mask, pipeline states) is not synchronized: it belongs to one goroutine at
// a time, like any other CommandBuffer. Execution itself is serialized.
func (e *Executor) Immediate() *CommandBuffer { return e.immBuf }

// Config returns the executor configuration.
func (e *Executor) Config() Config { return e.cfg }

// Device returns the device the executor submits to.
func (e *Executor) Device() Device { return e.dev }

// State returns the executor state.
func (e *Executor) State() ExecutorState { return ExecutorState(e.state.Load()) }

// Pending returns the number of submissions not yet retired.
func (e *Executor) Pending() int { return e.pipe.Pending() }

// Stats returns accumulated statistics.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Err returns the device failure that poisoned the executor, if any.
func (e *Executor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lost
}

// Submit queues closed buffers for translation and submission, and returns a
// fence signaled once they reached the device or failed. Submit never waits
// for translation. Submitting a buffer that is not closed, that belongs to
// another executor, or the immediate buffer is fatal.
//
// Calling Submit with no buffers flushes pending immediate work.
func (e *Executor) Submit(ctx context.Context, bufs ...*CommandBuffer) *Fence {
	for _, b := range bufs {
		switch {
		case b == nil:
			fatal(&FatalError{Op: "Submit", Err: errors.New("rhi: nil command buffer")})
		case b.immediate:
			b.fail("Submit", ErrImmediateBuffer)
		case b.exec != e:
			b.fail("Submit", ErrForeignBuffer)
		case b.State() != BufferClosed:
			b.fail("Submit", fmt.Errorf("%w (state %s)", ErrBufferNotClosed, b.State()))
		}
	}

	f := NewFence("submit")
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		for _, b := range bufs {
			b.retire(ErrExecutorClosed)
		}
		f.Signal(ErrExecutorClosed)
		return f
	}

	ctx, span := e.startSubmitSpan(ctx, bufs)
	e.state.CompareAndSwap(uint32(ExecutorIdle), uint32(ExecutorAccepting))

	plans := make([]*plan, 0, len(bufs))
	policy := e.cfg.policy()
	for _, b := range bufs {
		b.state.Store(uint32(BufferDispatched))
		p := &plan{buf: b, strategy: SelectStrategy(policy, b.facts())}
		if p.strategy == StrategyParallel {
			chunks := b.chunks(true)
			for _, c := range chunks {
				t := &translateTask{done: make(chan struct{})}
				p.tasks = append(p.tasks, t)
				whole := len(chunks) == 1
				e.spawn(b, func() {
					defer close(t.done)
					t.res = e.translate(ctx, b, c, whole)
				})
			}
		}
		Logger().Debug("rhi: buffer dispatched",
			"buffer", b.name,
			"commands", b.numCommands,
			"strategy", p.strategy,
			"tasks", len(p.tasks))
		plans = append(plans, p)
	}

	e.pipe.Launch(func() {
		err := e.runUnit(ctx, plans)
		endSpan(span, err)
		span.End()
		f.Signal(err)
	})
	return f
}

// spawn runs a translate task on the pool. Tasks of buffers with
// prerequisites wait for them off the pool, so blocked tasks never occupy
// workers.
func (e *Executor) spawn(b *CommandBuffer, task func()) {
	run := func() {
		if !e.pool.Submit(task) {
			task()
		}
	}
	if len(b.prereqs) > 0 {
		go func() {
			for _, c := range b.prereqs {
				<-c.Done()
			}
			run()
		}()
		return
	}
	run()
}

// Flush submits pending immediate work and waits until everything submitted
// before it has reached the device.
func (e *Executor) Flush(ctx context.Context) error {
	return e.Submit(ctx).Wait(ctx)
}

// Close flushes, stops accepting submissions and stops the worker pool.
// Submissions after Close fail with ErrExecutorClosed.
func (e *Executor) Close() error {
	ctx := context.Background()
	err := e.Flush(ctx)

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	if werr := e.pipe.Wait(ctx); werr != nil && err == nil {
		err = werr
	}
	if e.pool != nil {
		e.pool.Close()
	}
	st := e.Stats()
	Logger().Info("rhi: executor closed",
		"device", e.dev.Name(),
		"submissions", st.Submissions,
		"failed", st.FailedSubmissions,
		"commands", st.Commands)
	return err
}

// runUnit translates the serial buffers of one submission, collects the
// parallel results and submits all lists once. It runs inside the dispatch
// pipe, so units never overlap.
func (e *Executor) runUnit(ctx context.Context, plans []*plan) error {
	e.state.Store(uint32(ExecutorTranslating))

	results := []translateResult{e.imm.take()}
	for _, p := range plans {
		if p.strategy == StrategySerial {
			r := e.translate(ctx, p.buf, p.buf.chunks(false)[0], true)
			if r.err == nil {
				r.stats.SerialBuffers++
			}
			results = append(results, r)
			continue
		}
		for _, t := range p.tasks {
			<-t.done
			if t.res.err == nil {
				t.res.stats.ParallelTasks++
			}
			results = append(results, t.res)
		}
	}

	var (
		lists []CommandList
		marks []breadcrumb.Mark
		stats Stats
		errs  []error
	)
	for _, r := range results {
		lists = append(lists, r.lists...)
		marks = append(marks, r.marks...)
		stats.add(r.stats)
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	stats.Buffers = uint64(len(plans))
	err := errors.Join(errs...)

	e.state.Store(uint32(ExecutorSubmitting))
	e.mu.Lock()
	lost := e.lost
	e.mu.Unlock()
	switch {
	case lost != nil:
		err = fmt.Errorf("%w: %w", ErrDeviceLost, lost)
	case err == nil && len(lists) > 0:
		err = e.submitLists(lists)
		if err == nil {
			stats.Submissions++
		}
	}

	if err == nil {
		breadcrumb.Apply(breadcrumb.GPU, marks)
	} else {
		stats.FailedSubmissions++
		Logger().Warn("rhi: submission failed", "buffers", len(plans), "lists", len(lists), "err", err)
	}

	e.mu.Lock()
	e.stats.add(stats)
	if err != nil && e.lost == nil && !isContextErr(err) {
		e.lost = err
		Logger().Warn("rhi: executor poisoned", "device", e.dev.Name(), "err", err)
	}
	e.mu.Unlock()

	for _, p := range plans {
		p.buf.retire(err)
	}
	if e.pipe.Pending() <= 1 {
		e.state.Store(uint32(ExecutorIdle))
	} else {
		e.state.Store(uint32(ExecutorAccepting))
	}
	return err
}

func (e *Executor) submitLists(lists []CommandList) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rhi: device submit panicked: %w", recoverError(r))
		}
	}()
	if err := e.dev.Submit(lists); err != nil {
		return fmt.Errorf("rhi: submit to %s: %w", e.dev.Name(), err)
	}
	return nil
}

// translate replays one chunk of b. A whole-buffer chunk marks b as
// replaying, so closures that record into b execute immediately.
func (e *Executor) translate(ctx context.Context, b *CommandBuffer, c chunk, whole bool) (res translateResult) {
	ctx, span := e.startTranslateSpan(ctx, b, whole)
	defer span.End()

	rp := newReplayer(e.dev, b.crumbs.Root(), c.snap)
	b.state.Store(uint32(BufferReplaying))
	if whole {
		b.replaying.Store(rp)
		defer b.replaying.Store(nil)
	}
	defer func() {
		if r := recover(); r != nil {
			rp.abort()
			res = translateResult{err: fmt.Errorf("buffer %q: %w", b.name, recoverError(r))}
		}
		endSpan(span, res.err)
	}()

	for _, p := range b.prereqs {
		select {
		case <-p.Done():
		case <-ctx.Done():
			return translateResult{err: fmt.Errorf("buffer %q: prerequisite: %w", b.name, ctx.Err())}
		}
	}

	if err := rp.replay(c.start, c.end); err != nil {
		rp.abort()
		return translateResult{err: fmt.Errorf("buffer %q: %w", b.name, err)}
	}
	lists, err := rp.finish()
	if err != nil {
		return translateResult{err: fmt.Errorf("buffer %q: %w", b.name, err)}
	}
	return translateResult{lists: lists, stats: rp.stats, marks: rp.marks}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
