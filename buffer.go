// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/rhi/breadcrumb"
	"github.com/gogpu/rhi/internal/arena"
)

// BufferState is the lifecycle state of a CommandBuffer.
type BufferState uint32

const (
	// BufferRecording accepts commands.
	BufferRecording BufferState = iota
	// BufferClosed is finalized and waiting to be submitted.
	BufferClosed
	// BufferDispatched was handed to the executor.
	BufferDispatched
	// BufferReplaying is being translated.
	BufferReplaying
	// BufferRetired has been submitted and its arena released.
	BufferRetired
)

var bufferStateNames = [...]string{
	BufferRecording:  "Recording",
	BufferClosed:     "Closed",
	BufferDispatched: "Dispatched",
	BufferReplaying:  "Replaying",
	BufferRetired:    "Retired",
}

func (s BufferState) String() string {
	if int(s) < len(bufferStateNames) {
		return bufferStateNames[s]
	}
	return fmt.Sprintf("BufferState(%d)", uint32(s))
}

// splitPoint marks where a parallel translate task may start. snap is the
// persistent state right after the node after.
type splitPoint struct {
	after *node
	snap  snapshot
}

// chunk is a node range translated by one task.
type chunk struct {
	start, end *node
	snap       snapshot
}

// CommandBuffer records commands for deferred replay.
//
// A buffer is owned by one goroutine while recording. Close hands it over;
// Executor.Submit moves it through Dispatched and Replaying to Retired.
// When the buffer is bottom-of-pipe (bypass mode, the immediate buffer, or a
// buffer whose replay is calling back into it) recording calls execute at
// once instead.
type CommandBuffer struct {
	name      string
	exec      *Executor
	cfg       Config
	immediate bool

	state     atomic.Uint32
	replaying atomic.Pointer[replayer]

	root        *node
	tail        **node
	last        *node
	numCommands int
	sinceSplit  int
	splits      []splitPoint

	bytes *arena.Arena
	nodes *arena.Slab[node]

	// Persistent state as of the last recorded command.
	cur             snapshot
	renderPassDepth int
	transitions     transitionTracker

	crumbs      *breadcrumb.Allocator
	extraCrumbs []*breadcrumb.Allocator
	cpu         breadcrumb.Cursor

	usesLockFence bool
	hasClosures   bool
	prereqs       []Completion
	fences        []*Fence
}

func newCommandBuffer(e *Executor, name string, immediate bool) *CommandBuffer {
	b := &CommandBuffer{
		name:      name,
		exec:      e,
		cfg:       e.cfg,
		immediate: immediate,
	}
	b.reset()
	return b
}

// reset returns b to an empty Recording buffer with fresh storage.
func (b *CommandBuffer) reset() {
	b.bytes = arena.New(b.cfg.ArenaPageSize, b.cfg.ArenaLimit)
	b.nodes = arena.NewSlab[node](b.bytes, 0)
	b.root = nil
	b.tail = &b.root
	b.last = nil
	b.numCommands = 0
	b.sinceSplit = 0
	b.splits = nil
	b.cur = defaultSnapshot()
	b.renderPassDepth = 0
	b.transitions.reset()
	b.crumbs = breadcrumb.NewAllocator(b.name)
	b.extraCrumbs = nil
	b.cpu = breadcrumb.NewCursor(breadcrumb.CPU, b.crumbs.Root())
	b.usesLockFence = false
	b.hasClosures = false
	b.prereqs = nil
	b.fences = nil
	b.state.Store(uint32(BufferRecording))
}

// Name returns the buffer name.
func (b *CommandBuffer) Name() string { return b.name }

// State returns the lifecycle state.
func (b *CommandBuffer) State() BufferState { return BufferState(b.state.Load()) }

// IsImmediate reports whether b is the executor's immediate buffer.
func (b *CommandBuffer) IsImmediate() bool { return b.immediate }

// IsBottomOfPipe reports whether recording calls execute immediately.
func (b *CommandBuffer) IsBottomOfPipe() bool {
	return b.cfg.Bypass || b.immediate || b.replaying.Load() != nil
}

// NumCommands returns the number of recorded commands.
func (b *CommandBuffer) NumCommands() int { return b.numCommands }

// ArenaBytes returns the bytes allocated for nodes and payloads.
func (b *CommandBuffer) ArenaBytes() int64 { return b.bytes.Bytes() }

// UsesLockFence reports whether RequestFence(true) was called.
func (b *CommandBuffer) UsesLockFence() bool { return b.usesLockFence }

// ActivePipelines returns the active pipeline set.
func (b *CommandBuffer) ActivePipelines() PipelineSet { return b.cur.pipelines }

// AcceleratorMask returns the current accelerator mask.
func (b *CommandBuffer) AcceleratorMask() AcceleratorMask { return b.cur.mask }

// RenderPassDepth returns the number of open render passes.
func (b *CommandBuffer) RenderPassDepth() int { return b.renderPassDepth }

// Breadcrumbs returns the buffer's breadcrumb allocator. Acquire it to keep
// the tree after the buffer retires.
func (b *CommandBuffer) Breadcrumbs() *breadcrumb.Allocator { return b.crumbs }

// ActivePipeline returns the single active pipeline. It is fatal when more
// than one pipeline is active.
func (b *CommandBuffer) ActivePipeline() Pipeline {
	return b.requireSingle("ActivePipeline")
}

func (b *CommandBuffer) facts() BufferFacts {
	return BufferFacts{
		Immediate:  b.immediate,
		LockFenced: b.usesLockFence,
		Commands:   b.numCommands,
	}
}

// fail raises a *FatalError with b's diagnostic context.
func (b *CommandBuffer) fail(op string, err error) {
	e := &FatalError{Op: op, Buffer: b.name, Pipeline: b.cur.pipelines.String(), Err: err}
	for p := range b.cur.pipelines.All() {
		if n := b.cpu.Current(int(p)); n != nil && n.Parent() != nil {
			e.Breadcrumb = n.Path()
			break
		}
	}
	fatal(e)
}

func (b *CommandBuffer) reentrant() bool {
	return b.replaying.Load() != nil
}

// prepare validates that b accepts op and cuts a split point if one is due.
func (b *CommandBuffer) prepare(op string) {
	if b.reentrant() {
		return
	}
	if s := b.State(); s != BufferRecording {
		b.fail(op, fmt.Errorf("%w (state %s)", ErrBufferClosed, s))
	}
	if !b.IsBottomOfPipe() {
		b.maybeSplit()
	}
}

func (b *CommandBuffer) requireSingle(op string) Pipeline {
	if rp := b.replaying.Load(); rp != nil {
		p, ok := rp.active.Single()
		if !ok {
			b.fail(op, ErrPipelineNotSingle)
		}
		return p
	}
	p, ok := b.cur.pipelines.Single()
	if !ok {
		b.fail(op, ErrPipelineNotSingle)
	}
	return p
}

// record appends cmd, or executes it when bottom-of-pipe.
func (b *CommandBuffer) record(op string, cmd Command) {
	if rp := b.replaying.Load(); rp != nil {
		if err := rp.exec(cmd); err != nil {
			b.fail(op, err)
		}
		return
	}
	if b.IsBottomOfPipe() {
		b.exec.imm.run(b, op, cmd)
		return
	}

	n, err := b.nodes.TryNew()
	if err != nil {
		b.fail(op, err)
	}
	n.cmd = cmd
	*b.tail = n
	b.tail = &n.next
	b.last = n
	b.numCommands++
	b.sinceSplit++
}

// maybeSplit cuts a split point when enough commands were recorded since the
// last one and no scope is open.
func (b *CommandBuffer) maybeSplit() {
	n := b.cfg.ParallelChunkCommands
	if n <= 0 || b.sinceSplit < n || b.last == nil {
		return
	}
	if b.renderPassDepth > 0 || b.hasClosures || !b.cpu.Balanced() {
		return
	}
	b.splits = append(b.splits, splitPoint{after: b.last, snap: b.cur})
	b.sinceSplit = 0
}

// chunks returns the node ranges for translation. Buffers with closures are
// never split because a closure may call back into the buffer.
func (b *CommandBuffer) chunks(split bool) []chunk {
	whole := []chunk{{start: b.root, snap: defaultSnapshot()}}
	if !split || b.hasClosures || len(b.splits) == 0 {
		return whole
	}
	out := make([]chunk, 0, len(b.splits)+1)
	start, snap := b.root, defaultSnapshot()
	for _, sp := range b.splits {
		end := sp.after.next
		if start != end {
			out = append(out, chunk{start: start, end: end, snap: snap})
		}
		start, snap = end, sp.snap
	}
	if start != nil {
		out = append(out, chunk{start: start, snap: snap})
	}
	return out
}

// Enqueue records a command through the matching typed method, so the same
// validation applies.
func (b *CommandBuffer) Enqueue(cmd Command) {
	switch c := cmd.(type) {
	case SetPipelineState:
		b.SetPipelineState(c.State)
	case BeginRenderPass:
		b.BeginRenderPass(c.Desc)
	case EndRenderPass:
		b.EndRenderPass()
	case Draw:
		b.Draw(c.Args)
	case DrawIndexed:
		b.DrawIndexed(c.Args)
	case Dispatch:
		b.Dispatch(c.X, c.Y, c.Z)
	case CopyBuffer:
		b.CopyBuffer(c.Args)
	case UpdateBuffer:
		b.UpdateBuffer(c.Dst, c.Offset, c.Data)
	case BeginTransition:
		b.BeginTransition(c.Transition.Resource, c.Transition.Before, c.Transition.After)
	case EndTransition:
		b.EndTransition(c.Transition.Resource, c.Transition.Before, c.Transition.After)
	case SwitchPipelines:
		b.ActivatePipelines(c.Set)
	case SetAcceleratorMask:
		b.SwitchAccelerator(c.Mask)
	case BeginBreadcrumb:
		b.BeginBreadcrumb(c.Node, c.Pipeline)
	case EndBreadcrumb:
		b.EndBreadcrumb(c.Node, c.Pipeline)
	case Closure:
		b.EnqueueClosure(c.Name, c.Fn)
	case MultiPipelineClosure:
		b.EnqueueMultiPipeline(c.Name, c.Set, c.Fn)
	default:
		b.fail("Enqueue", fmt.Errorf("rhi: command %T cannot be enqueued directly", cmd))
	}
}

// SetPipelineState binds s on the active pipeline. Binding the state that is
// already bound records nothing.
func (b *CommandBuffer) SetPipelineState(s *PipelineState) {
	const op = "SetPipelineState"
	b.prepare(op)
	p := b.requireSingle(op)
	if !b.reentrant() {
		if b.cur.states[p] == s {
			return
		}
		b.cur.states[p] = s
	}
	b.record(op, SetPipelineState{State: s})
}

// BeginRenderPass opens a render pass on the active pipeline.
func (b *CommandBuffer) BeginRenderPass(desc RenderPassDesc) {
	const op = "BeginRenderPass"
	b.prepare(op)
	b.requireSingle(op)
	if !b.reentrant() {
		b.renderPassDepth++
	}
	b.record(op, BeginRenderPass{Desc: desc})
}

// EndRenderPass closes the innermost render pass.
func (b *CommandBuffer) EndRenderPass() {
	const op = "EndRenderPass"
	b.prepare(op)
	b.requireSingle(op)
	if !b.reentrant() {
		if b.renderPassDepth == 0 {
			b.fail(op, ErrUnmatchedRenderPass)
		}
		b.renderPassDepth--
	}
	b.record(op, EndRenderPass{})
}

// Draw records a non-indexed draw on the active pipeline.
func (b *CommandBuffer) Draw(args DrawArgs) {
	const op = "Draw"
	b.prepare(op)
	b.requireSingle(op)
	b.record(op, Draw{Args: args})
}

// DrawIndexed records an indexed draw on the active pipeline.
func (b *CommandBuffer) DrawIndexed(args DrawIndexedArgs) {
	const op = "DrawIndexed"
	b.prepare(op)
	b.requireSingle(op)
	b.record(op, DrawIndexed{Args: args})
}

// Dispatch records a compute dispatch on the active pipeline.
func (b *CommandBuffer) Dispatch(x, y, z uint32) {
	const op = "Dispatch"
	b.prepare(op)
	b.requireSingle(op)
	b.record(op, Dispatch{X: x, Y: y, Z: z})
}

// CopyBuffer records a buffer copy on the active pipeline.
func (b *CommandBuffer) CopyBuffer(args CopyBufferArgs) {
	const op = "CopyBuffer"
	b.prepare(op)
	b.requireSingle(op)
	if args.Src == nil || args.Dst == nil {
		b.fail(op, ErrNilResource)
	}
	b.record(op, CopyBuffer{Args: args})
}

// UpdateBuffer records a write of data into dst. Deferred buffers copy data
// into their arena, so the caller may reuse it immediately.
func (b *CommandBuffer) UpdateBuffer(dst Resource, offset uint64, data []byte) {
	const op = "UpdateBuffer"
	b.prepare(op)
	b.requireSingle(op)
	if dst == nil {
		b.fail(op, ErrNilResource)
	}
	if !b.IsBottomOfPipe() {
		buf, err := b.bytes.TryAllocate(len(data), 8)
		if err != nil {
			b.fail(op, err)
		}
		copy(buf, data)
		data = buf
	}
	b.record(op, UpdateBuffer{Dst: dst, Offset: offset, Data: data})
}

// BeginTransition starts a transition of res on every active pipeline. It
// must be matched by EndTransition with the same states before Close.
func (b *CommandBuffer) BeginTransition(res Resource, before, after AccessState) {
	const op = "BeginTransition"
	b.prepare(op)
	t := Transition{Resource: res, Before: before, After: after}
	if !b.reentrant() {
		if err := b.transitions.begin(t); err != nil {
			b.fail(op, err)
		}
	}
	b.record(op, BeginTransition{Transition: t})
}

// EndTransition completes a transition started by BeginTransition.
func (b *CommandBuffer) EndTransition(res Resource, before, after AccessState) {
	const op = "EndTransition"
	b.prepare(op)
	t := Transition{Resource: res, Before: before, After: after}
	if !b.reentrant() {
		if err := b.transitions.end(t); err != nil {
			b.fail(op, err)
		}
	}
	b.record(op, EndTransition{Transition: t})
}

// OpenTransitions returns the number of transitions awaiting EndTransition.
func (b *CommandBuffer) OpenTransitions() int { return b.transitions.count() }

// ActivatePipelines makes set the active pipelines and returns the previous
// set. Nothing is recorded when set is already active.
func (b *CommandBuffer) ActivatePipelines(set PipelineSet) PipelineSet {
	const op = "ActivatePipelines"
	b.prepare(op)
	if !set.Valid() {
		b.fail(op, fmt.Errorf("%w: %#x", ErrInvalidPipelineSet, uint8(set)))
	}
	if rp := b.replaying.Load(); rp != nil {
		prev := rp.active
		b.record(op, SwitchPipelines{Set: set})
		return prev
	}
	prev := b.cur.pipelines
	if set == prev {
		return prev
	}
	if b.renderPassDepth > 0 {
		b.fail(op, ErrRenderPassOpen)
	}
	b.cur.pipelines = set
	b.record(op, SwitchPipelines{Set: set})
	return prev
}

// SwitchAccelerator targets subsequent work at mask. Switching to the
// current mask records nothing and produces no native call.
func (b *CommandBuffer) SwitchAccelerator(mask AcceleratorMask) {
	const op = "SwitchAccelerator"
	b.prepare(op)
	if !mask.Valid() {
		b.fail(op, ErrEmptyMask)
	}
	if !b.reentrant() {
		if mask == b.cur.mask {
			return
		}
		b.cur.mask = mask
	}
	b.record(op, SetAcceleratorMask{Mask: mask})
}

// EnqueueClosure records fn to run with the active pipeline's context.
func (b *CommandBuffer) EnqueueClosure(name string, fn func(Context) error) {
	const op = "EnqueueClosure"
	b.prepare(op)
	b.requireSingle(op)
	if fn == nil {
		b.fail(op, fmt.Errorf("rhi: nil closure %q", name))
	}
	if !b.reentrant() {
		b.hasClosures = true
	}
	b.record(op, Closure{Name: name, Fn: fn})
}

// EnqueueMultiPipeline records fn to run once per pipeline in set. Each call
// receives that pipeline's context and the contexts of the whole set, so one
// pipeline may coordinate with another.
func (b *CommandBuffer) EnqueueMultiPipeline(name string, set PipelineSet, fn func(ctx Context, all Contexts) error) {
	const op = "EnqueueMultiPipeline"
	b.prepare(op)
	if !set.Valid() {
		b.fail(op, fmt.Errorf("%w: %#x", ErrInvalidPipelineSet, uint8(set)))
	}
	if fn == nil {
		b.fail(op, fmt.Errorf("rhi: nil closure %q", name))
	}
	if !b.reentrant() {
		b.hasClosures = true
	}
	b.record(op, MultiPipelineClosure{Name: name, Set: set, Fn: fn})
}

// RequestFence returns a fence signaled when replay reaches this point, or
// already signaled when b is bottom-of-pipe. With setLockFence the buffer is
// marked lock-fenced and will always be translated serially.
func (b *CommandBuffer) RequestFence(setLockFence bool) *Fence {
	const op = "RequestFence"
	b.prepare(op)
	f := NewFence(b.name)
	if !b.reentrant() {
		if setLockFence {
			b.usesLockFence = true
		}
		if !b.IsBottomOfPipe() {
			b.fences = append(b.fences, f)
		}
	}
	b.record(op, SignalFence{Fence: f})
	return f
}

// AddPrerequisite delays replay of b until c is done. Bottom-of-pipe buffers
// wait right away.
func (b *CommandBuffer) AddPrerequisite(c Completion) {
	const op = "AddPrerequisite"
	b.prepare(op)
	if c == nil {
		return
	}
	if b.IsBottomOfPipe() {
		<-c.Done()
		return
	}
	b.prereqs = append(b.prereqs, c)
}

// Close finalizes the buffer. It never blocks. Closing with open
// transitions, render passes or breadcrumbs is fatal.
func (b *CommandBuffer) Close() {
	const op = "Close"
	if b.immediate {
		b.fail(op, ErrImmediateBuffer)
	}
	if s := b.State(); s != BufferRecording {
		b.fail(op, fmt.Errorf("%w (state %s)", ErrBufferClosed, s))
	}
	if t, ok := b.transitions.first(); ok {
		b.fail(op, fmt.Errorf("%w: %s (%d open)", ErrUnmatchedTransition, t, b.transitions.count()))
	}
	if b.renderPassDepth > 0 {
		b.fail(op, fmt.Errorf("%w: %d open", ErrUnmatchedRenderPass, b.renderPassDepth))
	}
	if n, p, ok := b.cpu.Open(); ok {
		b.fail(op, fmt.Errorf("%w: %q open on %s", ErrUnmatchedBreadcrumb, n.Path(), Pipeline(p)))
	}
	b.state.Store(uint32(BufferClosed))
}

// Consume moves other's commands, storage and prerequisites to the end of
// b, leaving other empty and recording. other's commands replay against the
// default state they were recorded for, so b records the needed resets
// first.
func (b *CommandBuffer) Consume(other *CommandBuffer) {
	const op = "Consume"
	b.prepare(op)
	switch {
	case other == nil || other == b:
		return
	case b.immediate || other.immediate:
		b.fail(op, ErrImmediateBuffer)
	case other.exec != b.exec:
		b.fail(op, ErrForeignBuffer)
	}
	if s := other.State(); s != BufferRecording && s != BufferClosed {
		b.fail(op, fmt.Errorf("%w: donor %q is %s", ErrBufferClosed, other.name, s))
	}
	if !other.cpu.Balanced() {
		b.fail(op, fmt.Errorf("%w: donor %q", ErrUnmatchedBreadcrumb, other.name))
	}
	if other.renderPassDepth > 0 {
		b.fail(op, fmt.Errorf("%w: donor %q", ErrUnmatchedRenderPass, other.name))
	}
	if b.renderPassDepth > 0 && other.numCommands > 0 {
		b.fail(op, ErrRenderPassOpen)
	}
	if err := b.transitions.merge(&other.transitions); err != nil {
		b.fail(op, err)
	}

	if other.numCommands > 0 && !b.IsBottomOfPipe() {
		def := defaultSnapshot()
		if b.cur.pipelines != def.pipelines {
			b.cur.pipelines = def.pipelines
			b.record(op, SwitchPipelines{Set: def.pipelines})
		}
		if b.cur.mask != def.mask {
			b.cur.mask = def.mask
			b.record(op, SetAcceleratorMask{Mask: def.mask})
		}

		*b.tail = other.root
		b.tail = other.tail
		b.last = other.last
		b.numCommands += other.numCommands

		// The donor's split snapshots assume the default state the resets
		// above restore, so they stay valid in b.
		if len(other.splits) > 0 {
			b.splits = append(b.splits, other.splits...)
			b.sinceSplit = other.sinceSplit
		} else {
			b.sinceSplit += other.numCommands
		}

		b.cur.pipelines = other.cur.pipelines
		b.cur.mask = other.cur.mask
		for p, s := range other.cur.states {
			if s != nil {
				b.cur.states[p] = s
			}
		}
	}

	b.nodes.Adopt(other.nodes)
	b.bytes.Adopt(other.bytes)

	b.prereqs = append(b.prereqs, other.prereqs...)
	b.fences = append(b.fences, other.fences...)
	b.usesLockFence = b.usesLockFence || other.usesLockFence
	b.hasClosures = b.hasClosures || other.hasClosures
	b.extraCrumbs = append(b.extraCrumbs, other.crumbs.Acquire())
	for _, a := range other.extraCrumbs {
		b.extraCrumbs = append(b.extraCrumbs, a.Acquire())
	}

	other.releaseCrumbs()
	other.reset()
}

func (b *CommandBuffer) releaseCrumbs() {
	b.crumbs.Release()
	for _, a := range b.extraCrumbs {
		a.Release()
	}
	b.extraCrumbs = nil
}

// retire frees the buffer's storage after submission. Fences that replay
// never reached are signaled with err.
func (b *CommandBuffer) retire(err error) {
	for _, f := range b.fences {
		if !f.Signaled() {
			f.Signal(err)
		}
	}
	b.fences = nil
	b.root = nil
	b.tail = &b.root
	b.last = nil
	b.splits = nil
	b.prereqs = nil
	b.nodes.Release()
	b.bytes.Release()
	b.releaseCrumbs()
	b.state.Store(uint32(BufferRetired))
}
