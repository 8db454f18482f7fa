// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/rhi/breadcrumb"
)

// snapshot is the persistent state a replay starts from.
type snapshot struct {
	pipelines PipelineSet
	mask      AcceleratorMask
	states    [NumPipelines]*PipelineState
}

func defaultSnapshot() snapshot {
	return snapshot{pipelines: PrimarySet, mask: DefaultAcceleratorMask}
}

// replayer executes commands against lazily created per-pipeline contexts.
// A replayer belongs to one translate task (or to the immediate context,
// under its mutex) and is never shared.
type replayer struct {
	dev    Device
	ctxs   Contexts
	active PipelineSet
	mask   AcceleratorMask
	states [NumPipelines]*PipelineState

	gpu   breadcrumb.Cursor
	marks []breadcrumb.Mark
	stats Stats
}

func newReplayer(dev Device, root *breadcrumb.Node, s snapshot) *replayer {
	return &replayer{
		dev:    dev,
		active: s.pipelines,
		mask:   s.mask,
		states: s.states,
		gpu:    breadcrumb.NewCursor(breadcrumb.GPU, root),
	}
}

// context returns the context for p, creating it on first use. New contexts
// inherit the current accelerator mask and the pipeline's bound state.
func (r *replayer) context(p Pipeline) (Context, bool, error) {
	if c := r.ctxs[p]; c != nil {
		return c, false, nil
	}
	c, err := r.dev.NewContext(p)
	if err != nil {
		return nil, false, fmt.Errorf("new %s context: %w", p, err)
	}
	r.ctxs[p] = c
	if r.mask != DefaultAcceleratorMask {
		if err := c.SetAcceleratorMask(r.mask); err != nil {
			return nil, false, fmt.Errorf("set mask %s on %s: %w", r.mask, p, err)
		}
	}
	if s := r.states[p]; s != nil {
		if err := c.SetPipelineState(s); err != nil {
			return nil, false, fmt.Errorf("set pipeline state %q on %s: %w", s.Label, p, err)
		}
	}
	return c, true, nil
}

// single returns the context of the only active pipeline.
func (r *replayer) single(op CommandType) (Context, Pipeline, error) {
	p, ok := r.active.Single()
	if !ok {
		return nil, 0, &FatalError{Op: op.String(), Pipeline: r.active.String(), Err: ErrPipelineNotSingle}
	}
	c, _, err := r.context(p)
	return c, p, err
}

func (r *replayer) setMask(m AcceleratorMask) error {
	if m == r.mask {
		return nil
	}
	r.mask = m
	r.stats.MaskSwitches++
	for p, c := range r.ctxs {
		if c == nil {
			continue
		}
		if err := c.SetAcceleratorMask(m); err != nil {
			return fmt.Errorf("set mask %s on %s: %w", m, Pipeline(p), err)
		}
	}
	return nil
}

// sync moves the replayer to a buffer's persistent state. Used by the
// immediate context, which is shared by every bottom-of-pipe buffer.
func (r *replayer) sync(s snapshot) error {
	r.active = s.pipelines
	if err := r.setMask(s.mask); err != nil {
		return err
	}
	for i, st := range s.states {
		if st == nil || st == r.states[i] {
			continue
		}
		if err := r.bindState(Pipeline(i), st); err != nil {
			return err
		}
	}
	return nil
}

func (r *replayer) bindState(p Pipeline, st *PipelineState) error {
	prev := r.states[p]
	r.states[p] = st
	c, created, err := r.context(p)
	if err != nil || created || prev == st {
		return err
	}
	if err := c.SetPipelineState(st); err != nil {
		return fmt.Errorf("set pipeline state on %s: %w", p, err)
	}
	return nil
}

// exec runs one command.
func (r *replayer) exec(cmd Command) error {
	r.stats.Commands++
	switch c := cmd.(type) {
	case SetPipelineState:
		p, ok := r.active.Single()
		if !ok {
			return &FatalError{Op: "SetPipelineState", Pipeline: r.active.String(), Err: ErrPipelineNotSingle}
		}
		return r.bindState(p, c.State)

	case BeginRenderPass:
		ctx, _, err := r.single(CmdBeginRenderPass)
		if err != nil {
			return err
		}
		return ctx.BeginRenderPass(c.Desc)

	case EndRenderPass:
		ctx, _, err := r.single(CmdEndRenderPass)
		if err != nil {
			return err
		}
		return ctx.EndRenderPass()

	case Draw:
		ctx, _, err := r.single(CmdDraw)
		if err != nil {
			return err
		}
		r.stats.Draws++
		r.stats.Vertices += uint64(c.Args.VertexCount) * uint64(max(c.Args.InstanceCount, 1))
		return ctx.Draw(c.Args)

	case DrawIndexed:
		ctx, _, err := r.single(CmdDrawIndexed)
		if err != nil {
			return err
		}
		r.stats.Draws++
		r.stats.Vertices += uint64(c.Args.IndexCount) * uint64(max(c.Args.InstanceCount, 1))
		return ctx.DrawIndexed(c.Args)

	case Dispatch:
		ctx, _, err := r.single(CmdDispatch)
		if err != nil {
			return err
		}
		r.stats.Dispatches++
		return ctx.Dispatch(c.X, c.Y, c.Z)

	case CopyBuffer:
		ctx, _, err := r.single(CmdCopyBuffer)
		if err != nil {
			return err
		}
		r.stats.Copies++
		return ctx.CopyBuffer(c.Args)

	case UpdateBuffer:
		ctx, _, err := r.single(CmdUpdateBuffer)
		if err != nil {
			return err
		}
		r.stats.Copies++
		return ctx.UpdateBuffer(c.Dst, c.Offset, c.Data)

	case BeginTransition:
		r.stats.Transitions++
		return r.broadcast(func(ctx Context) error { return ctx.BeginTransition(c.Transition) })

	case EndTransition:
		return r.broadcast(func(ctx Context) error { return ctx.EndTransition(c.Transition) })

	case SwitchPipelines:
		r.active = c.Set
		return nil

	case SetAcceleratorMask:
		return r.setMask(c.Mask)

	case BeginBreadcrumb:
		if err := r.gpu.Begin(c.Node, int(c.Pipeline)); err != nil {
			return &FatalError{Op: "BeginBreadcrumb", Pipeline: c.Pipeline.String(), Breadcrumb: c.Node.Path(), Err: err}
		}
		r.marks = append(r.marks, breadcrumb.Mark{Node: c.Node, Pipeline: int(c.Pipeline), Begin: true, At: time.Now()})
		ctx, _, err := r.context(c.Pipeline)
		if err != nil {
			return err
		}
		return ctx.BeginBreadcrumb(c.Node)

	case EndBreadcrumb:
		if err := r.gpu.End(c.Node, int(c.Pipeline)); err != nil {
			return &FatalError{Op: "EndBreadcrumb", Pipeline: c.Pipeline.String(), Breadcrumb: c.Node.Path(), Err: err}
		}
		r.marks = append(r.marks, breadcrumb.Mark{Node: c.Node, Pipeline: int(c.Pipeline), At: time.Now()})
		ctx, _, err := r.context(c.Pipeline)
		if err != nil {
			return err
		}
		return ctx.EndBreadcrumb(c.Node)

	case SignalFence:
		c.Fence.Signal(nil)
		return nil

	case Closure:
		ctx, _, err := r.single(CmdClosure)
		if err != nil {
			return err
		}
		r.stats.Closures++
		if err := c.Fn(ctx); err != nil {
			return fmt.Errorf("closure %q: %w", c.Name, err)
		}
		return nil

	case MultiPipelineClosure:
		var all Contexts
		for p := range c.Set.All() {
			ctx, _, err := r.context(p)
			if err != nil {
				return err
			}
			all[p] = ctx
		}
		r.stats.Closures++
		for p := range c.Set.All() {
			if err := c.Fn(all[p], all); err != nil {
				return fmt.Errorf("closure %q on %s: %w", c.Name, p, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("rhi: unknown command %T", cmd)
	}
}

// broadcast runs fn on the context of every active pipeline.
func (r *replayer) broadcast(fn func(Context) error) error {
	for p := range r.active.All() {
		ctx, _, err := r.context(p)
		if err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// replay executes nodes from start up to (not including) end. Each node's
// command is cleared after it runs.
func (r *replayer) replay(start, end *node) error {
	for n := start; n != nil && n != end; n = n.next {
		cmd := n.cmd
		n.cmd = nil
		if cmd == nil {
			continue
		}
		if err := r.exec(cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd.Type(), err)
		}
	}
	return nil
}

// finish closes every context and returns the lists in pipeline order.
func (r *replayer) finish() ([]CommandList, error) {
	var lists []CommandList
	var errs []error
	for p, c := range r.ctxs {
		if c == nil {
			continue
		}
		l, err := c.Finish()
		r.ctxs[p] = nil
		if err != nil {
			errs = append(errs, fmt.Errorf("finish %s: %w", Pipeline(p), err))
			continue
		}
		if l != nil {
			lists = append(lists, l)
		}
	}
	return lists, errors.Join(errs...)
}

// abort closes every context and drops the lists.
func (r *replayer) abort() {
	_, _ = r.finish()
}

// immediateContext is the replayer behind bottom-of-pipe recording. Every
// buffer executing immediately shares it, so access is serialized.
type immediateContext struct {
	mu      sync.Mutex
	rp      *replayer
	err     error
	pending bool
}

func newImmediateContext(dev Device, root *breadcrumb.Node) *immediateContext {
	return &immediateContext{rp: newReplayer(dev, root, defaultSnapshot())}
}

// run executes cmd against the immediate contexts in b's state. Device
// errors are held and reported by the next submission; until then later
// commands are skipped and fences are signaled with the held error.
func (ic *immediateContext) run(b *CommandBuffer, op string, cmd Command) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ic.pending = true
	if ic.err != nil {
		// Fences still complete so waiters see the held error.
		if sf, ok := cmd.(SignalFence); ok {
			sf.Fence.Signal(ic.err)
		}
		return
	}
	err := ic.rp.sync(b.cur)
	if err == nil {
		err = ic.rp.exec(cmd)
	}
	ic.rp.stats.ImmediateCommands++
	if err != nil {
		var fe *FatalError
		if errors.As(err, &fe) {
			panic(fe)
		}
		ic.err = fmt.Errorf("%s [buffer %q]: %w", op, b.name, err)
		Logger().Warn("rhi: immediate command failed", "op", op, "buffer", b.name, "err", err)
	}
}

// take finishes the immediate contexts and hands their output to a
// submission.
func (ic *immediateContext) take() translateResult {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if !ic.pending {
		return translateResult{}
	}
	lists, err := ic.rp.finish()
	res := translateResult{
		lists: lists,
		stats: ic.rp.stats,
		marks: ic.rp.marks,
		err:   errors.Join(ic.err, err),
	}
	ic.rp.stats = Stats{}
	ic.rp.marks = nil
	ic.err = nil
	ic.pending = false
	return res
}
