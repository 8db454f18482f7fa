// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/breadcrumb"
)

// commandList is a finished hal command buffer plus the staging buffers it
// copies from.
type commandList struct {
	d       *Device
	pipe    rhi.Pipeline
	enc     hal.CommandEncoder
	cb      hal.CommandBuffer
	staging []hal.Buffer
}

// Pipeline implements rhi.CommandList.
func (l *commandList) Pipeline() rhi.Pipeline { return l.pipe }

// release frees the command buffer, the encoder and the staging buffers.
// The GPU must be done with them.
func (l *commandList) release(dev hal.Device) {
	if l.cb != nil {
		dev.FreeCommandBuffer(l.cb)
		l.cb = nil
	}
	for _, s := range l.staging {
		dev.DestroyBuffer(s)
	}
	l.staging = nil
	if l.enc != nil {
		l.enc.Destroy()
		l.enc = nil
	}
}

// passContext records one pipeline's commands into a hal encoder.
// It is used by a single goroutine.
type passContext struct {
	d    *Device
	pipe rhi.Pipeline
	enc  hal.CommandEncoder
	mask rhi.AcceleratorMask

	pass  hal.RenderPassEncoder
	bound *compiled

	staging  []hal.Buffer
	commands int
	done     bool
}

var _ rhi.Context = (*passContext)(nil)

// Pipeline implements rhi.Context.
func (c *passContext) Pipeline() rhi.Pipeline { return c.pipe }

// SetAcceleratorMask implements rhi.Context.
func (c *passContext) SetAcceleratorMask(m rhi.AcceleratorMask) error {
	if i, ok := m.Single(); !ok || i != 0 {
		return fmt.Errorf("%w: got %s", ErrMaskUnsupported, m)
	}
	c.mask = m
	return nil
}

// SetPipelineState implements rhi.Context.
func (c *passContext) SetPipelineState(s *rhi.PipelineState) error {
	p, err := c.d.pipeline(s)
	if err != nil {
		return err
	}
	c.bound = p
	if c.pass != nil && p.render != nil {
		c.pass.SetPipeline(p.render)
		c.commands++
	}
	return nil
}

// BeginRenderPass implements rhi.Context.
func (c *passContext) BeginRenderPass(desc rhi.RenderPassDesc) error {
	if c.pass != nil {
		return fmt.Errorf("begin render pass %q: %w", desc.Label, ErrInRenderPass)
	}
	target, err := asTexture(desc.Target)
	if err != nil {
		return fmt.Errorf("begin render pass %q: %w", desc.Label, err)
	}
	load := desc.Load
	if load == gputypes.LoadOpUndefined {
		load = gputypes.LoadOpLoad
	}
	store := desc.Store
	if store == gputypes.StoreOpUndefined {
		store = gputypes.StoreOpStore
	}
	c.pass = c.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: desc.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target.view,
			LoadOp:     load,
			StoreOp:    store,
			ClearValue: desc.Clear,
		}},
	})
	if c.bound != nil && c.bound.render != nil {
		c.pass.SetPipeline(c.bound.render)
	}
	c.commands++
	return nil
}

// EndRenderPass implements rhi.Context.
func (c *passContext) EndRenderPass() error {
	if c.pass == nil {
		return ErrNoRenderPass
	}
	c.pass.End()
	c.pass = nil
	c.commands++
	return nil
}

func (c *passContext) drawable() error {
	if c.pass == nil {
		return ErrNoRenderPass
	}
	if c.bound == nil || c.bound.render == nil {
		return fmt.Errorf("%w: draw needs a render state", ErrNoPipelineState)
	}
	return nil
}

// Draw implements rhi.Context.
func (c *passContext) Draw(a rhi.DrawArgs) error {
	if err := c.drawable(); err != nil {
		return err
	}
	c.pass.Draw(a.VertexCount, a.InstanceCount, a.FirstVertex, a.FirstInstance)
	c.commands++
	return nil
}

// DrawIndexed implements rhi.Context.
func (c *passContext) DrawIndexed(a rhi.DrawIndexedArgs) error {
	if err := c.drawable(); err != nil {
		return err
	}
	c.pass.DrawIndexed(a.IndexCount, a.InstanceCount, a.FirstIndex, a.BaseVertex, a.FirstInstance)
	c.commands++
	return nil
}

// Dispatch implements rhi.Context. Each dispatch is recorded in its own
// compute pass.
func (c *passContext) Dispatch(x, y, z uint32) error {
	if c.pass != nil {
		return fmt.Errorf("dispatch: %w", ErrInRenderPass)
	}
	if c.bound == nil || c.bound.compute == nil {
		return fmt.Errorf("%w: dispatch needs a compute state", ErrNoPipelineState)
	}
	cp := c.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: c.bound.label})
	cp.SetPipeline(c.bound.compute)
	cp.Dispatch(x, y, z)
	cp.End()
	c.commands++
	return nil
}

// CopyBuffer implements rhi.Context.
func (c *passContext) CopyBuffer(a rhi.CopyBufferArgs) error {
	if c.pass != nil {
		return fmt.Errorf("copy buffer: %w", ErrInRenderPass)
	}
	src, err := asBuffer(a.Src)
	if err != nil {
		return err
	}
	dst, err := asBuffer(a.Dst)
	if err != nil {
		return err
	}
	if a.SrcOffset%4 != 0 || a.DstOffset%4 != 0 || a.Size%4 != 0 {
		return fmt.Errorf("copy %s -> %s: %w", src.label, dst.label, ErrUnaligned)
	}
	c.enc.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{{
		SrcOffset: a.SrcOffset,
		DstOffset: a.DstOffset,
		Size:      a.Size,
	}})
	c.commands++
	return nil
}

// UpdateBuffer implements rhi.Context. data is written to a fresh staging
// buffer now and copied to dst when the list executes, so the update lands
// in command order.
func (c *passContext) UpdateBuffer(dst rhi.Resource, offset uint64, data []byte) error {
	if c.pass != nil {
		return fmt.Errorf("update buffer: %w", ErrInRenderPass)
	}
	b, err := asBuffer(dst)
	if err != nil {
		return err
	}
	size := uint64(len(data))
	if size == 0 {
		return nil
	}
	if offset%4 != 0 || size%4 != 0 {
		return fmt.Errorf("update %s: %w", b.label, ErrUnaligned)
	}
	staging, err := c.d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "rhi-staging",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("update %s: create staging: %w", b.label, err)
	}
	c.staging = append(c.staging, staging)
	if err := c.d.queue.WriteBuffer(staging, 0, data); err != nil {
		return fmt.Errorf("update %s: write staging: %w", b.label, err)
	}
	c.enc.CopyBufferToBuffer(staging, b.raw, []hal.BufferCopy{{DstOffset: offset, Size: size}})
	c.d.stagingBytes.Add(size)
	c.commands++
	return nil
}

// BeginTransition implements rhi.Context. hal barriers cannot be split, so
// the resource is only validated here and the barrier is issued at
// EndTransition.
func (c *passContext) BeginTransition(t rhi.Transition) error {
	if c.pass != nil {
		return fmt.Errorf("begin transition: %w", ErrInRenderPass)
	}
	return checkTransition(t)
}

// EndTransition implements rhi.Context.
func (c *passContext) EndTransition(t rhi.Transition) error {
	if c.pass != nil {
		return fmt.Errorf("end transition: %w", ErrInRenderPass)
	}
	if err := checkTransition(t); err != nil {
		return err
	}
	switch r := t.Resource.(type) {
	case *Texture:
		c.enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: r.raw,
			Range: hal.TextureRange{
				Aspect:          gputypes.TextureAspectAll,
				MipLevelCount:   1,
				ArrayLayerCount: 1,
			},
			Usage: hal.TextureUsageTransition{
				OldUsage: t.Before.Texture,
				NewUsage: t.After.Texture,
			},
		}})
	case *Buffer:
		c.enc.TransitionBuffers([]hal.BufferBarrier{{
			Buffer: r.raw,
			Usage: hal.BufferUsageTransition{
				OldUsage: t.Before.Buffer,
				NewUsage: t.After.Buffer,
			},
		}})
	}
	c.commands++
	return nil
}

func checkTransition(t rhi.Transition) error {
	switch t.Resource.ResourceKind() {
	case rhi.ResourceTexture:
		_, err := asTexture(t.Resource)
		return err
	default:
		_, err := asBuffer(t.Resource)
		return err
	}
}

// BeginBreadcrumb implements rhi.Context. hal encoders have no debug
// markers; GPU ranges are taken from the submission.
func (c *passContext) BeginBreadcrumb(*breadcrumb.Node) error { return nil }

// EndBreadcrumb implements rhi.Context.
func (c *passContext) EndBreadcrumb(*breadcrumb.Node) error { return nil }

// Finish implements rhi.Context. An empty context yields no list.
func (c *passContext) Finish() (rhi.CommandList, error) {
	if c.done {
		return nil, nil
	}
	c.done = true
	var err error
	if c.pass != nil {
		c.pass.End()
		c.pass = nil
		err = fmt.Errorf("finish %s: %w", c.pipe, ErrInRenderPass)
	}
	if err != nil || c.commands == 0 {
		c.discard()
		c.d.finished(nil)
		return nil, err
	}
	cb, err := c.enc.EndEncoding()
	if err != nil {
		c.discard()
		c.d.finished(nil)
		return nil, fmt.Errorf("finish %s: %w", c.pipe, err)
	}
	l := &commandList{d: c.d, pipe: c.pipe, enc: c.enc, cb: cb, staging: c.staging}
	c.enc, c.staging = nil, nil
	c.d.finished(l)
	return l, nil
}

func (c *passContext) discard() {
	c.enc.DiscardEncoding()
	c.enc.Destroy()
	c.enc = nil
	for _, s := range c.staging {
		c.d.dev.DestroyBuffer(s)
	}
	c.staging = nil
}
