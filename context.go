// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/breadcrumb"
)

// Context receives replayed commands for one pipeline. Backends implement
// it; the engine creates one per pipeline per translate task and never uses
// a Context from two goroutines at once.
//
// Every method returns an error for device-level failures. A failing call
// aborts the whole submission it belongs to.
type Context interface {
	Pipeline() Pipeline
	SetAcceleratorMask(AcceleratorMask) error
	SetPipelineState(*PipelineState) error
	BeginRenderPass(RenderPassDesc) error
	EndRenderPass() error
	Draw(DrawArgs) error
	DrawIndexed(DrawIndexedArgs) error
	Dispatch(x, y, z uint32) error
	CopyBuffer(CopyBufferArgs) error
	UpdateBuffer(dst Resource, offset uint64, data []byte) error
	BeginTransition(Transition) error
	EndTransition(Transition) error
	BeginBreadcrumb(*breadcrumb.Node) error
	EndBreadcrumb(*breadcrumb.Node) error

	// Finish closes the context and returns its native command list.
	// The context is not used afterwards.
	Finish() (CommandList, error)
}

// CommandList is a finished native command stream.
type CommandList interface {
	Pipeline() Pipeline
}

// Contexts holds one context per pipeline. Entries for pipelines that are
// not part of an operation are nil.
type Contexts [NumPipelines]Context

// Device creates contexts and submits their lists.
type Device interface {
	Name() string

	// Accelerators returns the number of physical accelerators.
	Accelerators() int

	NewContext(Pipeline) (Context, error)

	// Submit makes lists visible to the device in slice order.
	Submit([]CommandList) error
}

// PipelineKind tells render and compute pipeline states apart.
type PipelineKind uint8

const (
	// RenderPipeline states are used by draws inside render passes.
	RenderPipeline PipelineKind = iota
	// ComputePipeline states are used by dispatches.
	ComputePipeline
)

func (k PipelineKind) String() string {
	if k == ComputePipeline {
		return "compute"
	}
	return "render"
}

// PipelineState describes a pipeline state object. Backends compile it once
// and cache by pointer identity, so callers should create each state once
// and reuse the pointer.
type PipelineState struct {
	Label string
	Kind  PipelineKind

	// WGSL is the shader source containing every entry point.
	WGSL string

	VertexEntry   string
	FragmentEntry string
	ComputeEntry  string

	// Format is the color target format of render states.
	Format gputypes.TextureFormat
}

// RenderPassDesc describes a render pass over a single color target.
type RenderPassDesc struct {
	Label  string
	Target Resource
	Load   gputypes.LoadOp
	Store  gputypes.StoreOp
	Clear  gputypes.Color
}

// DrawArgs are the arguments of a non-indexed draw.
type DrawArgs struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// DrawIndexedArgs are the arguments of an indexed draw.
type DrawIndexedArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// CopyBufferArgs describe a buffer-to-buffer copy.
type CopyBufferArgs struct {
	Src       Resource
	Dst       Resource
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}
