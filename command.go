package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/breadcrumb"
)

// CommandType identifies the kind of a recorded command.
type CommandType uint8

const (
	CmdSetPipelineState CommandType = iota
	CmdBeginRenderPass
	CmdEndRenderPass
	CmdDraw
	CmdDrawIndexed
	CmdDispatch
	CmdCopyBuffer
	CmdUpdateBuffer
	CmdBeginTransition
	CmdEndTransition
	CmdSwitchPipelines
	CmdSetAcceleratorMask
	CmdBeginBreadcrumb
	CmdEndBreadcrumb
	CmdSignalFence
	CmdClosure
	CmdMultiPipelineClosure

	numCommandTypes
)

var commandTypeNames = [numCommandTypes]string{
	CmdSetPipelineState:     "SetPipelineState",
	CmdBeginRenderPass:      "BeginRenderPass",
	CmdEndRenderPass:        "EndRenderPass",
	CmdDraw:                 "Draw",
	CmdDrawIndexed:          "DrawIndexed",
	CmdDispatch:             "Dispatch",
	CmdCopyBuffer:           "CopyBuffer",
	CmdUpdateBuffer:         "UpdateBuffer",
	CmdBeginTransition:      "BeginTransition",
	CmdEndTransition:        "EndTransition",
	CmdSwitchPipelines:      "SwitchPipelines",
	CmdSetAcceleratorMask:   "SetAcceleratorMask",
	CmdBeginBreadcrumb:      "BeginBreadcrumb",
	CmdEndBreadcrumb:        "EndBreadcrumb",
	CmdSignalFence:          "SignalFence",
	CmdClosure:              "Closure",
	CmdMultiPipelineClosure: "MultiPipelineClosure",
}

// String returns the command type name.
func (t CommandType) String() string {
	if t < numCommandTypes {
		return commandTypeNames[t]
	}
	return fmt.Sprintf("CommandType(%d)", uint8(t))
}

// Command is one recorded unit of deferred work. The set of commands is
// closed; arbitrary work is recorded with Closure.
type Command interface {
	Type() CommandType
}

// SetPipelineState binds a pipeline state on the active pipeline.
type SetPipelineState struct {
	State *PipelineState
}

// BeginRenderPass opens a render pass on the active pipeline.
type BeginRenderPass struct {
	Desc RenderPassDesc
}

// EndRenderPass closes the open render pass.
type EndRenderPass struct{}

// Draw issues a non-indexed draw.
type Draw struct {
	Args DrawArgs
}

// DrawIndexed issues an indexed draw.
type DrawIndexed struct {
	Args DrawIndexedArgs
}

// Dispatch issues a compute dispatch.
type Dispatch struct {
	X, Y, Z uint32
}

// CopyBuffer copies between buffers.
type CopyBuffer struct {
	Args CopyBufferArgs
}

// UpdateBuffer writes Data to Dst. Data lives in the buffer's arena.
type UpdateBuffer struct {
	Dst    Resource
	Offset uint64
	Data   []byte
}

// BeginTransition starts a resource transition on every active pipeline.
type BeginTransition struct {
	Transition Transition
}

// EndTransition completes a resource transition on every active pipeline.
type EndTransition struct {
	Transition Transition
}

// SwitchPipelines changes the active pipeline set.
type SwitchPipelines struct {
	Set PipelineSet
}

// SetAcceleratorMask changes the accelerators subsequent work targets.
type SetAcceleratorMask struct {
	Mask AcceleratorMask
}

// BeginBreadcrumb opens a breadcrumb scope on a pipeline.
type BeginBreadcrumb struct {
	Node     *breadcrumb.Node
	Pipeline Pipeline
}

// EndBreadcrumb closes a breadcrumb scope on a pipeline.
type EndBreadcrumb struct {
	Node     *breadcrumb.Node
	Pipeline Pipeline
}

// SignalFence signals Fence when replay reaches it.
type SignalFence struct {
	Fence *Fence
}

// Closure runs Fn with the context of the single active pipeline.
type Closure struct {
	Name string
	Fn   func(Context) error
}

// MultiPipelineClosure runs Fn once per pipeline in Set, passing that
// pipeline's context and the contexts of the whole set.
type MultiPipelineClosure struct {
	Name string
	Set  PipelineSet
	Fn   func(ctx Context, all Contexts) error
}

func (SetPipelineState) Type() CommandType     { return CmdSetPipelineState }
func (BeginRenderPass) Type() CommandType      { return CmdBeginRenderPass }
func (EndRenderPass) Type() CommandType        { return CmdEndRenderPass }
func (Draw) Type() CommandType                 { return CmdDraw }
func (DrawIndexed) Type() CommandType          { return CmdDrawIndexed }
func (Dispatch) Type() CommandType             { return CmdDispatch }
func (CopyBuffer) Type() CommandType           { return CmdCopyBuffer }
func (UpdateBuffer) Type() CommandType         { return CmdUpdateBuffer }
func (BeginTransition) Type() CommandType      { return CmdBeginTransition }
func (EndTransition) Type() CommandType        { return CmdEndTransition }
func (SwitchPipelines) Type() CommandType      { return CmdSwitchPipelines }
func (SetAcceleratorMask) Type() CommandType   { return CmdSetAcceleratorMask }
func (BeginBreadcrumb) Type() CommandType      { return CmdBeginBreadcrumb }
func (EndBreadcrumb) Type() CommandType        { return CmdEndBreadcrumb }
func (SignalFence) Type() CommandType          { return CmdSignalFence }
func (Closure) Type() CommandType              { return CmdClosure }
func (MultiPipelineClosure) Type() CommandType { return CmdMultiPipelineClosure }

// node is one link of a command buffer's list. Nodes live in the buffer's
// slab and are executed and cleared exactly once.
type node struct {
	next *node
	cmd  Command
}
