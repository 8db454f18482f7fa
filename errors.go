// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"errors"
	"fmt"
	"strings"
)

// Programming errors. These are raised as a *FatalError panic: a buffer that
// violates them cannot be replayed safely.
var (
	// ErrBufferClosed is raised when recording into a buffer that is no
	// longer in the Recording state.
	ErrBufferClosed = errors.New("rhi: command buffer is not recording")

	// ErrImmediateBuffer is raised when closing, consuming or submitting the
	// immediate buffer.
	ErrImmediateBuffer = errors.New("rhi: operation not allowed on the immediate buffer")

	// ErrForeignBuffer is raised when submitting a buffer created by another
	// executor.
	ErrForeignBuffer = errors.New("rhi: command buffer belongs to another executor")

	// ErrBufferNotClosed is raised when submitting a buffer that was not closed.
	ErrBufferNotClosed = errors.New("rhi: command buffer must be closed before submission")

	// ErrPipelineNotSingle is raised by single-pipeline operations when the
	// active set does not contain exactly one pipeline.
	ErrPipelineNotSingle = errors.New("rhi: operation requires exactly one active pipeline")

	// ErrInvalidPipelineSet is raised for empty or unknown pipeline sets.
	ErrInvalidPipelineSet = errors.New("rhi: invalid pipeline set")

	// ErrEmptyMask is raised for an accelerator mask with no bits set.
	ErrEmptyMask = errors.New("rhi: accelerator mask is empty")

	// ErrUnmatchedTransition is raised when a buffer closes with open
	// transitions.
	ErrUnmatchedTransition = errors.New("rhi: unmatched resource transition")

	// ErrTransitionNotBegun is raised by EndTransition on a resource that has
	// no open transition.
	ErrTransitionNotBegun = errors.New("rhi: transition ended but never begun")

	// ErrTransitionAlreadyBegun is raised by BeginTransition on a resource
	// whose transition is still open.
	ErrTransitionAlreadyBegun = errors.New("rhi: transition already begun")

	// ErrTransitionMismatch is raised when EndTransition states differ from
	// the matching BeginTransition.
	ErrTransitionMismatch = errors.New("rhi: transition end does not match begin")

	// ErrUnmatchedRenderPass is raised for EndRenderPass without a begin, or
	// a buffer closing inside a render pass.
	ErrUnmatchedRenderPass = errors.New("rhi: unmatched render pass")

	// ErrRenderPassOpen is raised when switching pipelines inside a render pass.
	ErrRenderPassOpen = errors.New("rhi: render pass is open")

	// ErrUnmatchedBreadcrumb is raised when a buffer closes or is consumed
	// with open breadcrumbs.
	ErrUnmatchedBreadcrumb = errors.New("rhi: unmatched breadcrumb")

	// ErrNilResource is raised for transitions, copies and breadcrumbs
	// without a resource.
	ErrNilResource = errors.New("rhi: nil resource")
)

// Runtime errors returned from the executor and devices.
var (
	// ErrNilDevice is returned by NewExecutor without a device.
	ErrNilDevice = errors.New("rhi: nil device")

	// ErrExecutorClosed is carried by fences of submissions made after Close.
	ErrExecutorClosed = errors.New("rhi: executor closed")

	// ErrDeviceLost is carried by every submission after a device failure.
	ErrDeviceLost = errors.New("rhi: device lost after a failed submission")

	// ErrInvalidConfig is returned for out-of-range configuration values.
	ErrInvalidConfig = errors.New("rhi: invalid config")
)

// FatalError describes a programming error together with where it happened.
// It is delivered as a panic value; recover it and use errors.Is on the
// wrapped sentinel to identify the violation.
type FatalError struct {
	Op         string
	Buffer     string
	Pipeline   string
	Breadcrumb string
	Err        error
}

func (e *FatalError) Error() string {
	var b strings.Builder
	b.WriteString("rhi: fatal: ")
	b.WriteString(e.Op)
	if e.Buffer != "" {
		fmt.Fprintf(&b, " [buffer %q]", e.Buffer)
	}
	if e.Pipeline != "" {
		fmt.Fprintf(&b, " [pipeline %s]", e.Pipeline)
	}
	if e.Breadcrumb != "" {
		fmt.Fprintf(&b, " [breadcrumb %s]", e.Breadcrumb)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *FatalError) Unwrap() error { return e.Err }

// fatal logs and panics with e.
func fatal(e *FatalError) {
	Logger().Error("rhi: fatal error",
		"op", e.Op,
		"buffer", e.Buffer,
		"pipeline", e.Pipeline,
		"breadcrumb", e.Breadcrumb,
		"err", e.Err)
	panic(e)
}

// recoverError converts a recovered panic value into an error.
func recoverError(r any) error {
	switch v := r.(type) {
	case nil:
		return nil
	case error:
		return v
	default:
		return fmt.Errorf("rhi: panic: %v", v)
	}
}
