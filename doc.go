// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rhi records GPU work on any goroutine and replays it on one or
// more execution pipelines of a Device.
//
// # Overview
//
// Producers record draws, dispatches, copies, resource transitions and
// breadcrumbs into a CommandBuffer. Recording takes no shared lock: a buffer
// belongs to its goroutine until Close. The Executor translates closed
// buffers into backend command lists, serially or on a worker pool, and
// submits them to the Device in submission order.
//
// # Quick Start
//
//	dev, _ := backend.Open("noop")
//	e, _ := rhi.NewExecutor(dev)
//	defer e.Close()
//
//	b := e.NewCommandBuffer("frame")
//	b.PushBreadcrumb("shadows", rhi.PipelinePrimary)
//	b.SetPipelineState(state)
//	b.BeginRenderPass(rhi.RenderPassDesc{Target: target})
//	b.Draw(rhi.DrawArgs{VertexCount: 3, InstanceCount: 1})
//	b.EndRenderPass()
//	b.PopBreadcrumb(rhi.PipelinePrimary)
//	b.Close()
//
//	err := e.Submit(ctx, b).Wait(ctx)
//
// # Pipelines and Accelerators
//
// A buffer records against a PipelineSet (Primary, AsyncCompute) and an
// AcceleratorMask. Operations that target one pipeline require exactly one
// active pipeline; transitions and fences apply to every active pipeline.
// SwitchAccelerator with the current mask records nothing.
//
// # Bottom of Pipe
//
// In bypass mode (Config.Bypass), for the Executor's Immediate buffer, and
// inside closures replayed by the Executor, recording calls execute at once
// on live contexts instead of being deferred. Nothing is allocated from the
// buffer's arena in that case.
//
// # Errors
//
// Misuse of the recording API (unmatched transitions, unbalanced
// breadcrumbs, recording into a closed buffer, wrong pipeline count) panics
// with a *FatalError naming the buffer, pipeline and breadcrumb. Device and
// translation failures fail the whole submission: its Fence carries the
// error and the Executor reports ErrDeviceLost afterwards.
//
// # Backends
//
// Devices are registered in package backend. backend/capture records every
// call in memory; backend/native drives a gogpu/wgpu hal device.
package rhi
