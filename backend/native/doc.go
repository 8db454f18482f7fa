// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native provides an rhi.Device on top of gogpu/wgpu/hal.
//
// Each rhi.Context owns one hal.CommandEncoder. Render passes map to hal
// render passes, dispatches are recorded in short compute passes and
// UpdateBuffer goes through a staging buffer written with Queue.WriteBuffer
// and copied on the GPU timeline.
//
// Pipeline states are compiled from WGSL to SPIR-V with naga once per
// *rhi.PipelineState and kept in a size-limited cache. Evicted pipelines are
// destroyed after the GPU is idle and no context can still reference them.
//
// The backend drives a single accelerator: any mask other than {0} is
// rejected.
//
// Usage:
//
//	dev, err := native.OpenNoop()
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//	exec, err := rhi.NewExecutor(dev)
//
// Importing the package registers the "noop" backend with package backend.
package native
