package main

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend/native"
)

const sceneWGSL = `
@group(0) @binding(0) var<storage, read_write> counters: array<u32>;

@vertex
fn vs_main() -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(0.9, 0.4, 0.1, 1.0);
}

@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    counters[id.x] = counters[id.x] + 1u;
}
`

// slotBytes is the per-producer region of the scratch buffer.
const slotBytes = 256

// scene holds the resources every producer records against.
type scene struct {
	producers int

	target  rhi.Resource
	scratch rhi.Resource
	draw    *rhi.PipelineState
	compute *rhi.PipelineState

	release func()
}

// newScene creates real resources on native devices and handles elsewhere.
func newScene(dev rhi.Device, producers int) (*scene, error) {
	s := &scene{
		producers: producers,
		draw:      &rhi.PipelineState{Label: "scene-draw", Kind: rhi.RenderPipeline, WGSL: sceneWGSL},
		compute:   &rhi.PipelineState{Label: "scene-compute", Kind: rhi.ComputePipeline, WGSL: sceneWGSL},
		release:   func() {},
	}
	nd, ok := dev.(*native.Device)
	if !ok {
		s.target = rhi.NewTextureHandle("target")
		s.scratch = rhi.NewBufferHandle("scratch")
		return s, nil
	}

	tex, err := nd.CreateTexture("target", 256, 256, gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}
	buf, err := nd.CreateBuffer("scratch", uint64(2*producers*slotBytes), gputypes.BufferUsageStorage)
	if err != nil {
		nd.DestroyTexture(tex)
		return nil, fmt.Errorf("create scratch: %w", err)
	}
	s.target, s.scratch = tex, buf
	s.release = func() {
		nd.DestroyBuffer(buf)
		nd.DestroyTexture(tex)
	}
	return s, nil
}

// record fills one producer's buffer for a frame: an upload, a compute
// pass, a copy into the readback half of the scratch buffer, and a render
// pass with draws.
func (s *scene) record(e *rhi.Executor, frame, producer, draws int) *rhi.CommandBuffer {
	b := e.NewCommandBuffer(fmt.Sprintf("frame%d/producer%d", frame, producer))
	p := rhi.PipelinePrimary
	b.PushBreadcrumb(fmt.Sprintf("producer%d", producer), p)

	slot := uint64(producer * slotBytes)
	b.PushBreadcrumb("upload", p)
	seed := make([]byte, 16)
	binary.LittleEndian.PutUint32(seed, uint32(frame))
	binary.LittleEndian.PutUint32(seed[4:], uint32(producer))
	b.UpdateBuffer(s.scratch, slot, seed)
	b.PopBreadcrumb(p)

	b.PushBreadcrumb("simulate", p)
	b.SetPipelineState(s.compute)
	b.Dispatch(uint32(draws/64+1), 1, 1)
	b.CopyBuffer(rhi.CopyBufferArgs{
		Src:       s.scratch,
		Dst:       s.scratch,
		SrcOffset: slot,
		DstOffset: uint64(s.producers*slotBytes) + slot,
		Size:      16,
	})
	b.PopBreadcrumb(p)

	b.PushBreadcrumb("draw", p)
	before := rhi.TextureAccess(gputypes.TextureUsageTextureBinding)
	after := rhi.TextureAccess(gputypes.TextureUsageRenderAttachment)
	b.BeginTransition(s.target, before, after)
	b.EndTransition(s.target, before, after)
	b.BeginRenderPass(rhi.RenderPassDesc{
		Label:  "scene",
		Target: s.target,
		Load:   gputypes.LoadOpLoad,
		Store:  gputypes.StoreOpStore,
	})
	b.SetPipelineState(s.draw)
	for i := range draws {
		b.Draw(rhi.DrawArgs{VertexCount: 4, InstanceCount: 1, FirstInstance: uint32(i)})
	}
	b.EndRenderPass()
	b.PopBreadcrumb(p)

	b.PopBreadcrumb(p)
	b.Close()
	return b
}
