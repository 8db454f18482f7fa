package native

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend"
)

const renderWGSL = `
@vertex
fn vs_main() -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

const computeWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = id.x;
}
`

func renderState(label string) *rhi.PipelineState {
	return &rhi.PipelineState{Label: label, Kind: rhi.RenderPipeline, WGSL: renderWGSL}
}

func computeState(label string) *rhi.PipelineState {
	return &rhi.PipelineState{Label: label, Kind: rhi.ComputePipeline, WGSL: computeWGSL}
}

func openNoop(t *testing.T, opts ...Option) *Device {
	t.Helper()
	d, err := OpenNoop(opts...)
	if err != nil {
		t.Fatalf("OpenNoop: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newExecutor(t *testing.T, d rhi.Device) *rhi.Executor {
	t.Helper()
	e, err := rhi.NewExecutor(d)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func submit(e *rhi.Executor, bufs ...*rhi.CommandBuffer) error {
	return e.Submit(context.Background(), bufs...).Wait(context.Background())
}

func TestNoopRegistered(t *testing.T) {
	dev, err := backend.Open(BackendNoop)
	if err != nil {
		t.Fatalf("backend.Open: %v", err)
	}
	d, ok := dev.(*Device)
	if !ok {
		t.Fatalf("Open returned %T", dev)
	}
	defer d.Close()
	if d.Name() != BackendNoop || d.Accelerators() != 1 {
		t.Errorf("Name()=%q Accelerators()=%d", d.Name(), d.Accelerators())
	}
}

func TestOpenNil(t *testing.T) {
	if _, err := Open(nil, nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("Open(nil, nil) error = %v, want ErrNilDevice", err)
	}
}

func TestFrame(t *testing.T) {
	d := openNoop(t)
	e := newExecutor(t, d)

	target, err := d.CreateTexture("target", 64, 64, 0,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyTexture(target)
	vertices, err := d.CreateBuffer("vertices", 256, gputypes.BufferUsageVertex)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyBuffer(vertices)
	scratch, err := d.CreateBuffer("scratch", 256, gputypes.BufferUsageStorage)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyBuffer(scratch)

	draw := renderState("draw")
	sim := computeState("sim")

	b := e.NewCommandBuffer("frame")
	b.UpdateBuffer(vertices, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b.SetPipelineState(sim)
	b.Dispatch(4, 1, 1)
	b.CopyBuffer(rhi.CopyBufferArgs{Src: vertices, Dst: scratch, Size: 8})
	b.BeginTransition(target,
		rhi.TextureAccess(gputypes.TextureUsageTextureBinding),
		rhi.TextureAccess(gputypes.TextureUsageRenderAttachment))
	b.EndTransition(target,
		rhi.TextureAccess(gputypes.TextureUsageTextureBinding),
		rhi.TextureAccess(gputypes.TextureUsageRenderAttachment))
	b.SetPipelineState(draw)
	b.BeginRenderPass(rhi.RenderPassDesc{Label: "main", Target: target, Load: gputypes.LoadOpClear})
	for i := range 3 {
		b.Draw(rhi.DrawArgs{VertexCount: 3, InstanceCount: 1, FirstVertex: uint32(i * 3)})
	}
	b.EndRenderPass()
	b.Close()

	if err := submit(e, b); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s := d.Stats()
	if s.Submissions != 1 || s.CommandBuffers != 1 {
		t.Errorf("Submissions=%d CommandBuffers=%d, want 1/1", s.Submissions, s.CommandBuffers)
	}
	if s.StagingBytes != 8 {
		t.Errorf("StagingBytes = %d, want 8", s.StagingBytes)
	}
	if s.Pipelines.Len != 2 {
		t.Errorf("compiled pipelines = %d, want 2", s.Pipelines.Len)
	}
	if s.LastSubmission == 0 {
		t.Error("LastSubmission not recorded")
	}
	if es := e.Stats(); es.Draws != 3 || es.Dispatches != 1 {
		t.Errorf("executor Draws=%d Dispatches=%d, want 3/1", es.Draws, es.Dispatches)
	}
	if len(d.pending) != 0 {
		t.Errorf("%d lists still pending after submit", len(d.pending))
	}
}

func TestPipelineCompiledOnce(t *testing.T) {
	d := openNoop(t)
	e := newExecutor(t, d)
	sim := computeState("sim")

	for range 3 {
		b := e.NewCommandBuffer("dispatch")
		b.SetPipelineState(sim)
		b.Dispatch(1, 1, 1)
		b.Close()
		if err := submit(e, b); err != nil {
			t.Fatal(err)
		}
	}
	ps := d.Stats().Pipelines
	if ps.Misses != 1 {
		t.Errorf("pipeline compiled %d times, want 1", ps.Misses)
	}
	if ps.Hits < 2 {
		t.Errorf("pipeline cache hits = %d, want >= 2", ps.Hits)
	}
}

func TestEvictedPipelinesDestroyedAfterSubmit(t *testing.T) {
	d := openNoop(t, WithPipelineCacheSize(1))
	e := newExecutor(t, d)

	b := e.NewCommandBuffer("many")
	for _, label := range []string{"a", "b", "c"} {
		b.SetPipelineState(computeState(label))
		b.Dispatch(1, 1, 1)
	}
	b.Close()
	if err := submit(e, b); err != nil {
		t.Fatal(err)
	}

	if ev := d.Stats().Pipelines.Evictions; ev == 0 {
		t.Fatal("no pipeline was evicted")
	}
	d.mu.Lock()
	buried := len(d.graveyard)
	d.mu.Unlock()
	if buried != 0 {
		t.Errorf("%d evicted pipelines not destroyed after submit", buried)
	}
}

func TestContextErrors(t *testing.T) {
	tex := func(d *Device) rhi.Resource {
		t, _ := d.CreateTexture("t", 4, 4, 0, gputypes.TextureUsageRenderAttachment)
		return t
	}
	buf := func(d *Device) rhi.Resource {
		b, _ := d.CreateBuffer("b", 16, 0)
		return b
	}

	tests := []struct {
		name   string
		record func(d *Device, b *rhi.CommandBuffer)
		want   error
	}{
		{
			name: "mask",
			record: func(_ *Device, b *rhi.CommandBuffer) {
				b.SwitchAccelerator(rhi.NewAcceleratorMask(1))
				b.Dispatch(1, 1, 1)
			},
			want: ErrMaskUnsupported,
		},
		{
			name: "draw without state",
			record: func(d *Device, b *rhi.CommandBuffer) {
				b.BeginRenderPass(rhi.RenderPassDesc{Target: tex(d)})
				b.Draw(rhi.DrawArgs{VertexCount: 3, InstanceCount: 1})
				b.EndRenderPass()
			},
			want: ErrNoPipelineState,
		},
		{
			name: "dispatch with render state",
			record: func(_ *Device, b *rhi.CommandBuffer) {
				b.SetPipelineState(renderState("r"))
				b.Dispatch(1, 1, 1)
			},
			want: ErrNoPipelineState,
		},
		{
			name: "unaligned update",
			record: func(d *Device, b *rhi.CommandBuffer) {
				b.UpdateBuffer(buf(d), 2, []byte{1, 2, 3, 4})
			},
			want: ErrUnaligned,
		},
		{
			name: "foreign buffer",
			record: func(_ *Device, b *rhi.CommandBuffer) {
				b.UpdateBuffer(rhi.NewBufferHandle("h"), 0, []byte{1, 2, 3, 4})
			},
			want: ErrForeignResource,
		},
		{
			name: "pass on buffer",
			record: func(d *Device, b *rhi.CommandBuffer) {
				b.BeginRenderPass(rhi.RenderPassDesc{Target: buf(d)})
				b.EndRenderPass()
			},
			want: ErrForeignResource,
		},
		{
			name: "copy inside pass",
			record: func(d *Device, b *rhi.CommandBuffer) {
				src := buf(d)
				b.BeginRenderPass(rhi.RenderPassDesc{Target: tex(d)})
				b.CopyBuffer(rhi.CopyBufferArgs{Src: src, Dst: src, Size: 4})
				b.EndRenderPass()
			},
			want: ErrInRenderPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := openNoop(t)
			e := newExecutor(t, d)
			b := e.NewCommandBuffer(tt.name)
			tt.record(d, b)
			b.Close()

			err := submit(e, b)
			if !errors.Is(err, tt.want) {
				t.Fatalf("submit error = %v, want %v", err, tt.want)
			}
			if d.Stats().Submissions != 0 {
				t.Error("failed buffer reached the queue")
			}
		})
	}
}

func TestShaderCompileError(t *testing.T) {
	d := openNoop(t)
	e := newExecutor(t, d)

	bad := &rhi.PipelineState{Label: "bad", Kind: rhi.ComputePipeline, WGSL: "fn main( -> {"}
	b := e.NewCommandBuffer("bad")
	b.SetPipelineState(bad)
	b.Dispatch(1, 1, 1)
	b.Close()

	if err := submit(e, b); err == nil {
		t.Fatal("submit succeeded with an invalid shader")
	}
	if d.Stats().Pipelines.Len != 0 {
		t.Error("failed pipeline was cached")
	}
}

func TestEmptyBufferSubmitsNothing(t *testing.T) {
	d := openNoop(t)
	e := newExecutor(t, d)

	b := e.NewCommandBuffer("empty")
	b.Close()
	if err := submit(e, b); err != nil {
		t.Fatal(err)
	}
	if d.Stats().Submissions != 0 {
		t.Errorf("Submissions = %d, want 0", d.Stats().Submissions)
	}
}

func TestCloseDevice(t *testing.T) {
	d, err := OpenNoop()
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := d.NewContext(rhi.PipelinePrimary); !errors.Is(err, ErrClosed) {
		t.Errorf("NewContext after Close error = %v, want ErrClosed", err)
	}
}

func TestForeignList(t *testing.T) {
	d := openNoop(t)
	other := openNoop(t)

	ctx, err := other.NewContext(rhi.PipelinePrimary)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := other.CreateBuffer("x", 16, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.UpdateBuffer(buf, 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	l, err := ctx.Finish()
	if err != nil || l == nil {
		t.Fatalf("Finish = %v, %v", l, err)
	}
	if err := d.Submit([]rhi.CommandList{l}); !errors.Is(err, ErrForeignList) {
		t.Errorf("Submit error = %v, want ErrForeignList", err)
	}
}

type fakeProvider struct {
	hd, hq any
}

func (p *fakeProvider) Device() gpucontext.Device { return nil }
func (p *fakeProvider) Queue() gpucontext.Queue   { return nil }
func (p *fakeProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}
func (p *fakeProvider) Adapter() gpucontext.Adapter { return nil }
func (p *fakeProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "Noop Adapter", Type: gpucontext.AdapterTypeSoftware}
}
func (p *fakeProvider) HalDevice() any { return p.hd }
func (p *fakeProvider) HalQueue() any  { return p.hq }

// bareProvider has no hal accessors.
type bareProvider struct{}

func (bareProvider) Device() gpucontext.Device             { return nil }
func (bareProvider) Queue() gpucontext.Queue               { return nil }
func (bareProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (bareProvider) Adapter() gpucontext.Adapter           { return nil }
func (bareProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

func TestOpenProvider(t *testing.T) {
	host := openNoop(t)
	hd, hq := host.HAL()

	d, err := OpenProvider(&fakeProvider{hd: hd, hq: hq})
	if err != nil {
		t.Fatalf("OpenProvider: %v", err)
	}
	defer d.Close()
	if d.Name() != "provider:Noop Adapter" {
		t.Errorf("Name() = %q", d.Name())
	}
	tex, err := d.CreateTexture("surface", 8, 8, 0, gputypes.TextureUsageRenderAttachment)
	if err != nil {
		t.Fatal(err)
	}
	if tex.Format() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("default format = %v, want surface format", tex.Format())
	}

	if _, err := OpenProvider(&fakeProvider{hd: "not a device", hq: hq}); !errors.Is(err, ErrNotHAL) {
		t.Errorf("bad HalDevice error = %v, want ErrNotHAL", err)
	}
	if _, err := OpenProvider(bareProvider{}); !errors.Is(err, ErrNotHAL) {
		t.Errorf("provider without hal accessors error = %v, want ErrNotHAL", err)
	}
}
