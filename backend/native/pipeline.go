package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// compiled holds the hal objects of one pipeline state.
type compiled struct {
	kind    rhi.PipelineKind
	label   string
	module  hal.ShaderModule
	layout  hal.PipelineLayout
	render  hal.RenderPipeline
	compute hal.ComputePipeline
}

// destroy releases the hal objects, pipelines first.
func (c *compiled) destroy(dev hal.Device) {
	if c.render != nil {
		dev.DestroyRenderPipeline(c.render)
		c.render = nil
	}
	if c.compute != nil {
		dev.DestroyComputePipeline(c.compute)
		c.compute = nil
	}
	if c.layout != nil {
		dev.DestroyPipelineLayout(c.layout)
		c.layout = nil
	}
	if c.module != nil {
		dev.DestroyShaderModule(c.module)
		c.module = nil
	}
}

// pipeline returns the compiled form of s, compiling it on first use.
func (d *Device) pipeline(s *rhi.PipelineState) (*compiled, error) {
	if s == nil {
		return nil, ErrNoPipelineState
	}
	return d.states.GetOrCreate(s, func() (*compiled, error) {
		c, err := d.compile(s)
		if err != nil {
			return nil, fmt.Errorf("native: pipeline %q: %w", s.Label, err)
		}
		d.log().Debug("native: compiled pipeline state", "label", s.Label, "kind", s.Kind)
		return c, nil
	})
}

func (d *Device) compile(s *rhi.PipelineState) (*compiled, error) {
	spirv, err := compileSPIRV(s.WGSL)
	if err != nil {
		return nil, err
	}
	c := &compiled{kind: s.Kind, label: s.Label}
	c.module, err = d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  s.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}
	c.layout, err = d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: s.Label})
	if err != nil {
		c.destroy(d.dev)
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	switch s.Kind {
	case rhi.ComputePipeline:
		c.compute, err = d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  s.Label,
			Layout: c.layout,
			Compute: hal.ComputeState{
				Module:     c.module,
				EntryPoint: entryOr(s.ComputeEntry, "cs_main"),
			},
		})
	default:
		format := s.Format
		if format == gputypes.TextureFormatUndefined {
			format = d.opts.format
		}
		c.render, err = d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  s.Label,
			Layout: c.layout,
			Vertex: hal.VertexState{
				Module:     c.module,
				EntryPoint: entryOr(s.VertexEntry, "vs_main"),
			},
			Fragment: &hal.FragmentState{
				Module:     c.module,
				EntryPoint: entryOr(s.FragmentEntry, "fs_main"),
				Targets: []gputypes.ColorTargetState{{
					Format:    format,
					WriteMask: gputypes.ColorWriteMaskAll,
				}},
			},
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			Multisample: gputypes.DefaultMultisampleState(),
		})
	}
	if err != nil {
		c.destroy(d.dev)
		return nil, fmt.Errorf("create %s pipeline: %w", s.Kind, err)
	}
	return c, nil
}

func entryOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	code, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}
