package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// Buffer is a hal buffer usable as an rhi.Resource.
type Buffer struct {
	label string
	raw   hal.Buffer
	size  uint64
	usage gputypes.BufferUsage
}

var _ rhi.Resource = (*Buffer)(nil)

// CreateBuffer creates a buffer. CopyDst and CopySrc are always added to
// usage so the buffer can take UpdateBuffer and CopyBuffer commands.
func (d *Device) CreateBuffer(label string, size uint64, usage gputypes.BufferUsage) (*Buffer, error) {
	usage |= gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create buffer %q: %w", label, err)
	}
	return &Buffer{label: label, raw: raw, size: size, usage: usage}, nil
}

// ResourceKind implements rhi.Resource.
func (b *Buffer) ResourceKind() rhi.ResourceKind { return rhi.ResourceBuffer }

// Label implements rhi.Resource.
func (b *Buffer) Label() string { return b.label }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Raw returns the hal buffer.
func (b *Buffer) Raw() hal.Buffer { return b.raw }

// DestroyBuffer releases b. The buffer must not be referenced by work
// that has not retired.
func (d *Device) DestroyBuffer(b *Buffer) {
	if b == nil || b.raw == nil {
		return
	}
	d.dev.DestroyBuffer(b.raw)
	b.raw = nil
}

// Texture is a 2D hal texture with a default view, usable as an
// rhi.Resource and as a render pass target.
type Texture struct {
	label         string
	raw           hal.Texture
	view          hal.TextureView
	width, height uint32
	format        gputypes.TextureFormat
	usage         gputypes.TextureUsage
}

var _ rhi.Resource = (*Texture)(nil)

// CreateTexture creates a single-mip 2D texture and its view. A zero format
// selects the device's default target format.
func (d *Device) CreateTexture(label string, width, height uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) (*Texture, error) {
	if format == gputypes.TextureFormatUndefined {
		format = d.opts.format
	}
	raw, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %q: %w", label, err)
	}
	view, err := d.dev.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		d.dev.DestroyTexture(raw)
		return nil, fmt.Errorf("native: create view of %q: %w", label, err)
	}
	return &Texture{
		label:  label,
		raw:    raw,
		view:   view,
		width:  width,
		height: height,
		format: format,
		usage:  usage,
	}, nil
}

// ResourceKind implements rhi.Resource.
func (t *Texture) ResourceKind() rhi.ResourceKind { return rhi.ResourceTexture }

// Label implements rhi.Resource.
func (t *Texture) Label() string { return t.label }

// Size returns the texture dimensions.
func (t *Texture) Size() (width, height uint32) { return t.width, t.height }

// Format returns the texture format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Raw returns the hal texture and its default view.
func (t *Texture) Raw() (hal.Texture, hal.TextureView) { return t.raw, t.view }

// DestroyTexture releases the texture and its view.
func (d *Device) DestroyTexture(t *Texture) {
	if t == nil || t.raw == nil {
		return
	}
	if t.view != nil {
		d.dev.DestroyTextureView(t.view)
		t.view = nil
	}
	d.dev.DestroyTexture(t.raw)
	t.raw = nil
}

func asBuffer(r rhi.Resource) (*Buffer, error) {
	b, ok := r.(*Buffer)
	if !ok || b == nil || b.raw == nil {
		return nil, fmt.Errorf("%w: %T is not a live native buffer", ErrForeignResource, r)
	}
	return b, nil
}

func asTexture(r rhi.Resource) (*Texture, error) {
	t, ok := r.(*Texture)
	if !ok || t == nil || t.raw == nil {
		return nil, fmt.Errorf("%w: %T is not a live native texture", ErrForeignResource, r)
	}
	return t, nil
}
