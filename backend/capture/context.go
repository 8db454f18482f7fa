package capture

import (
	"fmt"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/breadcrumb"
)

type captureList struct {
	pipe   rhi.Pipeline
	events []Event
}

// Pipeline implements rhi.CommandList.
func (l *captureList) Pipeline() rhi.Pipeline { return l.pipe }

// captureContext buffers events until its list is submitted. It is used by
// a single goroutine.
type captureContext struct {
	d      *Device
	list   *captureList
	mask   rhi.AcceleratorMask
	crumbs []string
}

var _ rhi.Context = (*captureContext)(nil)

func (c *captureContext) add(kind EventKind, detail string) error {
	if err := c.d.failure(kind); err != nil {
		return fmt.Errorf("capture: %s: %w", kind, err)
	}
	ev := Event{Pipeline: c.list.pipe, Mask: c.mask, Kind: kind, Detail: detail}
	if n := len(c.crumbs); n > 0 {
		ev.Breadcrumb = c.crumbs[n-1]
	}
	c.list.events = append(c.list.events, ev)
	return nil
}

func (c *captureContext) Pipeline() rhi.Pipeline { return c.list.pipe }

func (c *captureContext) SetAcceleratorMask(m rhi.AcceleratorMask) error {
	if !m.Valid() || !rhi.AllAccelerators(c.d.accelerators).Contains(m) {
		return fmt.Errorf("%w: %s on %d accelerators", ErrMaskOutOfRange, m, c.d.accelerators)
	}
	c.mask = m
	return c.add(KindMask, m.String())
}

func (c *captureContext) SetPipelineState(s *rhi.PipelineState) error {
	if s == nil {
		return c.add(KindPipelineState, "<nil>")
	}
	return c.add(KindPipelineState, s.Label)
}

func (c *captureContext) BeginRenderPass(d rhi.RenderPassDesc) error {
	return c.add(KindBeginRenderPass, d.Label)
}

func (c *captureContext) EndRenderPass() error { return c.add(KindEndRenderPass, "") }

func (c *captureContext) Draw(a rhi.DrawArgs) error {
	return c.add(KindDraw, fmt.Sprintf("v=%d i=%d first=%d", a.VertexCount, a.InstanceCount, a.FirstVertex))
}

func (c *captureContext) DrawIndexed(a rhi.DrawIndexedArgs) error {
	return c.add(KindDrawIndexed, fmt.Sprintf("n=%d i=%d first=%d base=%d", a.IndexCount, a.InstanceCount, a.FirstIndex, a.BaseVertex))
}

func (c *captureContext) Dispatch(x, y, z uint32) error {
	return c.add(KindDispatch, fmt.Sprintf("%dx%dx%d", x, y, z))
}

func (c *captureContext) CopyBuffer(a rhi.CopyBufferArgs) error {
	return c.add(KindCopyBuffer, fmt.Sprintf("%s+%d -> %s+%d (%d)", label(a.Src), a.SrcOffset, label(a.Dst), a.DstOffset, a.Size))
}

func (c *captureContext) UpdateBuffer(dst rhi.Resource, offset uint64, data []byte) error {
	return c.add(KindUpdateBuffer, fmt.Sprintf("%s+%d %x", label(dst), offset, data))
}

func (c *captureContext) BeginTransition(t rhi.Transition) error {
	return c.add(KindBeginTransition, label(t.Resource))
}

func (c *captureContext) EndTransition(t rhi.Transition) error {
	return c.add(KindEndTransition, label(t.Resource))
}

func (c *captureContext) BeginBreadcrumb(n *breadcrumb.Node) error {
	if err := c.add(KindBeginBreadcrumb, n.Path()); err != nil {
		return err
	}
	c.crumbs = append(c.crumbs, n.Path())
	return nil
}

func (c *captureContext) EndBreadcrumb(n *breadcrumb.Node) error {
	if k := len(c.crumbs); k > 0 {
		c.crumbs = c.crumbs[:k-1]
	}
	return c.add(KindEndBreadcrumb, n.Path())
}

// Finish returns nil for a context that recorded nothing.
func (c *captureContext) Finish() (rhi.CommandList, error) {
	if len(c.list.events) == 0 {
		return nil, nil
	}
	return c.list, nil
}

func label(r rhi.Resource) string {
	if r == nil {
		return "<nil>"
	}
	return r.Label()
}
