package rhi

import (
	"fmt"
	"time"

	"github.com/gogpu/rhi/breadcrumb"
)

// NewBreadcrumb creates a node named name under the current CPU breadcrumb
// of pipeline p. The node is not opened.
func (b *CommandBuffer) NewBreadcrumb(name string, p Pipeline) *breadcrumb.Node {
	parent := b.cpu.Current(int(p))
	return parent.Allocator().New(parent, name)
}

// CurrentBreadcrumb returns the innermost open CPU breadcrumb of p, or the
// buffer's root.
func (b *CommandBuffer) CurrentBreadcrumb(p Pipeline) *breadcrumb.Node {
	return b.cpu.Current(int(p))
}

// BeginBreadcrumb opens n on pipeline p on the CPU timeline now and on the
// GPU timeline when replay reaches this point. Beginning a node that is
// already open on p is fatal.
func (b *CommandBuffer) BeginBreadcrumb(n *breadcrumb.Node, p Pipeline) {
	const op = "BeginBreadcrumb"
	b.prepare(op)
	if n == nil {
		b.fail(op, fmt.Errorf("%w: breadcrumb", ErrNilResource))
	}
	if p >= NumPipelines {
		b.fail(op, fmt.Errorf("%w: %s", ErrInvalidPipelineSet, p))
	}
	if !b.reentrant() {
		if err := b.cpu.Begin(n, int(p)); err != nil {
			b.fail(op, err)
		}
		n.Record(breadcrumb.CPU, int(p), true, time.Now())
	}
	b.record(op, BeginBreadcrumb{Node: n, Pipeline: p})
}

// EndBreadcrumb closes n on pipeline p. n must be the innermost open node.
func (b *CommandBuffer) EndBreadcrumb(n *breadcrumb.Node, p Pipeline) {
	const op = "EndBreadcrumb"
	b.prepare(op)
	if n == nil {
		b.fail(op, fmt.Errorf("%w: breadcrumb", ErrNilResource))
	}
	if p >= NumPipelines {
		b.fail(op, fmt.Errorf("%w: %s", ErrInvalidPipelineSet, p))
	}
	if !b.reentrant() {
		if err := b.cpu.End(n, int(p)); err != nil {
			b.fail(op, err)
		}
		n.Record(breadcrumb.CPU, int(p), false, time.Now())
	}
	b.record(op, EndBreadcrumb{Node: n, Pipeline: p})
}

// PushBreadcrumb creates and opens a child of the current breadcrumb.
func (b *CommandBuffer) PushBreadcrumb(name string, p Pipeline) *breadcrumb.Node {
	n := b.NewBreadcrumb(name, p)
	b.BeginBreadcrumb(n, p)
	return n
}

// PopBreadcrumb closes the current breadcrumb of p.
func (b *CommandBuffer) PopBreadcrumb(p Pipeline) {
	n := b.cpu.Current(int(p))
	if n.Parent() == nil {
		b.fail("PopBreadcrumb", fmt.Errorf("%w: nothing open on %s", ErrUnmatchedBreadcrumb, p))
	}
	b.EndBreadcrumb(n, p)
}
