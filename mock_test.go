package rhi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/rhi/breadcrumb"
)

// event is one call seen by a mock context.
type event struct {
	pipe   Pipeline
	mask   AcceleratorMask
	op     string
	detail string
}

type mockList struct {
	pipe   Pipeline
	events []event
}

func (l *mockList) Pipeline() Pipeline { return l.pipe }

// mockDevice records every context call. Submitted lists are appended to log
// in submission order; calls made on contexts that were never submitted are
// only visible through executed.
type mockDevice struct {
	accelerators int

	mu         sync.Mutex
	log        []event
	batches    [][]*mockList
	failSubmit error
	failOp     string

	contexts atomic.Int64
	executed atomic.Int64
	maskSets atomic.Int64
}

func newMockDevice() *mockDevice {
	return &mockDevice{accelerators: 2}
}

func (d *mockDevice) Name() string      { return "mock" }
func (d *mockDevice) Accelerators() int { return d.accelerators }

func (d *mockDevice) NewContext(p Pipeline) (Context, error) {
	d.contexts.Add(1)
	return &mockContext{d: d, list: &mockList{pipe: p}, mask: DefaultAcceleratorMask}, nil
}

func (d *mockDevice) Submit(lists []CommandList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSubmit != nil {
		return d.failSubmit
	}
	batch := make([]*mockList, 0, len(lists))
	for _, l := range lists {
		ml := l.(*mockList)
		batch = append(batch, ml)
		d.log = append(d.log, ml.events...)
	}
	d.batches = append(d.batches, batch)
	return nil
}

func (d *mockDevice) setFailOp(op string) {
	d.mu.Lock()
	d.failOp = op
	d.mu.Unlock()
}

func (d *mockDevice) setFailSubmit(err error) {
	d.mu.Lock()
	d.failSubmit = err
	d.mu.Unlock()
}

// events returns submitted events, filtered by op when op is not empty.
func (d *mockDevice) events(op string) []event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []event
	for _, e := range d.log {
		if op == "" || e.op == op {
			out = append(out, e)
		}
	}
	return out
}

func (d *mockDevice) details(op string) []string {
	var out []string
	for _, e := range d.events(op) {
		out = append(out, e.detail)
	}
	return out
}

func (d *mockDevice) numBatches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func (d *mockDevice) lastBatch() []*mockList {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.batches) == 0 {
		return nil
	}
	return d.batches[len(d.batches)-1]
}

type mockContext struct {
	d    *mockDevice
	list *mockList
	mask AcceleratorMask
}

func (c *mockContext) add(op, detail string) error {
	c.d.executed.Add(1)
	c.d.mu.Lock()
	fail := c.d.failOp
	c.d.mu.Unlock()
	if fail == op {
		return fmt.Errorf("mock: %s failed", op)
	}
	c.list.events = append(c.list.events, event{pipe: c.list.pipe, mask: c.mask, op: op, detail: detail})
	return nil
}

func (c *mockContext) Pipeline() Pipeline { return c.list.pipe }

func (c *mockContext) SetAcceleratorMask(m AcceleratorMask) error {
	c.d.maskSets.Add(1)
	c.mask = m
	return c.add("mask", m.String())
}

func (c *mockContext) SetPipelineState(s *PipelineState) error { return c.add("state", s.Label) }

func (c *mockContext) BeginRenderPass(d RenderPassDesc) error { return c.add("beginpass", d.Label) }
func (c *mockContext) EndRenderPass() error                   { return c.add("endpass", "") }

func (c *mockContext) Draw(a DrawArgs) error {
	return c.add("draw", fmt.Sprint(a.FirstVertex))
}

func (c *mockContext) DrawIndexed(a DrawIndexedArgs) error {
	return c.add("drawindexed", fmt.Sprint(a.FirstIndex))
}

func (c *mockContext) Dispatch(x, y, z uint32) error {
	return c.add("dispatch", fmt.Sprintf("%dx%dx%d", x, y, z))
}

func (c *mockContext) CopyBuffer(a CopyBufferArgs) error {
	return c.add("copy", a.Src.Label()+"->"+a.Dst.Label())
}

func (c *mockContext) UpdateBuffer(dst Resource, offset uint64, data []byte) error {
	return c.add("update", fmt.Sprintf("%s@%d:%x", dst.Label(), offset, data))
}

func (c *mockContext) BeginTransition(t Transition) error {
	return c.add("begintransition", t.Resource.Label())
}

func (c *mockContext) EndTransition(t Transition) error {
	return c.add("endtransition", t.Resource.Label())
}

func (c *mockContext) BeginBreadcrumb(n *breadcrumb.Node) error { return c.add("begincrumb", n.Path()) }
func (c *mockContext) EndBreadcrumb(n *breadcrumb.Node) error   { return c.add("endcrumb", n.Path()) }

func (c *mockContext) Finish() (CommandList, error) {
	if len(c.list.events) == 0 {
		return nil, nil
	}
	return c.list, nil
}

// newTestExecutor creates an executor on dev that is closed with the test.
func newTestExecutor(t *testing.T, dev Device, opts ...Option) *Executor {
	t.Helper()
	e, err := NewExecutor(dev, opts...)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// submitAndWait submits bufs and waits for the fence.
func submitAndWait(t *testing.T, e *Executor, bufs ...*CommandBuffer) error {
	t.Helper()
	return e.Submit(context.Background(), bufs...).Wait(context.Background())
}

// expectFatal runs fn and returns the *FatalError it panicked with.
func expectFatal(t *testing.T, target error, fn func()) *FatalError {
	t.Helper()
	var fe *FatalError
	func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err, ok := r.(error)
			if !ok || !errors.As(err, &fe) {
				t.Fatalf("panic value %v is not a *FatalError", r)
			}
		}()
		fn()
	}()
	if fe == nil {
		t.Fatalf("expected a fatal error wrapping %v", target)
	}
	if !errors.Is(fe, target) {
		t.Fatalf("fatal error %v does not wrap %v", fe, target)
	}
	return fe
}

func draw(first uint32) DrawArgs {
	return DrawArgs{VertexCount: 3, InstanceCount: 1, FirstVertex: first}
}
