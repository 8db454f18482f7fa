// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package breadcrumb implements the hierarchical diagnostic scopes that
// correlate CPU recording time with GPU replay time.
//
// Nodes are created from a reference-counted Allocator and form an
// append-only tree: a node's parent is fixed at creation. Each node carries
// one Span per pipeline on each Timeline. A Cursor tracks the currently open
// node per pipeline; command buffers keep a CPU cursor while recording and
// the replay engine keeps a GPU cursor while translating.
package breadcrumb

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MaxPipelines is the number of pipelines a node can track.
const MaxPipelines = 8

// Timeline selects the CPU (record) or GPU (replay) view of a node.
type Timeline uint8

const (
	// CPU is the recording timeline.
	CPU Timeline = iota
	// GPU is the replay timeline.
	GPU

	numTimelines
)

// String returns "cpu" or "gpu".
func (tl Timeline) String() string {
	switch tl {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	default:
		return fmt.Sprintf("Timeline(%d)", uint8(tl))
	}
}

var (
	// ErrAlreadyBegun is returned when a node is begun twice on the same
	// pipeline without an intervening end.
	ErrAlreadyBegun = errors.New("breadcrumb: node already begun on pipeline")

	// ErrNotCurrent is returned when ending a node that is not the innermost
	// open node of the pipeline.
	ErrNotCurrent = errors.New("breadcrumb: node is not the current node")

	// ErrReleased is returned when using an allocator after its last release.
	ErrReleased = errors.New("breadcrumb: allocator released")

	// ErrBadPipeline is returned for pipeline indices outside [0, MaxPipelines).
	ErrBadPipeline = errors.New("breadcrumb: pipeline index out of range")
)

// Span is a begin/end pair on one timeline. Zero times mean "not yet".
type Span struct {
	Begin time.Time
	End   time.Time
}

// Closed reports whether both ends are set.
func (s Span) Closed() bool {
	return !s.Begin.IsZero() && !s.End.IsZero()
}

// Duration returns End-Begin for a closed span and 0 otherwise.
func (s Span) Duration() time.Duration {
	if !s.Closed() {
		return 0
	}
	return s.End.Sub(s.Begin)
}

// Node is one named scope in a breadcrumb tree.
type Node struct {
	name   string
	parent *Node
	alloc  *Allocator
	depth  int

	mu       sync.Mutex
	children []*Node
	spans    [numTimelines][MaxPipelines]Span

	// began holds one bit per pipeline for each timeline.
	began [numTimelines]atomic.Uint32
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Depth returns 0 for a root, 1 for its children, and so on.
func (n *Node) Depth() int { return n.depth }

// Allocator returns the allocator that owns n.
func (n *Node) Allocator() *Allocator { return n.alloc }

// Children returns a snapshot of the node's children in creation order.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.children...)
}

// Path returns the slash-separated names from the root's first child to n.
// The root itself is omitted so paths read like "Frame/Shadows".
func (n *Node) Path() string {
	var parts []string
	for c := n; c != nil && c.parent != nil; c = c.parent {
		parts = append(parts, c.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Span returns the node's span for a pipeline on a timeline.
func (n *Node) Span(tl Timeline, pipe int) Span {
	if pipe < 0 || pipe >= MaxPipelines {
		return Span{}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.spans[tl][pipe]
}

// Began reports whether n is currently open on pipe on the timeline.
func (n *Node) Began(tl Timeline, pipe int) bool {
	if pipe < 0 || pipe >= MaxPipelines {
		return false
	}
	return n.began[tl].Load()&(1<<pipe) != 0
}

// Record stores a begin or end timestamp for pipe on the timeline.
func (n *Node) Record(tl Timeline, pipe int, begin bool, at time.Time) {
	if pipe < 0 || pipe >= MaxPipelines {
		return
	}
	n.mu.Lock()
	if begin {
		n.spans[tl][pipe] = Span{Begin: at}
	} else {
		n.spans[tl][pipe].End = at
	}
	n.mu.Unlock()
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(fn)
	}
}

// markBegan sets the began bit, failing if it was already set.
func (n *Node) markBegan(tl Timeline, pipe int) bool {
	bit := uint32(1) << pipe
	for {
		old := n.began[tl].Load()
		if old&bit != 0 {
			return false
		}
		if n.began[tl].CompareAndSwap(old, old|bit) {
			return true
		}
	}
}

func (n *Node) clearBegan(tl Timeline, pipe int) {
	n.began[tl].And(^(uint32(1) << pipe))
}

func (n *Node) String() string {
	if n.parent == nil {
		return n.name
	}
	return n.Path()
}

// Mark is a deferred span update collected during translation and applied
// when the work is submitted.
type Mark struct {
	Node     *Node
	Pipeline int
	Begin    bool
	At       time.Time
}

// Apply records marks on the timeline in order.
func Apply(tl Timeline, marks []Mark) {
	for _, m := range marks {
		m.Node.Record(tl, m.Pipeline, m.Begin, m.At)
	}
}
