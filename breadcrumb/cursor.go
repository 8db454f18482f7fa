// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package breadcrumb

import "fmt"

// Cursor is a per-pipeline stack of open nodes on one timeline.
//
// A Cursor is owned by a single goroutine. The began bits it maintains live
// on the nodes, so beginning the same node twice on the same pipeline is
// caught even across cursors.
type Cursor struct {
	tl     Timeline
	root   *Node
	stacks [MaxPipelines][]*Node
}

// NewCursor returns an empty cursor whose Current falls back to root.
func NewCursor(tl Timeline, root *Node) Cursor {
	return Cursor{tl: tl, root: root}
}

// Timeline returns the cursor's timeline.
func (c *Cursor) Timeline() Timeline { return c.tl }

// Begin pushes n on pipe.
func (c *Cursor) Begin(n *Node, pipe int) error {
	if pipe < 0 || pipe >= MaxPipelines {
		return fmt.Errorf("%w: %d", ErrBadPipeline, pipe)
	}
	if !n.markBegan(c.tl, pipe) {
		return fmt.Errorf("%w: %q on pipeline %d (%s)", ErrAlreadyBegun, n.name, pipe, c.tl)
	}
	c.stacks[pipe] = append(c.stacks[pipe], n)
	return nil
}

// End pops n from pipe. n must be the innermost open node.
func (c *Cursor) End(n *Node, pipe int) error {
	if pipe < 0 || pipe >= MaxPipelines {
		return fmt.Errorf("%w: %d", ErrBadPipeline, pipe)
	}
	s := c.stacks[pipe]
	if len(s) == 0 || s[len(s)-1] != n {
		return fmt.Errorf("%w: end %q on pipeline %d (%s), current %q",
			ErrNotCurrent, n.name, pipe, c.tl, c.Current(pipe).Name())
	}
	c.stacks[pipe] = s[:len(s)-1]
	n.clearBegan(c.tl, pipe)
	return nil
}

// Current returns the innermost open node on pipe, or the root.
func (c *Cursor) Current(pipe int) *Node {
	if pipe >= 0 && pipe < MaxPipelines {
		if s := c.stacks[pipe]; len(s) > 0 {
			return s[len(s)-1]
		}
	}
	return c.root
}

// Depth returns the number of open nodes on pipe.
func (c *Cursor) Depth(pipe int) int {
	if pipe < 0 || pipe >= MaxPipelines {
		return 0
	}
	return len(c.stacks[pipe])
}

// Balanced reports whether no node is open on any pipeline.
func (c *Cursor) Balanced() bool {
	for _, s := range c.stacks {
		if len(s) > 0 {
			return false
		}
	}
	return true
}

// Open returns the innermost open node of the first unbalanced pipeline.
func (c *Cursor) Open() (n *Node, pipe int, ok bool) {
	for p, s := range c.stacks {
		if len(s) > 0 {
			return s[len(s)-1], p, true
		}
	}
	return nil, 0, false
}

// Reset abandons every open node, clearing their began bits.
func (c *Cursor) Reset() {
	for p, s := range c.stacks {
		for _, n := range s {
			n.clearBegan(c.tl, p)
		}
		c.stacks[p] = nil
	}
}
