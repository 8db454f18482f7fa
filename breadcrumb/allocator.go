// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package breadcrumb

import (
	"fmt"
	"sync/atomic"
)

// Allocator owns every node of one recording scope. It is reference counted:
// the creator holds the first reference, and every additional holder (a
// buffer that consumed another, a diagnostics exporter) calls Acquire and
// later Release. After the last Release the tree is dropped and New panics.
type Allocator struct {
	root  *Node
	refs  atomic.Int32
	nodes atomic.Int64
}

// NewAllocator creates an allocator with one reference and a root node.
func NewAllocator(name string) *Allocator {
	a := &Allocator{}
	a.root = &Node{name: name, alloc: a}
	a.refs.Store(1)
	a.nodes.Store(1)
	return a
}

// Root returns the root node.
func (a *Allocator) Root() *Node {
	return a.root
}

// New creates a child of parent. A nil parent means the root.
// parent must belong to a.
func (a *Allocator) New(parent *Node, name string) *Node {
	if a.refs.Load() <= 0 {
		panic(fmt.Errorf("%w: New(%q)", ErrReleased, name))
	}
	if parent == nil {
		parent = a.root
	}
	if parent.alloc != a {
		panic(fmt.Sprintf("breadcrumb: parent %q belongs to another allocator", parent.name))
	}
	n := &Node{name: name, parent: parent, alloc: a, depth: parent.depth + 1}
	parent.mu.Lock()
	parent.children = append(parent.children, n)
	parent.mu.Unlock()
	a.nodes.Add(1)
	return n
}

// Acquire adds a reference and returns a for chaining.
func (a *Allocator) Acquire() *Allocator {
	for {
		r := a.refs.Load()
		if r <= 0 {
			panic(ErrReleased)
		}
		if a.refs.CompareAndSwap(r, r+1) {
			return a
		}
	}
}

// Release drops a reference. The last release detaches the tree.
func (a *Allocator) Release() {
	r := a.refs.Add(-1)
	switch {
	case r < 0:
		panic("breadcrumb: Release called more times than Acquire")
	case r == 0:
		a.root.mu.Lock()
		a.root.children = nil
		a.root.mu.Unlock()
	}
}

// Refs returns the current reference count.
func (a *Allocator) Refs() int {
	return int(a.refs.Load())
}

// Len returns the number of nodes created, including the root.
func (a *Allocator) Len() int {
	return int(a.nodes.Load())
}
