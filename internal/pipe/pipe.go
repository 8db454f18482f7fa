// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipe implements the dispatch pipe: a FIFO chain of work units where
// each unit starts only after its predecessor finished.
//
// Units are linked by swapping the chain tail with compare-and-swap, so
// launching never takes a lock and there is no central scheduler goroutine.
// Each unit runs on its own goroutine, which blocks on the predecessor's
// completion channel.
package pipe

import (
	"context"
	"sync/atomic"
)

// unit is one link of the chain.
type unit struct {
	done chan struct{}
}

// Pipe is a dispatch pipe. The zero value is not usable; call New.
//
// Pipe is safe for concurrent use. Units launched from different goroutines
// run in the order their Launch calls won the tail swap.
type Pipe struct {
	tail     atomic.Pointer[unit]
	pending  atomic.Int64
	launched atomic.Uint64
}

// New creates an idle pipe.
func New() *Pipe {
	p := &Pipe{}
	first := &unit{done: make(chan struct{})}
	close(first.done)
	p.tail.Store(first)
	return p
}

// Launch appends fn to the chain. fn runs after every previously launched
// unit has returned. A panic in fn still releases the next unit, then
// propagates.
func (p *Pipe) Launch(fn func()) {
	u := &unit{done: make(chan struct{})}
	var prev *unit
	for {
		prev = p.tail.Load()
		if p.tail.CompareAndSwap(prev, u) {
			break
		}
	}
	p.pending.Add(1)
	p.launched.Add(1)

	go func() {
		defer func() {
			p.pending.Add(-1)
			close(u.done)
		}()
		<-prev.done
		fn()
	}()
}

// Wait blocks until every unit launched before the call has finished, or
// ctx is done.
func (p *Pipe) Wait(ctx context.Context) error {
	u := p.tail.Load()
	select {
	case <-u.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of units launched but not yet finished.
func (p *Pipe) Pending() int {
	return int(p.pending.Load())
}

// Launched returns the total number of units ever launched.
func (p *Pipe) Launched() uint64 {
	return p.launched.Load()
}

// Idle reports whether no unit is running or waiting.
func (p *Pipe) Idle() bool {
	return p.pending.Load() == 0
}
