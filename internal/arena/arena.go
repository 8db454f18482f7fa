// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package arena provides the page-based bump allocators that back command
// buffer storage.
//
// An Arena hands out byte ranges that stay valid until Release. There are no
// individual frees: all pages are returned at once when the owning command
// buffer retires. A Slab is a typed companion that hands out stable *T
// pointers (command nodes) and charges its usage to an Arena, so a single
// byte budget covers both.
package arena

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultPageSize is the size of a regular arena page.
const DefaultPageSize = 64 << 10

// ErrExhausted is returned (or panicked with) when an allocation would push
// the arena past its byte limit.
var ErrExhausted = errors.New("arena: exhausted")

// pagePool recycles DefaultPageSize pages between arenas.
var pagePool = sync.Pool{
	New: func() any {
		p := make([]byte, DefaultPageSize)
		return &p
	},
}

// Arena is a paged bump allocator.
//
// Arena is not safe for concurrent use. It is owned by exactly one command
// buffer, which is in turn owned by one goroutine at a time.
type Arena struct {
	pageSize int
	limit    int64

	pages [][]byte
	cur   []byte
	off   int

	used int64
}

// New creates an arena with the given page size and byte limit.
// A pageSize <= 0 selects DefaultPageSize. A limit <= 0 means unlimited.
// No memory is reserved until the first allocation.
func New(pageSize int, limit int64) *Arena {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Arena{pageSize: pageSize, limit: limit}
}

// Allocate returns a zeroed slice of size bytes aligned to align within its
// page. It panics with an error wrapping ErrExhausted when the limit is hit.
func (a *Arena) Allocate(size, align int) []byte {
	b, err := a.TryAllocate(size, align)
	if err != nil {
		panic(err)
	}
	return b
}

// TryAllocate is Allocate with an error return instead of a panic.
// align must be a power of two; values < 1 are treated as 1.
func (a *Arena) TryAllocate(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("arena: negative allocation size %d", size)
	}
	if align < 1 {
		align = 1
	}
	if align&(align-1) != 0 {
		return nil, fmt.Errorf("arena: alignment %d is not a power of two", align)
	}
	if err := a.charge(int64(size)); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	off := (a.off + align - 1) &^ (align - 1)
	if a.cur == nil || off+size > len(a.cur) {
		a.grow(size + align)
		off = 0
	}
	b := a.cur[off : off+size : off+size]
	clear(b)
	a.off = off + size
	return b, nil
}

// charge accounts n bytes against the limit.
func (a *Arena) charge(n int64) error {
	if a.limit > 0 && a.used+n > a.limit {
		return fmt.Errorf("%w: %d + %d bytes exceeds limit %d", ErrExhausted, a.used, n, a.limit)
	}
	a.used += n
	return nil
}

// grow starts a new page large enough for min bytes.
// Oversized requests get a dedicated page that is not recycled.
func (a *Arena) grow(min int) {
	var page []byte
	switch {
	case min > a.pageSize:
		page = make([]byte, min)
	case a.pageSize == DefaultPageSize:
		page = *pagePool.Get().(*[]byte)
	default:
		page = make([]byte, a.pageSize)
	}
	a.pages = append(a.pages, page)
	a.cur = page
	a.off = 0
}

// Adopt moves every page of donor into a, leaving donor empty.
// The receiver keeps bumping in its own current page; donor pages are only
// kept alive, never reused for new allocations.
func (a *Arena) Adopt(donor *Arena) {
	if donor == nil || donor == a {
		return
	}
	a.pages = append(a.pages, donor.pages...)
	a.used += donor.used
	if a.cur == nil {
		a.cur = donor.cur
		a.off = donor.off
	}
	donor.pages = nil
	donor.cur = nil
	donor.off = 0
	donor.used = 0
}

// Bytes reports the number of bytes handed out (including slab objects).
func (a *Arena) Bytes() int64 {
	return a.used
}

// Pages reports the number of pages held.
func (a *Arena) Pages() int {
	return len(a.pages)
}

// Limit returns the byte limit, or 0 when unlimited.
func (a *Arena) Limit() int64 {
	return a.limit
}

// Release returns all pages. Slices handed out earlier must not be used
// afterwards. The arena may be reused.
func (a *Arena) Release() {
	for i, p := range a.pages {
		if len(p) == DefaultPageSize && cap(p) == DefaultPageSize {
			pagePool.Put(&p)
		}
		a.pages[i] = nil
	}
	a.pages = a.pages[:0]
	a.cur = nil
	a.off = 0
	a.used = 0
}
