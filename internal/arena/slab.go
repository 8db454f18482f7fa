// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import "unsafe"

// DefaultSlabPage is the number of objects per slab page.
const DefaultSlabPage = 256

// Slab hands out *T from fixed-capacity pages. Pages never grow in place, so
// returned pointers stay valid until Release. Every object is charged to the
// backing Arena.
type Slab[T any] struct {
	a       *Arena
	perPage int
	pages   [][]T
	cur     []T
	n       int
}

// NewSlab creates a slab charging its objects to a.
// A perPage <= 0 selects DefaultSlabPage.
func NewSlab[T any](a *Arena, perPage int) *Slab[T] {
	if perPage <= 0 {
		perPage = DefaultSlabPage
	}
	return &Slab[T]{a: a, perPage: perPage}
}

// New returns a pointer to a zero T. It panics with an error wrapping
// ErrExhausted when the arena limit is hit.
func (s *Slab[T]) New() *T {
	p, err := s.TryNew()
	if err != nil {
		panic(err)
	}
	return p
}

// TryNew is New with an error return.
func (s *Slab[T]) TryNew() (*T, error) {
	var zero T
	if err := s.a.charge(int64(unsafe.Sizeof(zero))); err != nil {
		return nil, err
	}
	if len(s.cur) == cap(s.cur) {
		s.cur = make([]T, 0, s.perPage)
		s.pages = append(s.pages, s.cur)
	}
	s.cur = append(s.cur, zero)
	s.n++
	return &s.cur[len(s.cur)-1], nil
}

// Adopt moves the donor's pages into s. The byte accounting moves with the
// donor's Arena, which the caller adopts separately.
func (s *Slab[T]) Adopt(donor *Slab[T]) {
	if donor == nil || donor == s {
		return
	}
	s.pages = append(s.pages, donor.pages...)
	s.n += donor.n
	donor.pages = nil
	donor.cur = nil
	donor.n = 0
}

// Len reports the number of live objects.
func (s *Slab[T]) Len() int {
	return s.n
}

// Release drops all pages.
func (s *Slab[T]) Release() {
	for i := range s.pages {
		clear(s.pages[i][:cap(s.pages[i])])
		s.pages[i] = nil
	}
	s.pages = s.pages[:0]
	s.cur = nil
	s.n = 0
}
