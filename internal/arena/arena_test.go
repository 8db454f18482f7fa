package arena

import (
	"errors"
	"testing"
	"unsafe"
)

func TestArena_AllocateAlignment(t *testing.T) {
	a := New(256, 0)

	first := a.Allocate(3, 1)
	if len(first) != 3 {
		t.Fatalf("len = %d, want 3", len(first))
	}

	second := a.Allocate(8, 8)
	page := a.pages[0]
	off := int(uintptr(unsafe.Pointer(&second[0])) - uintptr(unsafe.Pointer(&page[0])))
	if off%8 != 0 {
		t.Errorf("offset %d is not 8-aligned", off)
	}
	if a.Bytes() != 11 {
		t.Errorf("Bytes() = %d, want 11", a.Bytes())
	}
}

func TestArena_ZeroesRecycledMemory(t *testing.T) {
	a := New(0, 0)
	b := a.Allocate(16, 1)
	for i := range b {
		b[i] = 0xFF
	}
	a.Release()

	c := a.Allocate(16, 1)
	for i, v := range c {
		if v != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, v)
		}
	}
}

func TestArena_GrowsPages(t *testing.T) {
	a := New(64, 0)
	for range 10 {
		a.Allocate(32, 1)
	}
	if a.Pages() < 5 {
		t.Errorf("Pages() = %d, want >= 5", a.Pages())
	}

	big := a.Allocate(1000, 1)
	if len(big) != 1000 {
		t.Errorf("oversized allocation len = %d, want 1000", len(big))
	}
}

func TestArena_Limit(t *testing.T) {
	a := New(0, 32)
	a.Allocate(24, 1)

	if _, err := a.TryAllocate(16, 1); !errors.Is(err, ErrExhausted) {
		t.Fatalf("TryAllocate err = %v, want ErrExhausted", err)
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrExhausted) {
			t.Fatalf("panic = %v, want ErrExhausted", r)
		}
	}()
	a.Allocate(16, 1)
}

func TestArena_BadAlignment(t *testing.T) {
	a := New(0, 0)
	if _, err := a.TryAllocate(4, 3); err == nil {
		t.Error("expected error for non power-of-two alignment")
	}
}

func TestArena_Adopt(t *testing.T) {
	recv := New(0, 0)
	donor := New(0, 0)

	kept := donor.Allocate(4, 1)
	copy(kept, "data")
	recv.Allocate(8, 1)

	recv.Adopt(donor)

	if donor.Bytes() != 0 || donor.Pages() != 0 {
		t.Errorf("donor not empty: bytes=%d pages=%d", donor.Bytes(), donor.Pages())
	}
	if recv.Bytes() != 12 {
		t.Errorf("receiver Bytes() = %d, want 12", recv.Bytes())
	}
	if string(kept) != "data" {
		t.Errorf("adopted data = %q, want %q", kept, "data")
	}
}

func TestArena_NoAllocationNoBytes(t *testing.T) {
	a := New(0, 0)
	if a.Bytes() != 0 || a.Pages() != 0 {
		t.Errorf("fresh arena: bytes=%d pages=%d", a.Bytes(), a.Pages())
	}
}

type item struct {
	next *item
	v    int
}

func TestSlab_StablePointers(t *testing.T) {
	a := New(0, 0)
	s := NewSlab[item](a, 4)

	var ptrs []*item
	for i := range 10 {
		p := s.New()
		p.v = i
		ptrs = append(ptrs, p)
	}
	for i, p := range ptrs {
		if p.v != i {
			t.Errorf("ptrs[%d].v = %d, want %d", i, p.v, i)
		}
	}
	if s.Len() != 10 {
		t.Errorf("Len() = %d, want 10", s.Len())
	}
	want := int64(10 * unsafe.Sizeof(item{}))
	if a.Bytes() != want {
		t.Errorf("arena Bytes() = %d, want %d", a.Bytes(), want)
	}
}

func TestSlab_LimitAndAdopt(t *testing.T) {
	size := int64(unsafe.Sizeof(item{}))
	a := New(0, 2*size)
	s := NewSlab[item](a, 0)
	s.New()
	s.New()
	if _, err := s.TryNew(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("TryNew err = %v, want ErrExhausted", err)
	}

	other := NewSlab[item](New(0, 0), 0)
	other.New()
	s.Adopt(other)
	if s.Len() != 3 || other.Len() != 0 {
		t.Errorf("after Adopt: s.Len=%d other.Len=%d", s.Len(), other.Len())
	}

	s.Release()
	if s.Len() != 0 {
		t.Errorf("Len() after Release = %d", s.Len())
	}
}
