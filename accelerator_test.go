package rhi

import (
	"slices"
	"testing"
)

func TestAcceleratorMask_Construct(t *testing.T) {
	m := NewAcceleratorMask(0, 2)
	if !m.Has(0) || m.Has(1) || !m.Has(2) {
		t.Errorf("mask %s has wrong bits", m)
	}
	if m.Count() != 2 || m.First() != 0 {
		t.Errorf("Count() = %d, First() = %d", m.Count(), m.First())
	}
	if got := slices.Collect(m.All()); !slices.Equal(got, []int{0, 2}) {
		t.Errorf("All() = %v", got)
	}
	if m.String() != "{0,2}" {
		t.Errorf("String() = %q", m.String())
	}
}

func TestAcceleratorMask_Panics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"empty", func() { NewAcceleratorMask() }},
		{"negative", func() { NewAcceleratorMask(-1) }},
		{"too large", func() { NewAcceleratorMask(MaxAccelerators) }},
		{"zero count", func() { AllAccelerators(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestAcceleratorMask_SetOps(t *testing.T) {
	a := NewAcceleratorMask(0, 1)
	b := NewAcceleratorMask(1, 2)

	if u := a.Union(b); u != NewAcceleratorMask(0, 1, 2) {
		t.Errorf("Union = %s", u)
	}
	if i, ok := a.Intersect(b); !ok || i != NewAcceleratorMask(1) {
		t.Errorf("Intersect = %s, %v", i, ok)
	}
	if _, ok := NewAcceleratorMask(0).Intersect(NewAcceleratorMask(3)); ok {
		t.Error("disjoint intersection reported valid")
	}
	if !a.Contains(NewAcceleratorMask(1)) || a.Contains(b) {
		t.Error("Contains is wrong")
	}
	if i, ok := NewAcceleratorMask(5).Single(); !ok || i != 5 {
		t.Errorf("Single() = %d, %v", i, ok)
	}
	if _, ok := a.Single(); ok {
		t.Error("Single() on two accelerators reported ok")
	}
}

func TestAllAccelerators(t *testing.T) {
	if m := AllAccelerators(3); m.String() != "{0,1,2}" {
		t.Errorf("AllAccelerators(3) = %s", m)
	}
	if m := AllAccelerators(MaxAccelerators); m.Count() != MaxAccelerators {
		t.Errorf("AllAccelerators(max).Count() = %d", m.Count())
	}
	if !DefaultAcceleratorMask.Valid() || AcceleratorMask(0).Valid() {
		t.Error("Valid() is wrong")
	}
}

func TestPipelineSet(t *testing.T) {
	if AllPipelines.String() != "Primary|AsyncCompute" {
		t.Errorf("String() = %q", AllPipelines.String())
	}
	if p, ok := AsyncComputeSet.Single(); !ok || p != PipelineAsyncCompute {
		t.Errorf("Single() = %s, %v", p, ok)
	}
	if _, ok := AllPipelines.Single(); ok {
		t.Error("Single() on two pipelines reported ok")
	}
	if PipelineSet(0).Valid() || PipelineSet(1<<5).Valid() {
		t.Error("invalid sets reported valid")
	}
	if got := slices.Collect(AllPipelines.All()); !slices.Equal(got, []Pipeline{PipelinePrimary, PipelineAsyncCompute}) {
		t.Errorf("All() = %v", got)
	}
	if PipelineAsyncCompute.Set() != AsyncComputeSet {
		t.Error("Set() is wrong")
	}
}
