package rhi

import (
	"fmt"
	"iter"
	"math/bits"
	"strings"
)

// Pipeline identifies an independent native execution stream.
type Pipeline uint8

const (
	// PipelinePrimary is the graphics pipeline.
	PipelinePrimary Pipeline = iota
	// PipelineAsyncCompute runs compute work alongside the primary pipeline.
	PipelineAsyncCompute

	// NumPipelines is the number of pipelines.
	NumPipelines
)

var pipelineNames = [NumPipelines]string{
	PipelinePrimary:      "Primary",
	PipelineAsyncCompute: "AsyncCompute",
}

// String returns the pipeline name.
func (p Pipeline) String() string {
	if p < NumPipelines {
		return pipelineNames[p]
	}
	return fmt.Sprintf("Pipeline(%d)", uint8(p))
}

// Set returns the single-pipeline set containing p.
func (p Pipeline) Set() PipelineSet { return 1 << p }

// PipelineSet is a bitmask of pipelines.
type PipelineSet uint8

const (
	// PrimarySet contains only PipelinePrimary.
	PrimarySet PipelineSet = 1 << PipelinePrimary
	// AsyncComputeSet contains only PipelineAsyncCompute.
	AsyncComputeSet PipelineSet = 1 << PipelineAsyncCompute
	// AllPipelines contains every pipeline.
	AllPipelines = PrimarySet | AsyncComputeSet
)

// Valid reports whether s is non-empty and names only known pipelines.
func (s PipelineSet) Valid() bool { return s != 0 && s&^AllPipelines == 0 }

// Has reports whether p is in s.
func (s PipelineSet) Has(p Pipeline) bool { return p < NumPipelines && s&(1<<p) != 0 }

// Count returns the number of pipelines in s.
func (s PipelineSet) Count() int { return bits.OnesCount8(uint8(s)) }

// Single returns the pipeline when s contains exactly one.
func (s PipelineSet) Single() (Pipeline, bool) {
	if s.Count() != 1 || !s.Valid() {
		return 0, false
	}
	return Pipeline(bits.TrailingZeros8(uint8(s))), true
}

// All iterates the pipelines of s in ascending order.
func (s PipelineSet) All() iter.Seq[Pipeline] {
	return func(yield func(Pipeline) bool) {
		for p := range NumPipelines {
			if s.Has(p) && !yield(p) {
				return
			}
		}
	}
}

// String returns e.g. "Primary|AsyncCompute".
func (s PipelineSet) String() string {
	if s == 0 {
		return "none"
	}
	var names []string
	for p := range s.All() {
		names = append(names, p.String())
	}
	return strings.Join(names, "|")
}
