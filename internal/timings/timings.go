// Package timings attributes sample time to call tree nodes and dictionary
// values.
package timings

import (
	"sort"

	"github.com/getsentry/cpuprof/internal/calltree"
)

type (
	// Timings of a node or a value. SampleCount includes samples of nested
	// nodes.
	Timings struct {
		SelfTime    int64  `json:"self_time"`
		NestedTime  int64  `json:"nested_time"`
		TotalTime   int64  `json:"total_time"`
		SampleCount uint32 `json:"sample_count"`
	}

	// SampleTimings holds the time of every sample. Deltas and Counts are
	// the current values, which filters change, while Timestamps are
	// computed from the original deltas: sample i spans
	// [Timestamps[i], Timestamps[i+1]).
	SampleTimings struct {
		Observable

		backend Backend

		OriginalDeltas []int64
		OriginalCounts []uint32
		Deltas         []int64
		Counts         []uint32
		Timestamps     []int64
	}

	TreeTimings struct {
		Observable

		backend Backend
		tree    *calltree.CallTree
		samples *SampleTimings

		SelfTime    []int64
		NestedTime  []int64
		SelfCount   []uint32
		NestedCount []uint32
	}

	// DictionaryTimings aggregates tree timings by value. The total time of
	// a value leaves out nested nodes so recursion is not counted twice.
	DictionaryTimings struct {
		Observable

		backend Backend
		tree    *TreeTimings

		SelfTime   []int64
		TotalTime  []int64
		SelfCount  []uint32
		TotalCount []uint32
	}
)

func (s *SampleTimings) Len() int {
	return len(s.Deltas)
}

// Duration is the end of the last sample.
func (s *SampleTimings) Duration() int64 {
	return s.Timestamps[len(s.Timestamps)-1]
}

// Search returns the index of the sample spanning t, which is the last
// sample starting at or before t. Times before the first sample return 0 and
// times past the end return the last sample.
func (s *SampleTimings) Search(t int64) int {
	n := s.Len()
	if n == 0 {
		return 0
	}
	i := sort.Search(n, func(i int) bool { return s.Timestamps[i] > t })
	if i == 0 {
		return 0
	}
	return i - 1
}

// Reset restores the original deltas and counts.
func (s *SampleTimings) Reset() {
	copy(s.Deltas, s.OriginalDeltas)
	copy(s.Counts, s.OriginalCounts)
}

func (s *SampleTimings) Total() int64 {
	var total int64
	for _, d := range s.Deltas {
		total += d
	}
	return total
}

func (t *TreeTimings) Tree() *calltree.CallTree {
	return t.tree
}

func (t *TreeTimings) Samples() *SampleTimings {
	return t.samples
}

// Recompute computes the timings again from the current sample timings and
// sample mapping of the tree. It does not notify subscribers.
func (t *TreeTimings) Recompute() {
	t.backend.ComputeTreeTimings(
		TreeInput{
			Parent:       t.tree.Parent,
			SampleToNode: t.tree.SampleIDToNode,
			SampleTime:   t.samples.Deltas,
			SampleCount:  t.samples.Counts,
		},
		TreeOutput{
			SelfTime:    t.SelfTime,
			NestedTime:  t.NestedTime,
			SelfCount:   t.SelfCount,
			NestedCount: t.NestedCount,
		},
		true,
	)
}

func (t *TreeTimings) GetTimings(node uint32) Timings {
	return Timings{
		SelfTime:    t.SelfTime[node],
		NestedTime:  t.NestedTime[node],
		TotalTime:   t.SelfTime[node] + t.NestedTime[node],
		SampleCount: t.SelfCount[node] + t.NestedCount[node],
	}
}

func (d *DictionaryTimings) TreeTimings() *TreeTimings {
	return d.tree
}

func (d *DictionaryTimings) Recompute() {
	tree := d.tree.tree
	d.backend.ComputeDictionaryTimings(
		DictionaryInput{
			Values:      tree.Nodes,
			Nested:      tree.Nested,
			SelfTime:    d.tree.SelfTime,
			NestedTime:  d.tree.NestedTime,
			SelfCount:   d.tree.SelfCount,
			NestedCount: d.tree.NestedCount,
		},
		DictionaryOutput{
			SelfTime:   d.SelfTime,
			TotalTime:  d.TotalTime,
			SelfCount:  d.SelfCount,
			TotalCount: d.TotalCount,
		},
		true,
	)
}

// GetValueTimings returns the timings of a value. Unknown values have no
// time.
func (d *DictionaryTimings) GetValueTimings(value uint32) Timings {
	if int(value) >= len(d.SelfTime) {
		return Timings{}
	}
	return Timings{
		SelfTime:    d.SelfTime[value],
		NestedTime:  d.TotalTime[value] - d.SelfTime[value],
		TotalTime:   d.TotalTime[value],
		SampleCount: d.TotalCount[value],
	}
}
