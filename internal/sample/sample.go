// Package sample cleans up the sample stream of a profile before it is
// attributed to call trees.
package sample

import (
	"math"

	"github.com/getsentry/cpuprof/internal/quantile"
)

const (
	// A delta longer than LongDeltaFactor intervals is considered a gap in
	// sampling.
	LongDeltaFactor = 1.5
	// KeptDeltaFactor intervals of a long delta stay on the sample, the rest
	// goes to a "(no samples)" sample.
	KeptDeltaFactor = 1.2
)

// Stream is the sample stream of a profile. Samples hold node indexes, the
// delta of a sample is the time attributed to it. Positions are optional and
// have the same length as Samples when present.
type Stream struct {
	Samples   []int
	Deltas    []int64
	Positions []int
	Counts    []uint32
}

// NewStream builds a stream where every sample counts once.
func NewStream(samples []int, deltas []int64, positions []int) *Stream {
	s := &Stream{
		Samples: samples,
		Deltas:  deltas,
		Counts:  make([]uint32, len(samples)),
	}
	if len(positions) == len(samples) && len(positions) != 0 {
		s.Positions = positions
	}
	for i := range s.Counts {
		s.Counts[i] = 1
	}
	return s
}

func (s *Stream) Len() int {
	return len(s.Samples)
}

// Total returns the sum of deltas.
func (s *Stream) Total() int64 {
	var total int64
	for _, d := range s.Deltas {
		total += d
	}
	return total
}

func (s *Stream) swap(i, j int) {
	s.Samples[i], s.Samples[j] = s.Samples[j], s.Samples[i]
	s.Counts[i], s.Counts[j] = s.Counts[j], s.Counts[i]
	if s.Positions != nil {
		s.Positions[i], s.Positions[j] = s.Positions[j], s.Positions[i]
	}
}

// FixDeltasOrder removes negative deltas. Timestamps are clamped into the
// profile span and samples are moved back in time until timestamps are
// ordered, then deltas are computed again. The sum of deltas is unchanged
// unless it was negative. It returns the number of swaps.
func (s *Stream) FixDeltasOrder() int {
	negative := false
	for _, d := range s.Deltas {
		if d < 0 {
			negative = true
			break
		}
	}
	if !negative {
		return 0
	}

	timestamps := make([]int64, len(s.Deltas))
	var t int64
	for i, d := range s.Deltas {
		t += d
		timestamps[i] = t
	}
	end := timestamps[len(timestamps)-1]
	if end < 0 {
		end = 0
	}
	for i, ts := range timestamps {
		if ts < 0 {
			timestamps[i] = 0
		} else if ts > end {
			timestamps[i] = end
		}
	}

	var swaps int
	for i := 1; i < len(timestamps); i++ {
		for j := i; j > 0 && timestamps[j] < timestamps[j-1]; j-- {
			timestamps[j], timestamps[j-1] = timestamps[j-1], timestamps[j]
			s.swap(j, j-1)
			swaps++
		}
	}

	var prev int64
	for i, ts := range timestamps {
		s.Deltas[i] = ts - prev
		prev = ts
	}
	return swaps
}

// ReparentGCNodes moves samples of garbage collector nodes under the node
// sampled right before them, so GC time is attributed to its caller. newGCNode
// returns the GC node to use for a given caller and is called once per
// distinct (GC node, caller) pair. A GC sample following another GC sample
// reuses its node. It returns the number of reparented samples.
func (s *Stream) ReparentGCNodes(isGC func(node int) bool, newGCNode func(gcNode, caller int) int) int {
	type key struct{ gc, caller int }
	nodes := make(map[key]int)
	var reparented int
	prevGC := false
	for i, node := range s.Samples {
		if !isGC(node) {
			prevGC = false
			continue
		}
		if i == 0 {
			prevGC = true
			continue
		}
		if prevGC {
			s.Samples[i] = s.Samples[i-1]
			reparented++
			continue
		}
		prevGC = true
		k := key{gc: node, caller: s.Samples[i-1]}
		n, ok := nodes[k]
		if !ok {
			n = newGCNode(k.gc, k.caller)
			nodes[k] = n
		}
		s.Samples[i] = n
		reparented++
	}
	return reparented
}

// ProcessLongTimeDeltas splits deltas longer than LongDeltaFactor intervals.
// The sample keeps KeptDeltaFactor intervals and the remaining time goes to a
// new sample, inserted before it, which does not count as an actual sample.
// noSamplesNode returns the node of those samples and is only called if
// there is a long delta. It returns the number of inserted samples.
func (s *Stream) ProcessLongTimeDeltas(interval int64, noSamplesNode func() int) int {
	if interval <= 0 {
		return 0
	}
	limit := float64(interval) * LongDeltaFactor
	isLong := func(d int64) bool {
		return float64(d) > limit
	}
	kept := int64(math.Round(float64(interval) * KeptDeltaFactor))

	var long int
	for _, d := range s.Deltas {
		if isLong(d) {
			long++
		}
	}
	if long == 0 {
		return 0
	}
	node := noSamplesNode()

	out := Stream{
		Samples: make([]int, 0, len(s.Samples)+long),
		Deltas:  make([]int64, 0, len(s.Samples)+long),
		Counts:  make([]uint32, 0, len(s.Samples)+long),
	}
	if s.Positions != nil {
		out.Positions = make([]int, 0, len(s.Samples)+long)
	}
	for i, d := range s.Deltas {
		if isLong(d) {
			out.Samples = append(out.Samples, node)
			out.Deltas = append(out.Deltas, d-kept)
			out.Counts = append(out.Counts, 0)
			if out.Positions != nil {
				out.Positions = append(out.Positions, 0)
			}
			d = kept
		}
		out.Samples = append(out.Samples, s.Samples[i])
		out.Deltas = append(out.Deltas, d)
		out.Counts = append(out.Counts, s.Counts[i])
		if out.Positions != nil {
			out.Positions = append(out.Positions, s.Positions[i])
		}
	}
	*s = out
	return long
}

// MergeSamples collapses consecutive samples on the same node, and the same
// position when positions are known, into one. It returns the number of
// removed samples.
func (s *Stream) MergeSamples() int {
	if len(s.Samples) < 2 {
		return 0
	}
	j := 0
	for i := 1; i < len(s.Samples); i++ {
		same := s.Samples[i] == s.Samples[j]
		if same && s.Positions != nil {
			same = s.Positions[i] == s.Positions[j]
		}
		if same {
			s.Deltas[j] += s.Deltas[i]
			s.Counts[j] += s.Counts[i]
			continue
		}
		j++
		s.Samples[j] = s.Samples[i]
		s.Deltas[j] = s.Deltas[i]
		s.Counts[j] = s.Counts[i]
		if s.Positions != nil {
			s.Positions[j] = s.Positions[i]
		}
	}
	removed := len(s.Samples) - j - 1
	s.Samples = s.Samples[:j+1]
	s.Deltas = s.Deltas[:j+1]
	s.Counts = s.Counts[:j+1]
	if s.Positions != nil {
		s.Positions = s.Positions[:j+1]
	}
	return removed
}

// EstimateInterval returns the median of positive deltas, or 0 if there is
// none.
func EstimateInterval(deltas []int64) int64 {
	var q quantile.Quantile
	for _, d := range deltas {
		if d > 0 {
			q.Add(float64(d))
		}
	}
	if len(q.Xs) == 0 {
		return 0
	}
	return int64(math.Round(q.Sort().Percentile(0.5)))
}
