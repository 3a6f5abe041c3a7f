package filter

import (
	"fmt"

	"github.com/getsentry/cpuprof/internal/errorutil"
	"github.com/getsentry/cpuprof/internal/timings"
)

var ErrInvalidRange = fmt.Errorf("filter: %w: range end is before its start", errorutil.ErrInvalidArgument)

// Range restricts timings to the samples overlapping a time window.
type Range struct {
	samples *timings.SampleTimings
	deps    []Dependent

	active     bool
	start, end int64
}

func NewRange(samples *timings.SampleTimings, deps ...Dependent) *Range {
	return &Range{samples: samples, deps: deps}
}

// Window returns the current window, if any.
func (r *Range) Window() (start, end int64, ok bool) {
	return r.start, r.end, r.active
}

// SetRange keeps the part of every sample overlapping [start, end). A sample
// counts as long as it overlaps the window, and a sample with no time overlaps
// it when start <= timestamp < end.
func (r *Range) SetRange(start, end int64) error {
	if end < start {
		return ErrInvalidRange
	}
	s := r.samples
	for i := range s.Deltas {
		s.Deltas[i] = 0
		s.Counts[i] = 0
	}
	if n := s.Len(); n != 0 {
		first, last := s.Search(start), s.Search(end)
		// Empty samples sitting at the start of the window come before the
		// sample Search found.
		for first > 0 && s.Timestamps[first-1] == s.Timestamps[first] && s.Timestamps[first-1] >= start {
			first--
		}
		for i := first; i <= last; i++ {
			lo, hi := s.Timestamps[i], s.Timestamps[i+1]
			if lo == hi {
				if lo >= start && lo < end {
					s.Counts[i] = s.OriginalCounts[i]
				}
				continue
			}
			if lo < start {
				lo = start
			}
			if hi > end {
				hi = end
			}
			if hi > lo {
				s.Deltas[i] = hi - lo
				s.Counts[i] = s.OriginalCounts[i]
			}
		}
	}
	r.active, r.start, r.end = true, start, end
	r.apply()
	return nil
}

// ResetRange restores the original samples.
func (r *Range) ResetRange() {
	r.samples.Reset()
	r.active, r.start, r.end = false, 0, 0
	r.apply()
}

func (r *Range) apply() {
	refresh(r.deps)
	r.samples.Notify()
}
