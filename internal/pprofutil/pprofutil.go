// Package pprofutil exports call trees as pprof profiles.
package pprofutil

import (
	"github.com/google/pprof/profile"

	"github.com/getsentry/cpuprof/internal/analysis"
)

// FromTree builds a pprof profile with one sample per node of the tree
// having some self time. Times are converted from microseconds.
func FromTree(a *analysis.Analysis, tree *analysis.Tree) *profile.Profile {
	ct := tree.CallTree
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "cpu", Unit: "nanoseconds"},
			{Type: "samples", Unit: "count"},
		},
		PeriodType: &profile.ValueType{
			Type: "cpu",
			Unit: "nanoseconds",
		},
		Period:        a.Interval * 1000,
		DurationNanos: a.Samples.Duration() * 1000,
	}

	locations := make(map[uint32]*profile.Location)
	locationOf := func(value uint32) *profile.Location {
		if l, ok := locations[value]; ok {
			return l
		}
		label := a.Label(tree.Name, value)
		fn := &profile.Function{
			ID:         uint64(len(p.Function) + 1),
			Name:       label.Name,
			SystemName: label.Key,
			Filename:   label.URL,
		}
		line := int64(label.Line) + 1
		if line < 0 {
			line = 0
		}
		fn.StartLine = line
		p.Function = append(p.Function, fn)
		l := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: fn, Line: line}},
		}
		p.Location = append(p.Location, l)
		locations[value] = l
		return l
	}

	for n := 1; n < ct.NodeCount(); n++ {
		t := tree.GetTimings(uint32(n))
		if t.SelfTime <= 0 {
			continue
		}
		var stack []*profile.Location
		for node := uint32(n); node != 0; node = ct.Parent[node] {
			stack = append(stack, locationOf(ct.Nodes[node]))
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: stack,
			Value:    []int64{t.SelfTime * 1000, int64(tree.Timings.SelfCount[n])},
		})
	}
	return p
}
