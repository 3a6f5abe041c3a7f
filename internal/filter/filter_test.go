package filter

import (
	"errors"
	"testing"

	"github.com/getsentry/cpuprof/internal/calltree"
	"github.com/getsentry/cpuprof/internal/errorutil"
	"github.com/getsentry/cpuprof/internal/testutil"
	"github.com/getsentry/cpuprof/internal/timings"
)

type treeDependent struct {
	tree       *timings.TreeTimings
	dictionary *timings.DictionaryTimings
	notified   int
}

func (d *treeDependent) Recompute() {
	d.tree.Recompute()
	d.dictionary.Recompute()
}

func (d *treeDependent) Notify() {
	d.notified++
	d.tree.Notify()
	d.dictionary.Notify()
}

// root(0) -> A(1) -> B(2)
func setup(t *testing.T, sampleNodes []int, deltas []int64) (*timings.Engine, *timings.SampleTimings, *treeDependent) {
	t.Helper()
	engine := timings.NewEngine(nil)
	tree, _ := calltree.FromParents([]uint32{0, 0, 1}, []uint32{0, 1, 2}, 3)
	tree.MapSamples(sampleNodes)
	counts := make([]uint32, len(deltas))
	for i := range counts {
		counts[i] = 1
	}
	samples := engine.NewSampleTimings(deltas, counts)
	tt := engine.NewTreeTimings(tree, samples)
	return engine, samples, &treeDependent{tree: tt, dictionary: engine.NewDictionaryTimings(tt)}
}

func TestSetRange(t *testing.T) {
	_, samples, dep := setup(t, []int{1, 1, 2}, []int64{10, 10, 10})
	r := NewRange(samples, dep)

	if err := r.SetRange(13, 17); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := testutil.Diff(samples.Deltas, []int64{0, 4, 0}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(samples.Counts, []uint32{0, 1, 0}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if got := dep.tree.GetTimings(1); got.SelfTime != 4 || got.TotalTime != 4 {
		t.Fatalf("unexpected timings %+v", got)
	}
	if dep.notified != 1 {
		t.Fatalf("expected 1 notification, got %d", dep.notified)
	}

	if err := r.SetRange(5, 25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := testutil.Diff(samples.Deltas, []int64{5, 10, 5}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if start, end, ok := r.Window(); !ok || start != 5 || end != 25 {
		t.Fatalf("unexpected window %d %d %v", start, end, ok)
	}
}

func TestSetRangeEmptySamples(t *testing.T) {
	// the empty sample sits at 10
	_, samples, dep := setup(t, []int{1, 2, 1}, []int64{10, 0, 10})
	r := NewRange(samples, dep)

	tests := []struct {
		name       string
		start, end int64
		deltas     []int64
		counts     []uint32
	}{
		{name: "ending on it", start: 0, end: 10, deltas: []int64{10, 0, 0}, counts: []uint32{1, 0, 0}},
		{name: "starting on it", start: 10, end: 20, deltas: []int64{0, 0, 10}, counts: []uint32{0, 1, 1}},
		{name: "around it", start: 5, end: 15, deltas: []int64{5, 0, 5}, counts: []uint32{1, 1, 1}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := r.SetRange(test.start, test.end); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := testutil.Diff(samples.Deltas, test.deltas); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
			if diff := testutil.Diff(samples.Counts, test.counts); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestRangeIdempotence(t *testing.T) {
	_, samples, dep := setup(t, []int{1, 2, 2, 0, 1}, []int64{3, 8, 0, 6, 7})
	r := NewRange(samples, dep)

	wantSelf := append([]int64(nil), dep.tree.SelfTime...)
	wantNested := append([]int64(nil), dep.tree.NestedTime...)
	wantCounts := append([]uint32(nil), dep.tree.SelfCount...)
	wantTotal := append([]int64(nil), dep.dictionary.TotalTime...)

	for _, w := range [][2]int64{{0, 1}, {2, 12}, {11, 11}, {20, 400}} {
		if err := r.SetRange(w[0], w[1]); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	r.ResetRange()

	if diff := testutil.Diff(dep.tree.SelfTime, wantSelf); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(dep.tree.NestedTime, wantNested); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(dep.tree.SelfCount, wantCounts); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(dep.dictionary.TotalTime, wantTotal); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if _, _, ok := r.Window(); ok {
		t.Fatal("expected no window after reset")
	}

	if err := r.SetRange(0, samples.Duration()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := testutil.Diff(dep.tree.SelfTime, wantSelf); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(dep.tree.SelfCount, wantCounts); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestSetRangeInvalid(t *testing.T) {
	_, samples, dep := setup(t, []int{1}, []int64{10})
	r := NewRange(samples, dep)
	err := r.SetRange(5, 1)
	if !errors.Is(err, errorutil.ErrInvalidArgument) {
		t.Fatalf("expected an invalid argument error, got %v", err)
	}
	if dep.notified != 0 {
		t.Fatal("expected no notification")
	}
}

func TestConvolution(t *testing.T) {
	engine, samples, dep := setup(t, []int{1, 2, 2}, []int64{10, 2, 3})
	tree := dep.tree.Tree()
	c := NewConvolution(engine, tree, samples, nil, dep)

	rule, err := ExprRule("self.selfTime < parent.selfTime")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.SetRule(rule)
	if diff := testutil.Diff(tree.SampleIDToNode, []uint32{1, 1, 1}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if got := dep.tree.GetTimings(1); got.SelfTime != 15 || got.NestedTime != 0 {
		t.Fatalf("unexpected timings %+v", got)
	}

	// Everything goes up to the root.
	c.SetRule(func(self, parent, root NodeStats) bool { return true })
	if diff := testutil.Diff(tree.SampleIDToNode, []uint32{0, 0, 0}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	c.SetRule(nil)
	if diff := testutil.Diff(tree.SampleIDToNode, []uint32{1, 2, 2}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if got := dep.tree.GetTimings(2); got.SelfTime != 5 {
		t.Fatalf("unexpected timings %+v", got)
	}
	if dep.notified != 3 {
		t.Fatalf("expected 3 notifications, got %d", dep.notified)
	}
}

func TestConvolutionStats(t *testing.T) {
	engine, samples, dep := setup(t, []int{1, 2, 2}, []int64{10, 2, 3})
	tree := dep.tree.Tree()
	c := NewConvolution(engine, tree, samples, func(node uint32) float64 {
		return float64(node) / 10
	}, dep)

	var got [][3]NodeStats
	c.SetRule(func(self, parent, root NodeStats) bool {
		got = append(got, [3]NodeStats{self, parent, root})
		return false
	})
	a := NodeStats{SampleCount: 3, SelfTime: 10, Presence: 0.1}
	b := NodeStats{SampleCount: 2, SelfTime: 5, Presence: 0.2}
	root := NodeStats{SampleCount: 3}
	want := [][3]NodeStats{
		{a, root, a},
		{b, a, a},
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestExprRuleErrors(t *testing.T) {
	for _, source := range []string{"self.unknown > 1", "self.sampleCount + 1", "((("} {
		if _, err := ExprRule(source); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("%q: expected an invalid rule error, got %v", source, err)
		}
	}
}

func TestSetPresence(t *testing.T) {
	s := NewSet()
	if s.Presence("a") != 0 {
		t.Fatal("expected no presence in an empty set")
	}
	s.Add("p1", map[string]struct{}{"a": {}, "b": {}})
	s.Add("p2", map[string]struct{}{"a": {}})
	s.Add("p3", map[string]struct{}{})
	s.Add("p4", map[string]struct{}{"a": {}})
	if got := s.Presence("a"); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
	s.Remove("p1")
	if got := s.Presence("b"); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 profiles, got %d", s.Len())
	}
}
