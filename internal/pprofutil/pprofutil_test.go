package pprofutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/pprof/profile"

	"github.com/getsentry/cpuprof/internal/analysis"
	"github.com/getsentry/cpuprof/internal/frame"
	cpuprofile "github.com/getsentry/cpuprof/internal/profile"
	"github.com/getsentry/cpuprof/internal/testutil"
	"github.com/getsentry/cpuprof/internal/timings"
)

func TestFromTree(t *testing.T) {
	p := &cpuprofile.Profile{
		Nodes: []cpuprofile.Node{
			{ID: 1, CallFrame: frame.Descriptor{FunctionName: frame.RootName, LineNumber: -1, ColumnNumber: -1}, Children: []int{2}},
			{ID: 2, CallFrame: frame.Descriptor{ScriptID: "3", URL: "file:///app/main.js", FunctionName: "a", LineNumber: 0}, Children: []int{3}},
			{ID: 3, CallFrame: frame.Descriptor{ScriptID: "3", URL: "file:///app/main.js", FunctionName: "b", LineNumber: 9}},
		},
		Samples:    []int{2, 3, 3, 2},
		TimeDeltas: []int64{10, 10, 0, 10},
	}
	a, err := analysis.New(context.Background(), timings.NewEngine(nil), p, analysis.Options{Interval: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prof := FromTree(a, a.CallFrames)
	if err := prof.CheckValid(); err != nil {
		t.Fatalf("invalid profile: %v", err)
	}

	got := make(map[string][]int64)
	for _, s := range prof.Sample {
		got[s.Location[0].Line[0].Function.Name] = s.Value
	}
	want := map[string][]int64{
		"a": {20000, 2},
		"b": {10000, 2},
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	var buf bytes.Buffer
	if err := prof.Write(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := profile.Parse(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Sample) != 2 || parsed.Period != 10000 {
		t.Fatalf("unexpected parsed profile %+v", parsed)
	}
}
