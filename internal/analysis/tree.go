package analysis

import (
	"github.com/getsentry/cpuprof/internal/calltree"
	"github.com/getsentry/cpuprof/internal/timings"
)

const (
	TreeCallFrames = "callFrames"
	TreeModules    = "modules"
	TreePackages   = "packages"
	TreeCategories = "categories"
)

// Tree is a call tree at one granularity along with its timings.
type Tree struct {
	Name              string
	CallTree          *calltree.CallTree
	Timings           *timings.TreeTimings
	DictionaryTimings *timings.DictionaryTimings

	// source and remap project the samples of the call-frame tree onto this
	// one. Both are nil for the call-frame tree.
	source *calltree.CallTree
	remap  calltree.Remap
}

// Recompute takes the sample mapping of the call-frame tree again and
// computes timings.
func (t *Tree) Recompute() {
	if t.source != nil {
		t.remap.Apply(t.CallTree.SampleIDToNode, t.source.SampleIDToNode)
	}
	t.Timings.Recompute()
	t.DictionaryTimings.Recompute()
}

func (t *Tree) Notify() {
	t.Timings.Notify()
	t.DictionaryTimings.Notify()
}

func (t *Tree) GetTimings(node uint32) timings.Timings {
	return t.Timings.GetTimings(node)
}

func (t *Tree) GetValueTimings(value uint32) timings.Timings {
	return t.DictionaryTimings.GetValueTimings(value)
}

func (t *Tree) SelectNodes(value uint32, includeNested bool) []uint32 {
	return t.CallTree.SelectNodes(value, includeNested)
}

// Subscribe registers fn to be called after the timings of the tree change.
func (t *Tree) Subscribe(fn func()) (unsubscribe func()) {
	return t.DictionaryTimings.Subscribe(fn)
}
