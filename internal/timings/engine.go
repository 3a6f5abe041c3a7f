package timings

import (
	"fmt"

	"github.com/getsentry/cpuprof/internal/calltree"
	"github.com/getsentry/cpuprof/internal/errorutil"
)

const (
	BackendInterpreted = "interpreted"
	BackendAccelerated = "accelerated"
)

var ErrUnknownBackend = fmt.Errorf("timings: %w: unknown backend", errorutil.ErrInvalidArgument)

// Engine builds timings with the backend it was configured with.
type Engine struct {
	backend Backend
}

func NewEngine(backend Backend) *Engine {
	if backend == nil {
		backend = Interpreted{}
	}
	return &Engine{backend: backend}
}

// NewEngineFromName builds an engine from a backend name, as found in the
// configuration.
func NewEngineFromName(name string) (*Engine, error) {
	switch name {
	case "", BackendInterpreted:
		return NewEngine(Interpreted{}), nil
	case BackendAccelerated:
		return NewEngine(NewAccelerated(nil)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

func (e *Engine) Backend() Backend {
	return e.backend
}

func (e *Engine) NewSampleTimings(deltas []int64, counts []uint32) *SampleTimings {
	n := len(deltas)
	s := &SampleTimings{
		backend:        e.backend,
		OriginalDeltas: e.backend.Int64s(n),
		Deltas:         e.backend.Int64s(n),
		OriginalCounts: e.backend.Uint32s(n),
		Counts:         e.backend.Uint32s(n),
		Timestamps:     e.backend.Int64s(n + 1),
	}
	e.backend.ComputeSampleTimings(deltas, s.OriginalDeltas, s.Timestamps, true)
	copy(s.Deltas, s.OriginalDeltas)
	copy(s.OriginalCounts, counts)
	copy(s.Counts, counts)
	return s
}

// NewTreeTimings computes the timings of a tree. The tree maps samples to
// its nodes through SampleIDToNode.
func (e *Engine) NewTreeTimings(tree *calltree.CallTree, samples *SampleTimings) *TreeTimings {
	n := tree.NodeCount()
	t := &TreeTimings{
		backend:     e.backend,
		tree:        tree,
		samples:     samples,
		SelfTime:    e.backend.Int64s(n),
		NestedTime:  e.backend.Int64s(n),
		SelfCount:   e.backend.Uint32s(n),
		NestedCount: e.backend.Uint32s(n),
	}
	t.Recompute()
	return t
}

func (e *Engine) NewDictionaryTimings(tree *TreeTimings) *DictionaryTimings {
	size := tree.tree.DictSize
	for _, v := range tree.tree.Nodes {
		if int(v) >= size {
			size = int(v) + 1
		}
	}
	d := &DictionaryTimings{
		backend:    e.backend,
		tree:       tree,
		SelfTime:   e.backend.Int64s(size),
		TotalTime:  e.backend.Int64s(size),
		SelfCount:  e.backend.Uint32s(size),
		TotalCount: e.backend.Uint32s(size),
	}
	d.Recompute()
	return d
}
