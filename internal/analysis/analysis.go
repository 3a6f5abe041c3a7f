// Package analysis turns a raw profile into call trees at every granularity
// with their timings and filters.
package analysis

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/cpuprof/internal/calltree"
	"github.com/getsentry/cpuprof/internal/dictionary"
	"github.com/getsentry/cpuprof/internal/filter"
	"github.com/getsentry/cpuprof/internal/frame"
	"github.com/getsentry/cpuprof/internal/profile"
	"github.com/getsentry/cpuprof/internal/sample"
	"github.com/getsentry/cpuprof/internal/timings"
)

type (
	Options struct {
		// Interval is the sampling interval, estimated from the deltas when
		// not set.
		Interval int64
		// Set is used to compute the presence of call frames for
		// convolution rules.
		Set *filter.Set
		// Yield is called after every step. An error stops the analysis.
		Yield func(ctx context.Context, step string) error
	}

	PreprocessStats struct {
		Swaps        int `json:"swaps"`
		GCReparented int `json:"gc_reparented"`
		NoSamples    int `json:"no_samples"`
		Merged       int `json:"merged"`
	}

	Analysis struct {
		Dictionary *dictionary.Dictionary
		Samples    *timings.SampleTimings
		Interval   int64
		Stats      PreprocessStats

		CallFrames *Tree
		Modules    *Tree
		Packages   *Tree
		Categories *Tree

		Range       *filter.Range
		Convolution *filter.Convolution

		// node tree after preprocessing, where node i has the call frame
		// values[i]
		parents []uint32
		values  []uint32
		stream  *sample.Stream
	}
)

// New runs every step of the analysis of p.
func New(ctx context.Context, engine *timings.Engine, p *profile.Profile, opts Options) (*Analysis, error) {
	a := &Analysis{Dictionary: dictionary.New()}
	steps := []struct {
		name string
		run  func() error
	}{
		{"dictionary", func() error { return a.resolveNodes(p) }},
		{"preprocess", func() error {
			a.preprocess(opts.Interval)
			return nil
		}},
		{"call-frames-tree", func() error {
			a.buildCallFrameTree(engine)
			return nil
		}},
		{"rollup-modules", func() error {
			a.Modules = a.rollup(engine, TreeModules, a.CallFrames, a.Dictionary.CallFrameModules(), a.Dictionary.ModulesSize())
			return nil
		}},
		{"rollup-packages", func() error {
			a.Packages = a.rollup(engine, TreePackages, a.Modules, a.Dictionary.ModulePackages(), a.Dictionary.PackagesSize())
			return nil
		}},
		{"rollup-categories", func() error {
			a.Categories = a.rollup(engine, TreeCategories, a.Packages, a.Dictionary.PackageCategories(), a.Dictionary.CategoriesSize())
			return nil
		}},
		{"timings", func() error {
			a.setupFilters(engine, opts.Set)
			return nil
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := sentry.StartSpan(ctx, "analysis."+step.name)
		err := step.run()
		s.Finish()
		if err != nil {
			return nil, err
		}
		if opts.Yield != nil {
			if err := opts.Yield(ctx, step.name); err != nil {
				return nil, err
			}
		}
	}

	log.Debug().
		Int("call_frames", a.Dictionary.CallFramesSize()-1).
		Int("nodes", a.CallFrames.CallTree.NodeCount()).
		Int("samples", a.Samples.Len()).
		Int64("interval", a.Interval).
		Interface("preprocess", a.Stats).
		Msg("profile analyzed")
	return a, nil
}

// Trees returns the trees from the finest to the coarsest.
func (a *Analysis) Trees() []*Tree {
	return []*Tree{a.CallFrames, a.Modules, a.Packages, a.Categories}
}

func (a *Analysis) Tree(name string) (*Tree, bool) {
	for _, t := range a.Trees() {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Keys returns the call frame keys of the profile, to add it to a Set.
func (a *Analysis) Keys() map[string]struct{} {
	return a.Dictionary.Keys()
}

func (a *Analysis) resolveNodes(p *profile.Profile) error {
	for _, s := range p.Scripts {
		a.Dictionary.RegisterScript(s.ID, s.URL)
	}

	f, err := p.Forest()
	if err != nil {
		return err
	}
	a.values = make([]uint32, len(f.Order))
	for i, pos := range f.Order {
		a.values[i] = a.Dictionary.ResolveCallFrame(p.Nodes[pos].CallFrame).ID
	}
	a.parents = make([]uint32, len(f.Parent))
	for i, parent := range f.Parent {
		a.parents[i] = uint32(parent)
	}

	nodes, err := p.SampleNodes(f)
	if err != nil {
		return err
	}
	deltas := make([]int64, len(p.TimeDeltas))
	copy(deltas, p.TimeDeltas)
	var positions []int
	if len(p.SamplePositions) != 0 {
		positions = make([]int, len(p.SamplePositions))
		copy(positions, p.SamplePositions)
	}
	a.stream = sample.NewStream(nodes, deltas, positions)

	if len(p.Functions) != 0 {
		descs := make([]frame.Descriptor, len(p.Functions))
		for i, fn := range p.Functions {
			descs[i] = fn.CallFrame
		}
		ids := a.Dictionary.ResolveCallFrames(descs)
		for i, fn := range p.Functions {
			codes := make([]dictionary.CodeInfo, len(fn.Codes))
			for j, c := range fn.Codes {
				codes[j] = dictionary.CodeInfo{Tier: c.Tier, Size: c.Size, Timestamp: c.Timestamp}
			}
			a.Dictionary.AddCodes(ids[i], codes...)
		}
	}
	for _, ec := range p.ExecutionContexts {
		a.Dictionary.BackfillPackageName(ec.Origin, ec.Name)
	}
	return nil
}

func (a *Analysis) addNode(parent, value uint32) int {
	a.parents = append(a.parents, parent)
	a.values = append(a.values, value)
	return len(a.values) - 1
}

func (a *Analysis) preprocess(interval int64) {
	s := a.stream
	a.Stats.Swaps = s.FixDeltasOrder()

	a.Stats.GCReparented = s.ReparentGCNodes(
		func(node int) bool {
			return a.Dictionary.CallFrame(a.values[node]).Name == frame.GCName
		},
		func(gcNode, caller int) int {
			if a.parents[gcNode] == uint32(caller) {
				return gcNode
			}
			return a.addNode(uint32(caller), a.values[gcNode])
		},
	)

	if interval <= 0 {
		interval = sample.EstimateInterval(s.Deltas)
	}
	a.Interval = interval
	a.Stats.NoSamples = s.ProcessLongTimeDeltas(interval, func() int {
		cf := a.Dictionary.ResolveCallFrame(frame.Descriptor{
			FunctionName: frame.NoSamplesName,
			LineNumber:   -1,
			ColumnNumber: -1,
		})
		return a.addNode(0, cf.ID)
	})

	a.Stats.Merged = s.MergeSamples()
}

func (a *Analysis) buildCallFrameTree(engine *timings.Engine) {
	tree, _ := calltree.FromParents(a.parents, a.values, a.Dictionary.CallFramesSize())
	tree.MapSamples(a.stream.Samples)
	a.Samples = engine.NewSampleTimings(a.stream.Deltas, a.stream.Counts)
	a.CallFrames = newTree(engine, TreeCallFrames, tree, a.Samples)
}

func newTree(engine *timings.Engine, name string, tree *calltree.CallTree, samples *timings.SampleTimings) *Tree {
	tt := engine.NewTreeTimings(tree, samples)
	return &Tree{
		Name:              name,
		CallTree:          tree,
		Timings:           tt,
		DictionaryTimings: engine.NewDictionaryTimings(tt),
	}
}

func (a *Analysis) rollup(engine *timings.Engine, name string, from *Tree, mapping []uint32, dictSize int) *Tree {
	tree, remap := from.CallTree.Rollup(mapping, dictSize)
	t := newTree(engine, name, tree, a.Samples)
	t.source = a.CallFrames.CallTree
	if from.remap != nil {
		t.remap = from.remap.Compose(remap)
	} else {
		t.remap = remap
	}
	return t
}

func (a *Analysis) setupFilters(engine *timings.Engine, set *filter.Set) {
	deps := make([]filter.Dependent, 0, 4)
	for _, t := range a.Trees() {
		deps = append(deps, t)
	}
	a.Range = filter.NewRange(a.Samples, deps...)

	var presence func(node uint32) float64
	if set != nil {
		tree := a.CallFrames.CallTree
		presence = func(node uint32) float64 {
			return set.Presence(a.Dictionary.CallFrame(tree.Value(node)).Key)
		}
	}
	a.Convolution = filter.NewConvolution(engine, a.CallFrames.CallTree, a.Samples, presence, deps...)
}
