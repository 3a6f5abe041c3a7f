package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/cpuprof/internal/calltree"
	"github.com/getsentry/cpuprof/internal/errorutil"
	"github.com/getsentry/cpuprof/internal/timings"
)

var ErrInvalidRule = fmt.Errorf("filter: %w: invalid convolution rule", errorutil.ErrInvalidArgument)

type (
	// NodeStats describes a node to a convolution rule. SampleCount includes
	// the samples of descendants, SelfTime does not. Presence is the share
	// of profiles of a Set having the call frame of the node.
	NodeStats struct {
		SampleCount uint32  `expr:"sampleCount"`
		SelfTime    int64   `expr:"selfTime"`
		Presence    float64 `expr:"presence"`
	}

	// Rule reports whether the samples of a node go to its parent. root is
	// the ancestor of the node right under the tree root.
	Rule func(self, parent, root NodeStats) bool

	// Convolution rewrites the sample mapping of a call-frame tree so the
	// samples of a node selected by a rule are attributed to the closest
	// ancestor which is not.
	Convolution struct {
		backend  timings.Backend
		tree     *calltree.CallTree
		samples  *timings.SampleTimings
		base     []uint32
		presence func(node uint32) float64
		deps     []Dependent

		rule Rule
	}
)

// NewConvolution starts from the current sample mapping of the tree, which
// is restored by SetRule(nil). presence may be nil.
func NewConvolution(
	engine *timings.Engine,
	tree *calltree.CallTree,
	samples *timings.SampleTimings,
	presence func(node uint32) float64,
	deps ...Dependent,
) *Convolution {
	base := make([]uint32, len(tree.SampleIDToNode))
	copy(base, tree.SampleIDToNode)
	return &Convolution{
		backend:  engine.Backend(),
		tree:     tree,
		samples:  samples,
		base:     base,
		presence: presence,
		deps:     deps,
	}
}

func (c *Convolution) Rule() Rule {
	return c.rule
}

// SetRule applies rule to every node but the root, then recomputes the
// dependents. A nil rule restores the original mapping.
func (c *Convolution) SetRule(rule Rule) {
	c.rule = rule
	if rule == nil {
		copy(c.tree.SampleIDToNode, c.base)
	} else {
		targets := c.targets(rule)
		for i, n := range c.base {
			c.tree.SampleIDToNode[i] = targets[n]
		}
	}
	refresh(c.deps)
}

// targets returns the node each node's samples go to. Rules are evaluated
// against the original mapping so they do not depend on the order in which
// they are applied.
func (c *Convolution) targets(rule Rule) []uint32 {
	n := c.tree.NodeCount()
	out := timings.TreeOutput{
		SelfTime:    c.backend.Int64s(n),
		NestedTime:  c.backend.Int64s(n),
		SelfCount:   c.backend.Uint32s(n),
		NestedCount: c.backend.Uint32s(n),
	}
	c.backend.ComputeTreeTimings(timings.TreeInput{
		Parent:       c.tree.Parent,
		SampleToNode: c.base,
		SampleTime:   c.samples.Deltas,
		SampleCount:  c.samples.Counts,
	}, out, true)

	stats := func(node uint32) NodeStats {
		s := NodeStats{
			SampleCount: out.SelfCount[node] + out.NestedCount[node],
			SelfTime:    out.SelfTime[node],
		}
		if c.presence != nil {
			s.Presence = c.presence(node)
		}
		return s
	}

	targets := make([]uint32, n)
	localRoot := make([]uint32, n)
	var merged int
	for i := 1; i < n; i++ {
		p := c.tree.Parent[i]
		if p == 0 {
			localRoot[i] = uint32(i)
		} else {
			localRoot[i] = localRoot[p]
		}
		if rule(stats(uint32(i)), stats(p), stats(localRoot[i])) {
			targets[i] = targets[p]
			merged++
		} else {
			targets[i] = uint32(i)
		}
	}
	log.Debug().Int("nodes", n).Int("merged", merged).Msg("convolution rule applied")
	return targets
}

type ruleEnv struct {
	Self   NodeStats `expr:"self"`
	Parent NodeStats `expr:"parent"`
	Root   NodeStats `expr:"root"`
}

// ExprRule compiles a boolean expression over self, parent and root, for
// instance "self.sampleCount < parent.sampleCount / 100".
func ExprRule(source string) (Rule, error) {
	program, err := expr.Compile(source, expr.Env(ruleEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return func(self, parent, root NodeStats) bool {
		result, err := vm.Run(program, ruleEnv{Self: self, Parent: parent, Root: root})
		if err != nil {
			log.Warn().Err(err).Str("rule", source).Msg("convolution rule failed")
			return false
		}
		b, _ := result.(bool)
		return b
	}, nil
}
