package profile

import (
	"errors"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/cpuprof/internal/errorutil"
	"github.com/getsentry/cpuprof/internal/frame"
)

var (
	ErrUnknownNode = fmt.Errorf("profile: %w: sample references an unknown node", errorutil.ErrDataIntegrity)
	ErrCyclicTree  = fmt.Errorf("profile: %w: node tree contains a cycle", errorutil.ErrDataIntegrity)
	ErrNoNodes     = errors.New("profile: no nodes")
)

type (
	Node struct {
		ID        int              `json:"id"`
		CallFrame frame.Descriptor `json:"callFrame"`
		Children  []int            `json:"children,omitempty"`
		// Parent is used by the chunked trace event flavour, which has no
		// children lists.
		Parent int `json:"parent,omitempty"`
	}

	Script struct {
		ID  frame.ScriptID `json:"id"`
		URL string         `json:"url"`
	}

	Code struct {
		Tier      string `json:"tier"`
		Size      int    `json:"size"`
		Timestamp int64  `json:"tm"`
	}

	Function struct {
		CallFrame frame.Descriptor `json:"callFrame"`
		Codes     []Code           `json:"codes"`
	}

	ExecutionContext struct {
		Origin string `json:"origin"`
		Name   string `json:"name"`
	}

	// Profile is the canonical raw profile produced by the format converters.
	Profile struct {
		StartTime  int64   `json:"startTime"`
		EndTime    int64   `json:"endTime"`
		Nodes      []Node  `json:"nodes"`
		Samples    []int   `json:"samples"`
		TimeDeltas []int64 `json:"timeDeltas"`

		// Optional extensions.
		SamplePositions   []int              `json:"_samplePositions,omitempty"`
		Scripts           []Script           `json:"_scripts,omitempty"`
		Functions         []Function         `json:"_functions,omitempty"`
		ExecutionContexts []ExecutionContext `json:"_executionContexts,omitempty"`
	}

	// Forest is the node tree of a profile flattened to parent pointers.
	// Index 0 is the root.
	Forest struct {
		// Order lists node positions in Profile.Nodes, parents first.
		Order []int
		// Parent holds, for each entry of Order, the index of its parent in Order.
		Parent []int
		// IndexByID maps a node id to its index in Order.
		IndexByID map[int]int
	}
)

func Unmarshal(b []byte) (*Profile, error) {
	var p Profile
	if err := gojson.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

// Normalize applies best effort defaults: missing deltas are zero, extra
// deltas and positions are dropped.
func (p *Profile) Normalize() {
	if len(p.TimeDeltas) != len(p.Samples) {
		log.Warn().
			Int("samples", len(p.Samples)).
			Int("time_deltas", len(p.TimeDeltas)).
			Msg("time deltas and samples length mismatch")
		deltas := make([]int64, len(p.Samples))
		copy(deltas, p.TimeDeltas)
		p.TimeDeltas = deltas
	}
	if len(p.SamplePositions) != 0 && len(p.SamplePositions) != len(p.Samples) {
		log.Warn().Msg("sample positions length mismatch, ignoring positions")
		p.SamplePositions = nil
	}
	if p.EndTime < p.StartTime {
		var total int64
		for _, d := range p.TimeDeltas {
			total += d
		}
		p.EndTime = p.StartTime + total
	}
}

// Forest flattens the node tree, validating it along the way. Nodes not
// reachable from the root are attached to it.
func (p *Profile) Forest() (Forest, error) {
	if len(p.Nodes) == 0 {
		return Forest{}, ErrNoNodes
	}
	position := make(map[int]int, len(p.Nodes))
	for i, n := range p.Nodes {
		if _, ok := position[n.ID]; ok {
			log.Warn().Int("node_id", n.ID).Msg("duplicate node id")
		}
		position[n.ID] = i
	}

	children := make([][]int, len(p.Nodes))
	hasParent := make([]bool, len(p.Nodes))
	for i, n := range p.Nodes {
		for _, c := range n.Children {
			ci, ok := position[c]
			if !ok {
				log.Warn().Int("node_id", n.ID).Int("child_id", c).Msg("unknown child node")
				continue
			}
			if hasParent[ci] {
				continue
			}
			hasParent[ci] = true
			children[i] = append(children[i], ci)
		}
	}
	for i, n := range p.Nodes {
		if n.Parent == 0 || hasParent[i] {
			continue
		}
		pi, ok := position[n.Parent]
		if !ok || pi == i {
			continue
		}
		hasParent[i] = true
		children[pi] = append(children[pi], i)
	}

	root := -1
	var orphans []int
	for i := range p.Nodes {
		if hasParent[i] {
			continue
		}
		if root == -1 {
			root = i
			continue
		}
		orphans = append(orphans, i)
	}
	if root == -1 {
		return Forest{}, ErrCyclicTree
	}
	if len(orphans) != 0 {
		log.Warn().Int("orphans", len(orphans)).Msg("attaching orphan nodes to the root")
		children[root] = append(children[root], orphans...)
	}

	f := Forest{
		Order:     make([]int, 0, len(p.Nodes)),
		Parent:    make([]int, 0, len(p.Nodes)),
		IndexByID: make(map[int]int, len(p.Nodes)),
	}
	type entry struct{ pos, parent int }
	stack := []entry{{root, 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		idx := len(f.Order)
		f.Order = append(f.Order, e.pos)
		f.Parent = append(f.Parent, e.parent)
		f.IndexByID[p.Nodes[e.pos].ID] = idx
		c := children[e.pos]
		for j := len(c) - 1; j >= 0; j-- {
			stack = append(stack, entry{c[j], idx})
		}
	}
	if len(f.Order) != len(p.Nodes) {
		return Forest{}, ErrCyclicTree
	}
	return f, nil
}

// SampleNodes maps every sample to its node index in the forest.
func (p *Profile) SampleNodes(f Forest) ([]int, error) {
	nodes := make([]int, len(p.Samples))
	for i, id := range p.Samples {
		idx, ok := f.IndexByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: sample %d points to node %d", ErrUnknownNode, i, id)
		}
		nodes[i] = idx
	}
	return nodes, nil
}

// Summary describes the profile for log lines.
func (p *Profile) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d nodes, %d samples, %dus", len(p.Nodes), len(p.Samples), p.EndTime-p.StartTime)
	if len(p.Scripts) != 0 {
		fmt.Fprintf(&b, ", %d scripts", len(p.Scripts))
	}
	if len(p.Functions) != 0 {
		fmt.Fprintf(&b, ", %d functions", len(p.Functions))
	}
	return b.String()
}
