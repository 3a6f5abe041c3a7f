// Package calltree holds call trees stored as flat arrays in pre-order, and
// the rollup engine projecting a tree onto a coarser dictionary.
package calltree

import (
	"fmt"

	"github.com/getsentry/cpuprof/internal/errorutil"
)

var ErrInvalidNode = fmt.Errorf("calltree: %w: node out of range", errorutil.ErrInvalidArgument)

// CallTree is a tree of dictionary values. Node 0 is the root, nodes are
// numbered in pre-order so the parent of a node always has a lower index and
// the descendants of node i are i+1 to i+SubtreeSize[i].
type CallTree struct {
	// Nodes holds the dictionary value of each node.
	Nodes       []uint32
	Parent      []uint32
	SubtreeSize []uint32
	// Nested is 1 when a strict ancestor of the node has the same value.
	Nested []uint8

	// SourceIDToNode maps the nodes of the tree this one was built from.
	SourceIDToNode []uint32
	// SampleIDToNode maps every sample of the profile to a node.
	SampleIDToNode []uint32

	// DictSize is the size of the dictionary values are taken from.
	DictSize int

	entryNodes       []uint32
	entryNodesOffset []uint32
	entryNodesCount  []uint32
}

func (t *CallTree) NodeCount() int {
	return len(t.Nodes)
}

func (t *CallTree) Value(node uint32) uint32 {
	return t.Nodes[node]
}

func (t *CallTree) valid(node uint32) bool {
	return int(node) < len(t.Nodes)
}

// Ancestors returns the ancestors of a node, its parent first and the root
// last.
func (t *CallTree) Ancestors(node uint32) ([]uint32, error) {
	if !t.valid(node) {
		return nil, ErrInvalidNode
	}
	var ancestors []uint32
	for node != 0 {
		node = t.Parent[node]
		ancestors = append(ancestors, node)
	}
	return ancestors, nil
}

func (t *CallTree) Children(node uint32) ([]uint32, error) {
	if !t.valid(node) {
		return nil, ErrInvalidNode
	}
	var children []uint32
	end := node + t.SubtreeSize[node]
	for c := node + 1; c <= end; c += t.SubtreeSize[c] + 1 {
		children = append(children, c)
	}
	return children, nil
}

// Subtree returns the node followed by all of its descendants in pre-order.
func (t *CallTree) Subtree(node uint32) ([]uint32, error) {
	if !t.valid(node) {
		return nil, ErrInvalidNode
	}
	nodes := make([]uint32, 0, t.SubtreeSize[node]+1)
	for i := node; i <= node+t.SubtreeSize[node]; i++ {
		nodes = append(nodes, i)
	}
	return nodes, nil
}

func (t *CallTree) Depth(node uint32) int {
	var depth int
	for node != 0 {
		node = t.Parent[node]
		depth++
	}
	return depth
}

// LocalRoot returns the ancestor of a node sitting right under the root, or
// the node itself when it has depth 0 or 1.
func (t *CallTree) LocalRoot(node uint32) uint32 {
	for node != 0 && t.Parent[node] != 0 {
		node = t.Parent[node]
	}
	return node
}

// ComputeEntryNodes groups node indexes by value.
func (t *CallTree) ComputeEntryNodes() {
	size := t.DictSize
	for _, v := range t.Nodes {
		if int(v) >= size {
			size = int(v) + 1
		}
	}
	t.entryNodesCount = make([]uint32, size)
	t.entryNodesOffset = make([]uint32, size)
	t.entryNodes = make([]uint32, len(t.Nodes))
	for _, v := range t.Nodes {
		t.entryNodesCount[v]++
	}
	var offset uint32
	for v, c := range t.entryNodesCount {
		t.entryNodesOffset[v] = offset
		offset += c
	}
	fill := make([]uint32, size)
	for i, v := range t.Nodes {
		t.entryNodes[t.entryNodesOffset[v]+fill[v]] = uint32(i)
		fill[v]++
	}
}

// SelectNodes returns the nodes with a value, in pre-order. Nested nodes are
// left out unless includeNested is set.
func (t *CallTree) SelectNodes(value uint32, includeNested bool) []uint32 {
	if t.entryNodesCount == nil {
		t.ComputeEntryNodes()
	}
	if int(value) >= len(t.entryNodesCount) {
		return nil
	}
	offset := t.entryNodesOffset[value]
	entries := t.entryNodes[offset : offset+t.entryNodesCount[value]]
	if includeNested {
		return append([]uint32(nil), entries...)
	}
	var nodes []uint32
	for _, n := range entries {
		if t.Nested[n] == 0 {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Values returns the distinct values present in the tree, in increasing order.
func (t *CallTree) Values() []uint32 {
	if t.entryNodesCount == nil {
		t.ComputeEntryNodes()
	}
	var values []uint32
	for v, c := range t.entryNodesCount {
		if c != 0 {
			values = append(values, uint32(v))
		}
	}
	return values
}

// MapSamples sets the node of every sample from the node it had in the
// source tree.
func (t *CallTree) MapSamples(sourceNodes []int) {
	t.SampleIDToNode = make([]uint32, len(sourceNodes))
	for i, n := range sourceNodes {
		t.SampleIDToNode[i] = t.SourceIDToNode[n]
	}
}
