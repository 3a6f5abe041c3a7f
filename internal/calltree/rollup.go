package calltree

const sentinel = -1

// Remap maps the nodes of a source tree to the nodes of a tree built from it.
type Remap []uint32

// Apply translates nodes of the source tree into dst, which must have the
// same length.
func (r Remap) Apply(dst, nodes []uint32) {
	for i, n := range nodes {
		dst[i] = r[n]
	}
}

// Compose returns the remap going through r and then next.
func (r Remap) Compose(next Remap) Remap {
	c := make(Remap, len(r))
	next.Apply(c, r)
	return c
}

// FromParents builds a call tree from a parent-pointer tree, where parent[0]
// is ignored and values[i] is the value of node i. Sibling nodes sharing a
// value are merged, and so are children sharing the value of their parent.
// SourceIDToNode maps the input nodes to the built tree.
func FromParents(parent, values []uint32, dictSize int) (*CallTree, Remap) {
	t, remap := build(parent, values, dictSize)
	t.SourceIDToNode = remap
	return t, remap
}

// Rollup projects the tree onto a coarser dictionary, where mapping[v] is the
// coarse value of v. Samples and source nodes of the tree are projected onto
// the new tree along with it.
func (t *CallTree) Rollup(mapping []uint32, dictSize int) (*CallTree, Remap) {
	values := make([]uint32, len(t.Nodes))
	for i, v := range t.Nodes {
		values[i] = mapping[v]
	}
	r, remap := build(t.Parent, values, dictSize)
	if t.SourceIDToNode != nil {
		r.SourceIDToNode = make([]uint32, len(t.SourceIDToNode))
		remap.Apply(r.SourceIDToNode, t.SourceIDToNode)
	}
	if t.SampleIDToNode != nil {
		r.SampleIDToNode = make([]uint32, len(t.SampleIDToNode))
		remap.Apply(r.SampleIDToNode, t.SampleIDToNode)
	}
	return r, remap
}

// RollupFunc is Rollup with the mapping given by a grouping function. group
// is called once per distinct value of the tree.
func (t *CallTree) RollupFunc(group func(value uint32) uint32) (*CallTree, Remap) {
	size := t.DictSize
	for _, v := range t.Nodes {
		if int(v) >= size {
			size = int(v) + 1
		}
	}
	mapping := make([]uint32, size)
	known := make([]bool, size)
	dictSize := 0
	for _, v := range t.Nodes {
		if known[v] {
			continue
		}
		known[v] = true
		mapping[v] = group(v)
		if int(mapping[v]) >= dictSize {
			dictSize = int(mapping[v]) + 1
		}
	}
	return t.Rollup(mapping, dictSize)
}

// build runs the rollup in three steps: fold every source node into an
// output node, linearize the output nodes in pre-order, and compose both
// steps into the returned remap.
func build(parent, values []uint32, dictSize int) (*CallTree, Remap) {
	n := len(parent)
	if n == 0 {
		return &CallTree{DictSize: dictSize}, nil
	}

	// First child, next sibling. Children keep their source order.
	firstChild := make([]int32, n)
	nextSibling := make([]int32, n)
	for i := range firstChild {
		firstChild[i] = sentinel
		nextSibling[i] = sentinel
	}
	for i := n - 1; i > 0; i-- {
		p := parent[i]
		nextSibling[i] = firstChild[p]
		firstChild[p] = int32(i)
	}

	f := newFolder(n, values, dictSize)
	f.fold(firstChild, nextSibling)
	t, order := f.finalize()
	remap := make(Remap, n)
	for i, o := range f.foldedInto {
		remap[i] = order[o]
	}
	return t, remap
}

type folder struct {
	values []uint32

	// output nodes
	value      []uint32
	firstChild []int32
	lastChild  []int32
	next       []int32
	// source nodes folded into an output node by sibling merge, chained
	// through pendingNext
	pendingHead []int32
	pendingTail []int32
	pendingNext []int32

	foldedInto []int32

	// stamp[v] == o means node[v] is the child of output node o with
	// value v. Entries with any other stamp are stale.
	stamp []int32
	node  []int32
}

func newFolder(n int, values []uint32, dictSize int) *folder {
	size := dictSize
	for _, v := range values {
		if int(v) >= size {
			size = int(v) + 1
		}
	}
	f := &folder{
		values:      values,
		pendingNext: make([]int32, n),
		foldedInto:  make([]int32, n),
		stamp:       make([]int32, size),
		node:        make([]int32, size),
	}
	for i := range f.stamp {
		f.stamp[i] = sentinel
	}
	for i := range f.pendingNext {
		f.pendingNext[i] = sentinel
	}
	return f
}

func (f *folder) newNode(v uint32, source int32) int32 {
	o := int32(len(f.value))
	f.value = append(f.value, v)
	f.firstChild = append(f.firstChild, sentinel)
	f.lastChild = append(f.lastChild, sentinel)
	f.next = append(f.next, sentinel)
	f.pendingHead = append(f.pendingHead, source)
	f.pendingTail = append(f.pendingTail, source)
	f.foldedInto[source] = o
	return o
}

func (f *folder) addPending(o, source int32) {
	f.pendingNext[f.pendingTail[o]] = source
	f.pendingTail[o] = source
	f.foldedInto[source] = o
}

func (f *folder) addChild(o, child int32) {
	if f.lastChild[o] == sentinel {
		f.firstChild[o] = child
	} else {
		f.next[f.lastChild[o]] = child
	}
	f.lastChild[o] = child
}

// fold visits output nodes in creation order. Every source node folded into
// an output node is known before the node is visited, except children merged
// into it during the visit itself.
func (f *folder) fold(firstChild, nextSibling []int32) {
	f.newNode(f.values[0], 0)
	var stack []int32
	for o := int32(0); o < int32(len(f.value)); o++ {
		for s := f.pendingHead[o]; s != sentinel; s = f.pendingNext[s] {
			stack = append(stack[:0], firstChild[s])
			for len(stack) > 0 {
				c := stack[len(stack)-1]
				if c == sentinel {
					stack = stack[:len(stack)-1]
					continue
				}
				stack[len(stack)-1] = nextSibling[c]

				v := f.values[c]
				switch {
				case v == f.value[o]:
					// Self merge: the children of c are visited in its place.
					f.foldedInto[c] = o
					stack = append(stack, firstChild[c])
				case f.stamp[v] == o:
					f.addPending(f.node[v], c)
				default:
					x := f.newNode(v, c)
					f.stamp[v] = o
					f.node[v] = x
					f.addChild(o, x)
				}
			}
		}
	}
}

// finalize lays output nodes out in pre-order. It returns the tree and the
// position of every output node in it.
func (f *folder) finalize() (*CallTree, []uint32) {
	n := len(f.value)
	t := &CallTree{
		Nodes:       make([]uint32, 0, n),
		Parent:      make([]uint32, 0, n),
		SubtreeSize: make([]uint32, n),
		Nested:      make([]uint8, 0, n),
		DictSize:    len(f.stamp),
	}
	order := make([]uint32, n)
	onPath := make([]uint32, len(f.stamp))

	type frame struct {
		node   int32
		parent uint32
		exit   bool
	}
	stack := []frame{{node: 0}}
	var children []int32
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v := f.value[fr.node]
		if fr.exit {
			onPath[v]--
			continue
		}
		idx := uint32(len(t.Nodes))
		order[fr.node] = idx
		t.Nodes = append(t.Nodes, v)
		t.Parent = append(t.Parent, fr.parent)
		if onPath[v] > 0 {
			t.Nested = append(t.Nested, 1)
		} else {
			t.Nested = append(t.Nested, 0)
		}
		onPath[v]++
		stack = append(stack, frame{node: fr.node, exit: true})

		children = children[:0]
		for c := f.firstChild[fr.node]; c != sentinel; c = f.next[c] {
			children = append(children, c)
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i], parent: idx})
		}
	}

	for i := n - 1; i > 0; i-- {
		t.SubtreeSize[t.Parent[i]] += t.SubtreeSize[i] + 1
	}
	t.ComputeEntryNodes()
	return t, order
}
