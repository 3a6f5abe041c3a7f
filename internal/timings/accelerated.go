package timings

import (
	"sync"
)

const defaultChunkSize = 1 << 16

// Buffer is a pool of chunks the accelerated backend carves its arrays from.
// Consecutive arrays smaller than the chunk size are laid out back to back in
// the current chunk. A larger array gets a chunk of its own, so the arrays of
// one analysis are not in a single contiguous region. Arrays are never moved
// and a chunk is released once no array refers to it anymore.
type Buffer struct {
	mu        sync.Mutex
	chunkSize int
	i64       []int64
	u32       []uint32
}

func NewBuffer(chunkSize int) *Buffer {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Buffer{chunkSize: chunkSize}
}

func (b *Buffer) Int64s(n int) []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.i64) {
		size := b.chunkSize
		if n > size {
			size = n
		}
		b.i64 = make([]int64, size)
	}
	region := b.i64[:n:n]
	b.i64 = b.i64[n:]
	return region
}

func (b *Buffer) Uint32s(n int) []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.u32) {
		size := b.chunkSize
		if n > size {
			size = n
		}
		b.u32 = make([]uint32, size)
	}
	region := b.u32[:n:n]
	b.u32 = b.u32[n:]
	return region
}

// Accelerated computes in place over arrays taken from a shared Buffer,
// fusing the passes of the interpreted backend.
type Accelerated struct {
	Buffer *Buffer
}

func NewAccelerated(b *Buffer) *Accelerated {
	if b == nil {
		b = NewBuffer(0)
	}
	return &Accelerated{Buffer: b}
}

func (a *Accelerated) Name() string {
	return BackendAccelerated
}

func (a *Accelerated) Int64s(n int) []int64 {
	return a.Buffer.Int64s(n)
}

func (a *Accelerated) Uint32s(n int) []uint32 {
	return a.Buffer.Uint32s(n)
}

func (a *Accelerated) ComputeSampleTimings(deltas, sampleTime, timestamps []int64, clear bool) {
	n := len(deltas)
	sampleTime = sampleTime[:n]
	timestamps = timestamps[:n+1]
	var t int64
	timestamps[0] = 0
	for i := 0; i < n; i++ {
		s := deltas[i]
		if !clear {
			s += sampleTime[i]
		}
		sampleTime[i] = s
		t += s
		timestamps[i+1] = t
	}
}

func (a *Accelerated) ComputeTreeTimings(in TreeInput, out TreeOutput, clear bool) {
	n := len(in.Parent)
	selfTime, nestedTime := out.SelfTime[:n], out.NestedTime[:n]
	selfCount, nestedCount := out.SelfCount[:n], out.NestedCount[:n]
	if clear {
		clear64(selfTime)
		clear32(selfCount)
	}
	clear64(nestedTime)
	clear32(nestedCount)

	samples := in.SampleToNode
	sampleTime := in.SampleTime[:len(samples)]
	sampleCount := in.SampleCount[:len(samples)]
	for i, node := range samples {
		selfTime[node] += sampleTime[i]
		selfCount[node] += sampleCount[i]
	}

	parent := in.Parent
	for i := n - 1; i > 0; i-- {
		p := parent[i]
		nestedTime[p] += selfTime[i] + nestedTime[i]
		nestedCount[p] += selfCount[i] + nestedCount[i]
	}
}

func (a *Accelerated) ComputeDictionaryTimings(in DictionaryInput, out DictionaryOutput, clear bool) {
	if clear {
		clear64(out.SelfTime)
		clear64(out.TotalTime)
		clear32(out.SelfCount)
		clear32(out.TotalCount)
	}
	n := len(in.Values)
	values, nested := in.Values, in.Nested[:n]
	selfTime, nestedTime := in.SelfTime[:n], in.NestedTime[:n]
	selfCount, nestedCount := in.SelfCount[:n], in.NestedCount[:n]
	for node := 0; node < n; node++ {
		v := values[node]
		st, sc := selfTime[node], selfCount[node]
		out.SelfTime[v] += st
		out.SelfCount[v] += sc
		// nested is 0 or 1
		keep := int64(1 - nested[node])
		out.TotalTime[v] += keep * (st + nestedTime[node])
		out.TotalCount[v] += uint32(keep) * (sc + nestedCount[node])
	}
}

func clear64(s []int64) {
	for i := range s {
		s[i] = 0
	}
}

func clear32(s []uint32) {
	for i := range s {
		s[i] = 0
	}
}
