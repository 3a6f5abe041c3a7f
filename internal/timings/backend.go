package timings

type (
	// TreeInput is what tree timings are computed from. Parent is in
	// pre-order, as in calltree.CallTree.
	TreeInput struct {
		Parent       []uint32
		SampleToNode []uint32
		SampleTime   []int64
		SampleCount  []uint32
	}

	TreeOutput struct {
		SelfTime    []int64
		NestedTime  []int64
		SelfCount   []uint32
		NestedCount []uint32
	}

	DictionaryInput struct {
		Values      []uint32
		Nested      []uint8
		SelfTime    []int64
		NestedTime  []int64
		SelfCount   []uint32
		NestedCount []uint32
	}

	DictionaryOutput struct {
		SelfTime   []int64
		TotalTime  []int64
		SelfCount  []uint32
		TotalCount []uint32
	}

	// Backend computes timings. Implementations must produce the same
	// results for the same input.
	//
	// When clear is false, self values are accumulated on top of the values
	// already present in the output. Nested values are always derived from
	// self values.
	Backend interface {
		Name() string

		// Int64s and Uint32s allocate zeroed arrays for the backend to
		// compute into.
		Int64s(n int) []int64
		Uint32s(n int) []uint32

		// ComputeSampleTimings sets the time of every sample from deltas, and
		// the start time of every sample in timestamps, which has one more
		// entry holding the end of the last sample.
		ComputeSampleTimings(deltas, sampleTime, timestamps []int64, clear bool)
		ComputeTreeTimings(in TreeInput, out TreeOutput, clear bool)
		ComputeDictionaryTimings(in DictionaryInput, out DictionaryOutput, clear bool)
	}
)

// Interpreted is the reference backend.
type Interpreted struct{}

func (Interpreted) Name() string {
	return BackendInterpreted
}

func (Interpreted) Int64s(n int) []int64 {
	return make([]int64, n)
}

func (Interpreted) Uint32s(n int) []uint32 {
	return make([]uint32, n)
}

func (Interpreted) ComputeSampleTimings(deltas, sampleTime, timestamps []int64, clear bool) {
	for i, d := range deltas {
		if clear {
			sampleTime[i] = d
		} else {
			sampleTime[i] += d
		}
	}
	timestamps[0] = 0
	for i, t := range sampleTime {
		timestamps[i+1] = timestamps[i] + t
	}
}

func (Interpreted) ComputeTreeTimings(in TreeInput, out TreeOutput, clear bool) {
	if clear {
		for i := range out.SelfTime {
			out.SelfTime[i] = 0
			out.SelfCount[i] = 0
		}
	}
	for i, node := range in.SampleToNode {
		out.SelfTime[node] += in.SampleTime[i]
		out.SelfCount[node] += in.SampleCount[i]
	}
	for i := range out.NestedTime {
		out.NestedTime[i] = 0
		out.NestedCount[i] = 0
	}
	// Children have a higher index than their parent.
	for i := len(in.Parent) - 1; i > 0; i-- {
		p := in.Parent[i]
		out.NestedTime[p] += out.SelfTime[i] + out.NestedTime[i]
		out.NestedCount[p] += out.SelfCount[i] + out.NestedCount[i]
	}
}

func (Interpreted) ComputeDictionaryTimings(in DictionaryInput, out DictionaryOutput, clear bool) {
	if clear {
		for i := range out.SelfTime {
			out.SelfTime[i] = 0
			out.TotalTime[i] = 0
			out.SelfCount[i] = 0
			out.TotalCount[i] = 0
		}
	}
	for node, v := range in.Values {
		out.SelfTime[v] += in.SelfTime[node]
		out.SelfCount[v] += in.SelfCount[node]
		if in.Nested[node] != 0 {
			continue
		}
		out.TotalTime[v] += in.SelfTime[node] + in.NestedTime[node]
		out.TotalCount[v] += in.SelfCount[node] + in.NestedCount[node]
	}
}
