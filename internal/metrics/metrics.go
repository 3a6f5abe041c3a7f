package metrics

import (
	"errors"
	"math"
	"sort"

	"github.com/getsentry/cpuprof/internal/analysis"
)

type FunctionsMetadata struct {
	MaxVal   int64
	WorstID  string
	Examples []string
}

// Function is the time spent in one dictionary value of a profile.
// SelfTimes holds the self time of every node with that value.
type Function struct {
	Label       analysis.Label
	SelfTimes   []int64
	SumSelfTime int64
	TotalTime   int64
	SampleCount uint32
}

type Aggregator struct {
	MaxUniqueFunctions uint
	MaxNumOfExamples   uint
	Functions          map[string]Function
	FunctionsMetadata  map[string]FunctionsMetadata
}

type FunctionMetrics struct {
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	Module    string   `json:"module,omitempty"`
	Package   string   `json:"package,omitempty"`
	P75       int64    `json:"p75"`
	P95       int64    `json:"p95"`
	P99       int64    `json:"p99"`
	Avg       float64  `json:"avg"`
	Sum       int64    `json:"sum"`
	TotalTime int64    `json:"total_time"`
	Count     uint64   `json:"count"`
	Worst     string   `json:"worst"`
	Examples  []string `json:"examples"`
}

func NewAggregator(MaxUniqueFunctions uint, MaxNumOfExamples uint) Aggregator {
	return Aggregator{
		MaxUniqueFunctions: MaxUniqueFunctions,
		MaxNumOfExamples:   MaxNumOfExamples,
		Functions:          make(map[string]Function),
		FunctionsMetadata:  make(map[string]FunctionsMetadata),
	}
}

// Functions lists the values of a tree with some self time, using the
// current timings of the tree.
func Functions(a *analysis.Analysis, tree *analysis.Tree) []Function {
	var functions []Function
	for _, v := range tree.CallTree.Values() {
		t := tree.GetValueTimings(v)
		if t.SelfTime <= 0 {
			continue
		}
		f := Function{
			Label:       a.Label(tree.Name, v),
			SumSelfTime: t.SelfTime,
			TotalTime:   t.TotalTime,
			SampleCount: t.SampleCount,
		}
		for _, n := range tree.SelectNodes(v, true) {
			if st := tree.Timings.SelfTime[n]; st > 0 {
				f.SelfTimes = append(f.SelfTimes, st)
			}
		}
		functions = append(functions, f)
	}
	return functions
}

func (ma *Aggregator) AddFunctions(functions []Function, ID string) {
	for _, f := range functions {
		key := f.Label.Key
		if fn, ok := ma.Functions[key]; ok {
			fn.SampleCount += f.SampleCount
			fn.SelfTimes = append(fn.SelfTimes, f.SelfTimes...)
			fn.SumSelfTime += f.SumSelfTime
			fn.TotalTime += f.TotalTime
			funcMetadata := ma.FunctionsMetadata[key]
			if f.SumSelfTime > funcMetadata.MaxVal {
				funcMetadata.MaxVal = f.SumSelfTime
				funcMetadata.WorstID = ID
			}
			if len(funcMetadata.Examples) < int(ma.MaxNumOfExamples) {
				funcMetadata.Examples = append(funcMetadata.Examples, ID)
			}
			ma.FunctionsMetadata[key] = funcMetadata
			ma.Functions[key] = fn
		} else {
			f.SelfTimes = append([]int64(nil), f.SelfTimes...)
			ma.Functions[key] = f
			ma.FunctionsMetadata[key] = FunctionsMetadata{
				MaxVal:   f.SumSelfTime,
				WorstID:  ID,
				Examples: []string{ID},
			}
		}
	}
}

func (ma *Aggregator) ToMetrics() []FunctionMetrics {
	metrics := make([]FunctionMetrics, 0, len(ma.Functions))

	for key, f := range ma.Functions {
		sort.Slice(f.SelfTimes, func(i, j int) bool {
			return f.SelfTimes[i] < f.SelfTimes[j]
		})
		p75, _ := quantile(f.SelfTimes, 0.75)
		p95, _ := quantile(f.SelfTimes, 0.95)
		p99, _ := quantile(f.SelfTimes, 0.99)
		var avg float64
		if len(f.SelfTimes) != 0 {
			avg = float64(f.SumSelfTime) / float64(len(f.SelfTimes))
		}
		metrics = append(metrics, FunctionMetrics{
			Key:       key,
			Name:      f.Label.Name,
			Module:    f.Label.Module,
			Package:   f.Label.Package,
			P75:       p75,
			P95:       p95,
			P99:       p99,
			Avg:       avg,
			Sum:       f.SumSelfTime,
			TotalTime: f.TotalTime,
			Count:     uint64(f.SampleCount),
			Worst:     ma.FunctionsMetadata[key].WorstID,
			Examples:  ma.FunctionsMetadata[key].Examples,
		})
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Sum != metrics[j].Sum {
			return metrics[i].Sum > metrics[j].Sum
		}
		return metrics[i].Key < metrics[j].Key
	})
	if len(metrics) > int(ma.MaxUniqueFunctions) {
		metrics = metrics[:ma.MaxUniqueFunctions]
	}
	return metrics
}

func quantile(values []int64, q float64) (int64, error) {
	if len(values) == 0 {
		return 0, errors.New("cannot compute percentile from empty list")
	}
	if q <= 0 || q > 1 {
		return 0, errors.New("q must be a value between 0 and 1.0")
	}
	index := int(math.Ceil(float64(len(values))*q)) - 1
	return values[index], nil
}
