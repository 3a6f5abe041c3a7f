package speedscope

import (
	"sort"

	"github.com/getsentry/cpuprof/internal/analysis"
)

const (
	Schema = "https://www.speedscope.app/file-format-schema.json"

	ValueUnitMicroseconds ValueUnit = "microseconds"

	ProfileTypeSampled ProfileType = "sampled"
)

type (
	Frame struct {
		Col           uint32 `json:"col,omitempty"`
		File          string `json:"file,omitempty"`
		IsApplication bool   `json:"is_application"`
		Line          uint32 `json:"line,omitempty"`
		Name          string `json:"name"`
		Path          string `json:"path,omitempty"`
	}

	SampledProfile struct {
		EndValue   int64       `json:"endValue"`
		Name       string      `json:"name"`
		Samples    [][]int     `json:"samples"`
		StartValue int64       `json:"startValue"`
		Type       ProfileType `json:"type"`
		Unit       ValueUnit   `json:"unit"`
		Weights    []int64     `json:"weights"`
	}

	SharedData struct {
		Frames []Frame `json:"frames"`
	}

	ProfileType string
	ValueUnit   string

	Output struct {
		Schema             string        `json:"$schema"`
		ActiveProfileIndex int           `json:"activeProfileIndex"`
		Exporter           string        `json:"exporter"`
		Name               string        `json:"name"`
		ProfileID          string        `json:"profileID"`
		Profiles           []interface{} `json:"profiles"`
		Shared             SharedData    `json:"shared"`
	}
)

// FromTree exports a tree of the analysis as a sampled profile, using the
// current sample mapping and times. Samples with no time are left out.
func FromTree(a *analysis.Analysis, tree *analysis.Tree, profileID string) Output {
	ct := tree.CallTree
	frameIndex := make(map[uint32]int)
	var frames []Frame
	frameOf := func(value uint32) int {
		if i, ok := frameIndex[value]; ok {
			return i
		}
		l := a.Label(tree.Name, value)
		f := Frame{
			Name:          l.Name,
			File:          l.Module,
			Path:          l.URL,
			IsApplication: l.URL != "",
		}
		if tree.Name == analysis.TreeCallFrames && l.Line >= 0 && l.Column >= 0 {
			// 1-based in speedscope
			f.Line = uint32(l.Line + 1)
			f.Col = uint32(l.Column + 1)
		}
		frameIndex[value] = len(frames)
		frames = append(frames, f)
		return frameIndex[value]
	}

	stacks := make(map[uint32][]int)
	var stackOf func(node uint32) []int
	stackOf = func(node uint32) []int {
		if node == 0 {
			return nil
		}
		if s, ok := stacks[node]; ok {
			return s
		}
		parent := stackOf(ct.Parent[node])
		s := make([]int, len(parent), len(parent)+1)
		copy(s, parent)
		s = append(s, frameOf(ct.Nodes[node]))
		stacks[node] = s
		return s
	}

	samples := a.Samples
	p := &SampledProfile{
		Name:     tree.Name,
		Type:     ProfileTypeSampled,
		Unit:     ValueUnitMicroseconds,
		EndValue: samples.Duration(),
	}
	for i, node := range ct.SampleIDToNode {
		d := samples.Deltas[i]
		if d <= 0 {
			continue
		}
		p.Samples = append(p.Samples, stackOf(node))
		p.Weights = append(p.Weights, d)
	}

	return Output{
		Schema:    Schema,
		Exporter:  "cpuprof",
		Name:      tree.Name,
		ProfileID: profileID,
		Profiles:  []interface{}{p},
		Shared:    SharedData{Frames: frames},
	}
}

// SortSamplesForFlamegraph orders samples by stack and weighs them by time,
// which makes a left-heavy flamegraph.
func (o *Output) SortSamplesForFlamegraph() {
	frames := o.Shared.Frames
	for _, sampledProfile := range o.Profiles {
		// only for Sampled Profiles
		profile, ok := sampledProfile.(*SampledProfile)
		if ok {
			SortSamplesAlphabetically(profile.Samples, profile.Weights, frames)
		}
	}
}

func SortSamplesAlphabetically(samples [][]int, weights []int64, frames []Frame) {
	sort.Sort(byStack{samples: samples, weights: weights, frames: frames})
}

type byStack struct {
	samples [][]int
	weights []int64
	frames  []Frame
}

func (s byStack) Len() int {
	return len(s.samples)
}

func (s byStack) Swap(i, j int) {
	s.samples[i], s.samples[j] = s.samples[j], s.samples[i]
	if s.weights != nil {
		s.weights[i], s.weights[j] = s.weights[j], s.weights[i]
	}
}

func (s byStack) Less(i, j int) bool {
	a, b := s.samples[i], s.samples[j]
	c := 0
	for {
		if len(a) == c {
			return len(b) > c
		} else if len(b) == c {
			return false
		}
		if s.frames[a[c]].Name < s.frames[b[c]].Name {
			return true
		} else if s.frames[a[c]].Name > s.frames[b[c]].Name {
			return false
		}
		c++
	}
}
