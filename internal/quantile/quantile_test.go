package quantile

import (
	"testing"

	"github.com/getsentry/cpuprof/internal/testutil"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		xs     []float64
		pctile float64
		output float64
	}{
		{name: "empty", xs: nil, pctile: 0.5, output: 0},
		{name: "single", xs: []float64{7}, pctile: 0.5, output: 7},
		{name: "odd median", xs: []float64{30, 10, 20}, pctile: 0.5, output: 20},
		{name: "even median", xs: []float64{40, 10, 30, 20}, pctile: 0.5, output: 25},
		{name: "min", xs: []float64{3, 1, 2}, pctile: 0, output: 1},
		{name: "max", xs: []float64{3, 1, 2}, pctile: 1, output: 3},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			q := Quantile{}
			q.Add(test.xs...)
			if diff := testutil.Diff(q.Percentile(test.pctile), test.output); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}
