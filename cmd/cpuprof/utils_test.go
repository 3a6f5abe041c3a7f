package main

import (
	"testing"

	"github.com/getsentry/cpuprof/internal/testutil"
)

func TestGetNumWorkers(t *testing.T) {
	const minNumWorkers = 5
	tests := []struct {
		name          string
		numProfiles   int
		minNumWorkers int
		output        int
	}{
		{
			name:          "less profiles than minNumWorkers",
			numProfiles:   4,
			minNumWorkers: minNumWorkers,
			output:        4,
		},
		{
			name:          "as many profiles as minNumWorkers",
			numProfiles:   5,
			minNumWorkers: minNumWorkers,
			output:        5,
		},
		{
			name:          "101 profiles",
			numProfiles:   101,
			minNumWorkers: minNumWorkers,
			output:        6,
		},
		{
			name:          "200 profiles",
			numProfiles:   200,
			minNumWorkers: minNumWorkers,
			output:        10,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if diff := testutil.Diff(getNumWorkers(test.numProfiles, test.minNumWorkers), test.output); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}
