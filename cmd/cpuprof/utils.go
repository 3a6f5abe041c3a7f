package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/getsentry/cpuprof/internal/analysis"
	"github.com/getsentry/cpuprof/internal/filter"
	"github.com/getsentry/cpuprof/internal/profile"
	"github.com/getsentry/cpuprof/internal/timings"
)

func getNumWorkers(numProfiles, minNumWorkers int) int {
	if numProfiles < minNumWorkers {
		return numProfiles
	}
	v := int(math.Ceil((float64(numProfiles) / 100) * float64(minNumWorkers)))
	return max(v, minNumWorkers)
}

func readProfileFile(path string) (*profile.Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := profile.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func analyze(ctx context.Context, config ServiceConfig, p *profile.Profile, set *filter.Set) (*analysis.Analysis, error) {
	engine, err := timings.NewEngineFromName(config.Backend)
	if err != nil {
		return nil, err
	}
	return analysis.New(ctx, engine, p, analysis.Options{
		Interval: config.Interval,
		Set:      set,
	})
}

func selectTree(a *analysis.Analysis, name string) (*analysis.Tree, error) {
	t, ok := a.Tree(name)
	if !ok {
		return nil, fmt.Errorf("unknown tree %q", name)
	}
	return t, nil
}
