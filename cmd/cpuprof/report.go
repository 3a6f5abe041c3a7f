package main

import (
	"context"
	"errors"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/cpuprof/internal/analysis"
	"github.com/getsentry/cpuprof/internal/metrics"
	"github.com/getsentry/cpuprof/internal/profile"
	"github.com/getsentry/cpuprof/internal/storageprovider"
	"github.com/getsentry/cpuprof/internal/storageutil"
)

var (
	reportTree     string
	reportLimit    uint
	reportExamples uint
	reportIDs      []string

	reportCmd = &cobra.Command{
		Use:   "report [profile files...]",
		Short: "Print the functions taking the most self time across profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profiles, err := loadProfiles(ctx, args, reportIDs)
			if err != nil {
				return err
			}
			ma := metrics.NewAggregator(reportLimit, reportExamples)
			for id, p := range profiles {
				a, err := analyze(ctx, config, p, nil)
				if err != nil {
					return err
				}
				tree, err := selectTree(a, reportTree)
				if err != nil {
					return err
				}
				ma.AddFunctions(metrics.Functions(a, tree), id)
			}
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ma.ToMetrics())
		},
	}
)

func init() {
	reportCmd.Flags().StringVar(&reportTree, "tree", analysis.TreeCallFrames, "tree to aggregate (callFrames, modules, packages or categories)")
	reportCmd.Flags().UintVar(&reportLimit, "limit", 20, "maximum number of functions to print")
	reportCmd.Flags().UintVar(&reportExamples, "examples", 5, "maximum number of example profiles per function")
	reportCmd.Flags().StringSliceVar(&reportIDs, "id", nil, "profile ids to read from the profiles bucket")
}

// loadProfiles reads profiles from files and from the profiles bucket. Ids
// that are not found in the bucket are skipped.
func loadProfiles(ctx context.Context, paths, ids []string) (map[string]*profile.Profile, error) {
	profiles := make(map[string]*profile.Profile, len(paths)+len(ids))
	for _, path := range paths {
		p, err := readProfileFile(path)
		if err != nil {
			return nil, err
		}
		profiles[path] = p
	}
	if len(ids) == 0 {
		return profiles, nil
	}

	storage, closeStorage, err := storageprovider.Open(ctx, config.ProfilesBucketURL)
	if err != nil {
		return nil, err
	}
	defer closeStorage()

	jobs := make(chan profile.ReadJob, len(ids))
	results := make(chan profile.ReadJobResult, len(ids))
	defer close(results)

	for i := 0; i < getNumWorkers(len(ids), config.Workers); i++ {
		go func() {
			for job := range jobs {
				job.Read()
			}
		}()
	}
	for _, id := range ids {
		jobs <- profile.ReadJob{
			Ctx:       ctx,
			Storage:   storage,
			ProfileID: id,
			Result:    results,
		}
	}
	close(jobs)

	var firstErr error
	for range ids {
		res := <-results
		if err := res.Error(); err != nil {
			if errors.Is(err, storageutil.ErrObjectNotFound) {
				log.Warn().Str("profile_id", res.ProfileID).Msg("profile not found")
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		profiles[res.ProfileID] = res.Profile
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return profiles, nil
}
