package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/cpuprof/internal/envutil"
	"github.com/getsentry/cpuprof/internal/logutil"
)

var (
	release string

	configPath string
	backend    string
	config     ServiceConfig

	rootCmd = &cobra.Command{
		Use:           "cpuprof",
		Short:         "Analyze sampled CPU profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			config, err = loadConfig(configPath)
			if err != nil {
				return err
			}
			if backend != "" {
				config.Backend = backend
			}
			logutil.ConfigureLogger(config.LogLevel)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envutil.GetEnvOrFallback("CPUPROF_CONFIG", ""), "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "timings backend (interpreted or accelerated)")

	rootCmd.AddCommand(reportCmd, exportCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
