package main

import (
	"github.com/ilyakaznacheev/cleanenv"
)

type (
	ServiceConfig struct {
		Environment string `yaml:"environment" env:"SENTRY_ENVIRONMENT" env-default:"development"`
		SentryDSN   string `yaml:"sentry_dsn" env:"SENTRY_DSN"`

		Port     string `yaml:"port" env:"PORT" env-default:"8080"`
		LogLevel string `yaml:"log_level" env:"CPUPROF_LOG_LEVEL" env-default:"info"`

		// Backend is the timings backend, interpreted or accelerated.
		Backend string `yaml:"backend" env:"CPUPROF_BACKEND" env-default:"accelerated"`
		// Interval is the sampling interval in microseconds. It is estimated
		// from the profile when 0.
		Interval int64 `yaml:"interval" env:"CPUPROF_INTERVAL"`
		Workers  int   `yaml:"workers" env:"CPUPROF_WORKERS" env-default:"5"`

		ProfilesBucketURL string `yaml:"profiles_bucket_url" env:"CPUPROF_PROFILES_BUCKET_URL" env-default:"mem://"`
	}
)

// loadConfig reads the configuration from a YAML file when path is set, with
// environment variables taking precedence.
func loadConfig(path string) (ServiceConfig, error) {
	var c ServiceConfig
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &c)
	} else {
		err = cleanenv.ReadEnv(&c)
	}
	return c, err
}
