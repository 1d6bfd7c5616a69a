// Package config loads ambient runtime settings and validates the
// executor config trees the factory instantiates, the way the teacher's
// graph/options.go collects engine options, generalized to a file/env
// loader backed by viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RuntimeOptions are the process-wide settings the commands load at
// startup. DefaultTimeout becomes kernelctl's per-run timeout; the
// orchestrators do not read these options, and MaxConcurrency is not
// consulted anywhere, nor is any value filled into a node's zero
// Constraints.
type RuntimeOptions struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled bool          `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
}

// DefaultRuntimeOptions returns the values used when no file, env, or flag
// overrides them.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		DefaultTimeout: 30 * time.Second,
		MaxConcurrency: 8,
		LogLevel:       "info",
		MetricsEnabled: true,
		TracingEnabled: false,
	}
}

// Load reads RuntimeOptions from configPath (if non-empty), environment
// variables prefixed KERNEL_, and falls back to DefaultRuntimeOptions for
// anything unset. Environment variables take precedence over the file;
// viper's own precedence order handles that.
func Load(configPath string) (RuntimeOptions, error) {
	v := viper.New()
	defaults := DefaultRuntimeOptions()
	v.SetDefault("default_timeout", defaults.DefaultTimeout)
	v.SetDefault("max_concurrency", defaults.MaxConcurrency)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("metrics_enabled", defaults.MetricsEnabled)
	v.SetDefault("tracing_enabled", defaults.TracingEnabled)

	v.SetEnvPrefix("kernel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return RuntimeOptions{}, fmt.Errorf("loading config %s: %w", configPath, err)
		}
	}

	var opts RuntimeOptions
	if err := v.Unmarshal(&opts); err != nil {
		return RuntimeOptions{}, fmt.Errorf("decoding runtime options: %w", err)
	}
	return opts, nil
}
