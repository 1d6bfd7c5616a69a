// Command kernelctl loads an executor config tree from a file, validates
// it, and optionally runs it to completion, printing the resulting
// ExecutionResult as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flowkit/kernel/internal/config"
	"github.com/flowkit/kernel/kernel"
	"github.com/flowkit/kernel/kernel/atomic"
	"github.com/flowkit/kernel/kernel/bus"
	"github.com/flowkit/kernel/kernel/model"
)

func main() {
	var configFlag string

	root := &cobra.Command{
		Use:   "kernelctl",
		Short: "Run and validate workflow execution kernel configs",
	}
	root.PersistentFlags().StringVarP(&configFlag, "runtime-config", "r", "", "path to a runtime options file")

	var inputFlag string
	runCmd := &cobra.Command{
		Use:   "run <executor-config.json>",
		Short: "Load a config file, execute it, and print the final result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecution(args[0], inputFlag, configFlag)
		},
	}
	runCmd.Flags().StringVarP(&inputFlag, "input", "i", "", "JSON-encoded root input")
	root.AddCommand(runCmd)

	validateCmd := &cobra.Command{
		Use:   "validate <executor-config.json>",
		Short: "Load a config file and validate it without executing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateOnly(args[0])
		},
	}
	root.AddCommand(validateCmd)

	var outFlag string
	initConfigCmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a starter runtime-options YAML file with the built-in defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeDefaultRuntimeConfig(outFlag)
		},
	}
	initConfigCmd.Flags().StringVarP(&outFlag, "out", "o", "kernel.yaml", "output path for the generated config")
	root.AddCommand(initConfigCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadExecutorConfig(path string) (kernel.ExecutorConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return kernel.ExecutorConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg kernel.ExecutorConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return kernel.ExecutorConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func validateOnly(path string) error {
	cfg, err := loadExecutorConfig(path)
	if err != nil {
		return err
	}
	if err := config.ValidateExecutorConfig(cfg); err != nil {
		return err
	}
	fmt.Println("valid")
	return nil
}

func runExecution(path, inputJSON, runtimeConfigPath string) error {
	cfg, err := loadExecutorConfig(path)
	if err != nil {
		return err
	}
	if err := config.ValidateExecutorConfig(cfg); err != nil {
		return err
	}

	opts, err := config.Load(runtimeConfigPath)
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(parseLevel(opts.LogLevel))

	b := bus.New()
	_, _ = bus.NewLogSubscriber(b, logger)

	if opts.MetricsEnabled {
		kernel.AttachMetrics(b, kernel.NewMetrics(nil))
	}

	factory := kernel.NewFactory()
	atomic.RegisterAll(factory, &model.MockChatModel{Responses: []string{"ok"}}, atomic.NewToolRegistry())

	runtime := kernel.NewRuntime(factory, b)

	var input any
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
			return fmt.Errorf("parsing --input: %w", err)
		}
	}

	result, err := runtime.Execute(context.Background(), cfg, input, kernel.RunOptions{Timeout: opts.DefaultTimeout})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func writeDefaultRuntimeConfig(path string) error {
	raw, err := yaml.Marshal(config.DefaultRuntimeOptions())
	if err != nil {
		return fmt.Errorf("encoding default runtime options: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Println("wrote", path)
	return nil
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
