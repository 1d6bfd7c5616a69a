package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/flowkit/kernel/kernel"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateExecutorConfig checks cfg's struct tags (required fields,
// oneof enums, non-negative counters) and recurses into every composite
// child, turning spec.md §6's "unknown type causes a fatal configuration
// error" into a single validator.Struct pass that runs before the factory
// ever instantiates anything.
func ValidateExecutorConfig(cfg kernel.ExecutorConfig) error {
	if err := getValidator().Struct(cfg); err != nil {
		return formatError(cfg.ID, err)
	}
	if cfg.Type == kernel.TypeComposite && cfg.Orchestrator != nil {
		if err := getValidator().Struct(cfg.Orchestrator); err != nil {
			return formatError(cfg.ID, err)
		}
		for _, child := range cfg.Orchestrator.Children {
			if err := ValidateExecutorConfig(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatError(nodeID string, err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("config %s: %w", nodeID, err)
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", e.Field(), e.Tag()))
	}
	return &kernel.ConfigError{
		Code:    kernel.CodeValidation,
		Message: fmt.Sprintf("config %s: %s", nodeID, strings.Join(msgs, "; ")),
	}
}
