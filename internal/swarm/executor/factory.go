package executor

import (
	"context"
	"fmt"
)

// NewExecutor creates an uninitialized executor of the given type.
// Call Init before Run.
func NewExecutor(executorType Type) (Executor, error) {
	switch executorType {
	case TypeSpawnRate:
		return NewSpawnRate(), nil
	case TypeConstantUsers:
		return NewConstantUsers(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", executorType)
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	return exec, nil
}

// IsValidType returns true if the name is a supported executor type.
func IsValidType(executorType string) bool {
	switch Type(executorType) {
	case TypeSpawnRate, TypeConstantUsers:
		return true
	default:
		return false
	}
}

// SupportedTypes returns all supported executor types.
func SupportedTypes() []Type {
	return []Type{TypeSpawnRate, TypeConstantUsers}
}
