package stream

import (
	"errors"
	"fmt"
)

// ConfigError is a synchronous rejection raised before any pipeline
// spawn. Callers can show its reason to an operator verbatim.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// IsConfigError reports whether err is a configuration rejection.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// PipelineError wraps a failure raised by the encode pipeline at or
// after spawn.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
