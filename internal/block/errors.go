package block

import "fmt"

// ConfigError reports a missing or malformed block parameter, or an unknown
// block type. Always permanent; never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid block config: %s", e.Reason)
}

// RunError reports a failure while a block was doing its work. Details holds
// structured diagnostics (remote error bodies, stack traces) for operator
// visibility; Msg is the human-readable summary shown to the user.
type RunError struct {
	Msg     string
	Details map[string]any
	Cause   error
}

func (e *RunError) Error() string { return e.Msg }

func (e *RunError) Unwrap() error { return e.Cause }

// NewRunError wraps an arbitrary error in a RunError, preserving it as the
// cause.
func NewRunError(err error) *RunError {
	return &RunError{Msg: err.Error(), Cause: err}
}
