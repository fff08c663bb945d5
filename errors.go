package instrumentz

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCategory is returned when a span is opened without a category.
	ErrEmptyCategory = errors.New("event category must not be empty")

	// ErrInvalidToken is returned by a TokenValidator that rejects the token.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrNotRunning is returned by operations that need a running agent.
	ErrNotRunning = errors.New("instrumenter is not running")
)

// ConfigError reports invalid or missing configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// StartupError wraps anything that failed while constructing an Instrumenter.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	return "startup failed: " + e.Err.Error()
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// UsageError reports a span lifecycle violation. It invalidates the current
// trace only.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// panicError converts a recovered value into an error.
func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
