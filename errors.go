package ccac

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is wrapped by every *ConfigError.
	ErrConfiguration = errors.New("ccac: invalid configuration")

	// ErrPeriod is returned by MakePeriodic for a duration outside [1, T).
	ErrPeriod = errors.New("ccac: period duration out of range")
)

// ConfigError names the configuration field that failed a check. Model
// construction fails with one of these before any constraint is added.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ccac: config field %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func configErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
