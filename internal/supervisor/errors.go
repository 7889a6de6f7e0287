package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes supervisor errors.
type ErrorCode string

const (
	// ErrCodeConfigMissing indicates required artifacts are absent.
	ErrCodeConfigMissing ErrorCode = "CONFIG_MISSING"
)

// ConfigError reports every required artifact Prepare could not find.
// It is fatal to Prepare and Start; the supervisor stays Stopped.
type ConfigError struct {
	Code ErrorCode
	// Missing has one "<what>: <path>" entry per absent artifact.
	Missing []string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing required artifacts: %s", e.Code, strings.Join(e.Missing, "; "))
}

// IsConfigError returns true if err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// errBusy is returned by Prepare while an engine run is in progress.
var errBusy = errors.New("engine is not stopped")

// errProcessExited is returned when signalling a process that already exited.
var errProcessExited = errors.New("process already exited")
