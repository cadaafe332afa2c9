package mikrotik

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned before any network I/O when no router settings are stored.
var ErrNotConfigured = errors.New("mikrotik: router connection is not configured")

// DeviceError is a !trap reply from the router.
type DeviceError struct {
	Category string
	Message  string
}

func (e *DeviceError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("%s (category %s)", e.Message, e.Category)
	}
	return e.Message
}

// UnavailableError covers connect, login, timeout and rejected-command failures.
// Stale record ids land here too because the device traps on them.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("router unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

func unavailable(op string, err error) error {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}
