package device

import (
	"errors"
	"fmt"
	"strings"
)

// AvailabilityState represents why a platform capability cannot be used
type AvailabilityState string

const (
	HardwareUnavailable AvailabilityState = "hardware_unavailable"
	PermissionDenied    AvailabilityState = "permission_denied"
)

// AvailabilityError reports that scanning cannot start or continue because
// the radio or the permission is missing.
type AvailabilityError struct {
	State AvailabilityState
	Msg   string
}

// Error implements the error interface
func (e *AvailabilityError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare AvailabilityError values by State
func (e *AvailabilityError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*AvailabilityError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for availability states
var (
	ErrBluetoothOff     = &AvailabilityError{State: HardwareUnavailable, Msg: "bluetooth is turned off"}
	ErrPermissionDenied = &AvailabilityError{State: PermissionDenied, Msg: "permission denied"}
)

// ErrScanFailed matches any PlatformScanError via errors.Is.
var ErrScanFailed = errors.New("platform scan failed")

// PlatformScanError is a hard failure reported by the platform scanner
// (a nonzero scan error code).
type PlatformScanError struct {
	Code int
	Err  error
}

func (e *PlatformScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (code %d): %v", ErrScanFailed, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (code %d)", ErrScanFailed, e.Code)
}

func (e *PlatformScanError) Is(target error) bool {
	return target == ErrScanFailed
}

func (e *PlatformScanError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err means "no signal" rather than a failure:
// missing hardware or missing permission.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBluetoothOff) || errors.Is(err, ErrPermissionDenied)
}

// NormalizeError maps well-known platform error strings to the typed errors above.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "is Bluetooth turned on"),
		containsIgnoreCase(msg, "no such device"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "operation not permitted"),
		containsIgnoreCase(msg, "not authorized"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
