package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/venuesense/internal/device"
)

// genericScanFailureCode is reported when the stack gives no numeric status.
const genericScanFailureCode = 1

// NormalizeError maps known go-ble error strings to the device error taxonomy.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
//
// Anything that is neither a cancellation nor an availability problem is a
// hard scan failure and comes back as *device.PlatformScanError.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var scanErr *device.PlatformScanError
	if errors.As(err, &scanErr) {
		return err
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "have=3"), containsIgnoreCase(msg, "unauthorized"):
		// CoreBluetooth state 3 is "unauthorized"
		return fmt.Errorf("%w: %v", device.ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "have=2"), containsIgnoreCase(msg, "unsupported"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}

	if normalized := device.NormalizeError(err); device.IsUnavailable(normalized) {
		return normalized
	}

	return &device.PlatformScanError{Code: scanErrorCode(err), Err: err}
}

// scanErrorCode extracts a numeric status when the error exposes one
func scanErrorCode(err error) int {
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code() != 0 {
		return coded.Code()
	}
	return genericScanFailureCode
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
