package device

import (
	"context"
)

// ScanningDevice represents a BLE radio capable of scanning for advertisements.
//
// Scan blocks until ctx is done or the platform reports a failure. Stop releases
// the platform scan handle; it must be safe to call after Scan has returned.
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
	Stop() error
}

// Advertisement is a single received advertising frame.
type Advertisement interface {
	LocalName() string
	// ManufacturerData returns the vendor-specific data including the
	// little-endian company identifier in the first two bytes.
	ManufacturerData() []byte
	RSSI() int
	Addr() string
}

// Permission names a runtime capability the host must grant before the
// corresponding platform API may be used.
type Permission string

const (
	PermissionBluetoothScan      Permission = "bluetooth_scan"
	PermissionFineLocation       Permission = "fine_location"
	PermissionBackgroundLocation Permission = "background_location"
)

// PermissionChecker reports whether a permission is currently granted.
//
// Hosts resolve OS-level differences (e.g. which concrete permission backs
// PermissionBluetoothScan on a given OS release) behind this interface.
type PermissionChecker interface {
	Granted(p Permission) bool
}

// RadioState reports BLE hardware availability.
type RadioState interface {
	Present() bool
	Enabled() bool
}

// PermissionSet is a static PermissionChecker.
type PermissionSet map[Permission]bool

// Granted implements PermissionChecker
func (ps PermissionSet) Granted(p Permission) bool {
	return ps[p]
}

// AllPermissions grants everything; used by hosts without a permission model.
func AllPermissions() PermissionSet {
	return PermissionSet{
		PermissionBluetoothScan:      true,
		PermissionFineLocation:       true,
		PermissionBackgroundLocation: true,
	}
}

// StaticRadio is a RadioState with fixed answers.
type StaticRadio struct {
	IsPresent bool
	IsEnabled bool
}

func (r StaticRadio) Present() bool { return r.IsPresent }
func (r StaticRadio) Enabled() bool { return r.IsEnabled }

// RadioOn is a present and enabled radio.
var RadioOn RadioState = StaticRadio{IsPresent: true, IsEnabled: true}
