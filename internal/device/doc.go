// Package device describes the platform BLE surface the presence subsystem
// depends on, independent of any concrete Bluetooth stack.
//
// This package provides:
//   - ScanningDevice and Advertisement, the minimal scan contract
//   - PermissionChecker and RadioState, injected host capabilities
//   - The availability / scan-failure error taxonomy and NormalizeError
//
// The go-ble backed implementation lives in the go-ble subpackage.
package device
