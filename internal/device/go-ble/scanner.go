package goble

import (
	"context"
	"fmt"

	ble "github.com/go-ble/ble"
	"github.com/go-ble/ble/examples/lib/dev"
	"github.com/srg/venuesense/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return dev.DefaultDevice()
}

// bleScanner wraps ble.Device to implement a device.ScanningDevice interface
type bleScanner struct {
	dev ble.Device
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (s *bleScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	// Adapter: convert a handler expecting a device.Advertisement to the one expecting ble.Advertisement
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	err := s.dev.Scan(ctx, allowDup, bleHandler)
	if err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Stop releases the platform scan handle
func (s *bleScanner) Stop() error {
	return NormalizeError(s.dev.Stop())
}

// NewScanner creates a device.ScanningDevice instance for BLE scanning operations.
func NewScanner() (device.ScanningDevice, error) {
	d, err := DeviceFactory()
	if err != nil {
		// A radio that cannot be opened is reported as unavailable hardware.
		if normalized := NormalizeError(err); device.IsUnavailable(normalized) {
			return nil, normalized
		}
		return nil, fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}
	return &bleScanner{dev: d}, nil
}
