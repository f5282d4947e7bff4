package mocks

import (
	"context"

	"github.com/srg/venuesense/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockScanningDevice implements device.ScanningDevice.
//
// Scan expectations usually use Run to push advertisements into the handler:
//
//	dev.On("Scan", mock.Anything, true, mock.Anything).
//	    Run(mocks.EmitAdvertisements(adv1, adv2)).
//	    Return(nil)
type MockScanningDevice struct {
	mock.Mock
}

func (m *MockScanningDevice) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	args := m.Called(ctx, allowDup, handler)
	return args.Error(0)
}

func (m *MockScanningDevice) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// EmitAdvertisements returns a Run func that delivers advs to the Scan handler
// and then blocks until the scan context is done.
func EmitAdvertisements(advs ...device.Advertisement) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		handler := args.Get(2).(func(device.Advertisement))
		for _, adv := range advs {
			handler(adv)
		}
		<-ctx.Done()
	}
}

// EmitAdvertisementsAndReturn delivers advs and returns immediately, for
// scans that end with a platform error.
func EmitAdvertisementsAndReturn(advs ...device.Advertisement) func(mock.Arguments) {
	return func(args mock.Arguments) {
		handler := args.Get(2).(func(device.Advertisement))
		for _, adv := range advs {
			handler(adv)
		}
	}
}

// Advertisement is a plain device.Advertisement value for tests.
type Advertisement struct {
	Name    string
	Address string
	Rssi    int
	MfgData []byte
}

func (a *Advertisement) LocalName() string        { return a.Name }
func (a *Advertisement) ManufacturerData() []byte { return a.MfgData }
func (a *Advertisement) RSSI() int                { return a.Rssi }
func (a *Advertisement) Addr() string             { return a.Address }

// MockPermissions implements device.PermissionChecker.
type MockPermissions struct {
	mock.Mock
}

func (m *MockPermissions) Granted(p device.Permission) bool {
	args := m.Called(p)
	return args.Bool(0)
}
