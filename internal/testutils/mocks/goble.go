package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockBLEDevice mocks the scan surface of ble.Device. Methods not overridden
// here panic through the nil embedded interface; tests only scan.
type MockBLEDevice struct {
	ble.Device
	mock.Mock
}

func (m *MockBLEDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *MockBLEDevice) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// MockBLEAdvertisement mocks the parts of ble.Advertisement the adapter reads.
type MockBLEAdvertisement struct {
	ble.Advertisement
	mock.Mock
}

func (m *MockBLEAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockBLEAdvertisement) ManufacturerData() []byte {
	args := m.Called()
	if b, ok := args.Get(0).([]byte); ok {
		return b
	}
	return nil
}

func (m *MockBLEAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockBLEAdvertisement) Addr() ble.Addr {
	args := m.Called()
	if a, ok := args.Get(0).(ble.Addr); ok {
		return a
	}
	return nil
}

// MockAddr implements ble.Addr
type MockAddr struct {
	mock.Mock
}

func (m *MockAddr) String() string {
	return m.Called().String(0)
}
