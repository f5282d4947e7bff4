package mocks

import (
	"context"

	"github.com/srg/venuesense/geofence"
	"github.com/stretchr/testify/mock"
)

// MockLocationService implements geofence.LocationService.
type MockLocationService struct {
	mock.Mock
}

func (m *MockLocationService) AddGeofences(ctx context.Context, requests []geofence.Request) error {
	return m.Called(ctx, requests).Error(0)
}

func (m *MockLocationService) RemoveGeofences(ctx context.Context, venueIDs []string) error {
	return m.Called(ctx, venueIDs).Error(0)
}

func (m *MockLocationService) LastKnownLocation(ctx context.Context) (geofence.Location, error) {
	args := m.Called(ctx)
	loc, _ := args.Get(0).(geofence.Location)
	return loc, args.Error(1)
}
