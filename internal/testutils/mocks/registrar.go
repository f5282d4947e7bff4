package mocks

import (
	"context"

	"github.com/srg/venuesense/venue"
	"github.com/stretchr/testify/mock"
)

// MockRegistrar implements presence.Registrar.
type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, registry *venue.Registry, ids ...string) error {
	return m.Called(ctx, registry, ids).Error(0)
}

func (m *MockRegistrar) Unregister(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// InitialTransitions runs the expectation's Run func, which may call back into the engine.
func (m *MockRegistrar) InitialTransitions(ctx context.Context, registry *venue.Registry) {
	m.Called(ctx, registry)
}
