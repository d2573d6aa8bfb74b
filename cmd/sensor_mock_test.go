package cmd

import (
	"context"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
)

// MockSensorService is a mock implementation of SensorService for testing.
type MockSensorService struct {
	ConnectFunc            func(ctx context.Context) error
	SubscribeToTimeoutFunc func() chan error
	CloseFunc              func() error
}

func (m *MockSensorService) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

func (m *MockSensorService) SubscribeToTimeout() chan error {
	if m.SubscribeToTimeoutFunc != nil {
		return m.SubscribeToTimeoutFunc()
	}
	return nil
}

func (m *MockSensorService) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

type MockAnnouncer struct {
	RegisterSensorsFunc func() error
	AnnounceFunc        func(row model.Row) error
}

func (m *MockAnnouncer) RegisterSensors() error {
	if m.RegisterSensorsFunc != nil {
		return m.RegisterSensorsFunc()
	}
	return nil
}

func (m *MockAnnouncer) Announce(row model.Row) error {
	if m.AnnounceFunc != nil {
		return m.AnnounceFunc(row)
	}
	return nil
}
