package cmd

import (
	"context"
)

// SensorService defines the interface that cmd.run expects from the serial reader.
type SensorService interface {
	Connect(ctx context.Context) error
	SubscribeToTimeout() chan error
	Close() error
}
