package server

import (
	"context"
	"encoding/json"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
)

type broadcaster interface {
	Broadcast(msg []byte)
}

// LiveSink pushes every accepted row to websocket clients.
type LiveSink struct {
	hub broadcaster
}

func NewLiveSink(hub broadcaster) *LiveSink {
	return &LiveSink{hub: hub}
}

func (l *LiveSink) Write(_ context.Context, row model.Row) error {
	msg, err := json.Marshal(row.Point())
	if err != nil {
		return err
	}
	l.hub.Broadcast(msg)
	return nil
}
