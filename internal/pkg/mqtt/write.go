package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"go.uber.org/zap"
)

const manufacturer = "sensor-bridge"

var errPublishTimeout = errors.New("mqtt publish timed out")

func (s *service) baseTopic() string {
	return fmt.Sprintf("homeassistant/sensor/%s", s.identifier)
}

func (s *service) stateTopic() string {
	return s.baseTopic() + "/state"
}

// RegisterSensors publishes a retained discovery config for every metric.
func (s *service) RegisterSensors() error {
	for _, metric := range model.Metrics {
		topic := fmt.Sprintf("%s/%s/config", s.baseTopic(), metric.Slug)
		payload, err := json.Marshal(s.registerMsg(metric))
		if err != nil {
			return err
		}
		if err := s.publish(topic, 1, true, payload); err != nil {
			return fmt.Errorf("register %s: %w", metric.Slug, err)
		}
		s.logger.Debug("registered sensor", zap.String("device", s.identifier), zap.String("sensor", metric.Slug))
	}
	return nil
}

// Write publishes the row on the state topic unless it repeats the last published reading.
func (s *service) Write(_ context.Context, row model.Row) error {
	if !s.shouldUpdate(row.Reading) {
		return nil
	}
	if err := s.publishState(row, false); err != nil {
		s.mu.Lock()
		s.lastState = nil
		s.mu.Unlock()
		return err
	}
	return nil
}

// Announce re-sends discovery and the given row as retained state.
func (s *service) Announce(row model.Row) error {
	if err := s.RegisterSensors(); err != nil {
		return err
	}
	return s.publishState(row, true)
}

func (s *service) publishState(row model.Row, retained bool) error {
	payload, err := json.Marshal(model.StatePayload{
		Reading:   row.Reading,
		Timestamp: row.Timestamp.Format(model.TimestampLayout),
	})
	if err != nil {
		return err
	}
	return s.publish(s.stateTopic(), 0, retained, payload)
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(time.Second * 10) {
		return fmt.Errorf("%w: %s", errPublishTimeout, topic)
	}
	return token.Error()
}

func (s *service) shouldUpdate(r model.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastState != nil && *s.lastState == r {
		return false
	}
	if s.lastState == nil {
		s.logger.Info("first reading for device", zap.String("device", s.identifier))
	}
	s.lastState = &r
	return true
}

func (s *service) registerMsg(metric model.Metric) model.RegisterMessage {
	return model.RegisterMessage{
		Tilda:             s.baseTopic(),
		Name:              fmt.Sprintf("%s %s", s.deviceName, metric.Name),
		ID:                fmt.Sprintf("%s_%s", s.identifier, metric.Slug),
		StateTopic:        "~/state",
		ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", metric.Key),
		UnitOfMeasurement: metric.Unit,
		DeviceClass:       metric.DeviceClass,
		StateClass:        "measurement",
		Device: model.RegisterDevice{
			Name:         s.deviceName,
			Identifiers:  []string{s.identifier},
			Model:        "environmental sensor",
			Manufacturer: manufacturer,
		},
	}
}
