package mqtt

import (
	"errors"
	"sync"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/config"
	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

type service struct {
	client     paho_mqtt.Client
	deviceName string
	identifier string
	logger     *zap.Logger
	mu         sync.Mutex
	lastState  *model.Reading
}

func New(client paho_mqtt.Client, deviceName string) *service {
	return &service{
		client:     client,
		deviceName: deviceName,
		identifier: slug.Make(deviceName),
		logger:     zap.L(),
	}
}

// NewClient builds a paho client for cfg.
func NewClient(cfg *config.MqttConfig, clientID string) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

func (s *service) Close() error {
	s.client.Disconnect(250)
	return nil
}
