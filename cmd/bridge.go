package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/anicoll/sensor-bridge/internal/pkg/config"
	"github.com/anicoll/sensor-bridge/internal/pkg/database"
	"github.com/anicoll/sensor-bridge/internal/pkg/database/migration"
	"github.com/anicoll/sensor-bridge/internal/pkg/history"
	"github.com/anicoll/sensor-bridge/internal/pkg/kafkabus"
	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/anicoll/sensor-bridge/internal/pkg/mqtt"
	"github.com/anicoll/sensor-bridge/internal/pkg/publisher"
	"github.com/anicoll/sensor-bridge/internal/pkg/recorder"
	"github.com/anicoll/sensor-bridge/internal/pkg/redispub"
	"github.com/anicoll/sensor-bridge/internal/pkg/server"
	"github.com/anicoll/sensor-bridge/internal/pkg/state"
	"github.com/anicoll/sensor-bridge/pkg/sockets"
	"go.uber.org/zap"
)

type announcer interface {
	RegisterSensors() error
	Announce(row model.Row) error
}

type latestFunc func(ctx context.Context) (model.Row, bool, error)

// bridge holds everything a reading flows through once it is accepted.
type bridge struct {
	store     *state.Store
	history   *history.Log
	sinks     *publisher.Registry
	recorder  *recorder.Recorder
	hub       *sockets.Hub
	announcer announcer
	closers   []io.Closer
}

func newBridge(ctx context.Context, cfg *config.Config) (*bridge, error) {
	logger := zap.L()

	hist, err := history.Open(cfg.HistoryFile)
	if err != nil {
		return nil, err
	}
	b := &bridge{
		store:   state.New(),
		history: hist,
		sinks:   publisher.New(),
		hub: sockets.New(
			sockets.OnConnected(func(remote string) {
				logger.Info("websocket client connected", zap.String("remote", remote))
			}),
			sockets.OnError(func(err error) {
				logger.Debug("websocket error", zap.Error(err))
			}),
		),
	}
	b.closers = append(b.closers, b.hub)
	latest := []latestFunc{hist.Last}

	if err := b.sinks.Register("websocket", server.NewLiveSink(b.hub)); err != nil {
		return nil, err
	}

	if cfg.DatabaseCfg != nil && cfg.DatabaseCfg.URL != "" {
		if err := migration.Migrate(cfg.DatabaseCfg.URL, cfg.DatabaseCfg.MigrationsFolder); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		db, err := database.New(ctx, cfg.DatabaseCfg.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		b.closers = append(b.closers, db)
		latest = append(latest, db.Latest)
		if err := b.sinks.Register("postgres", db); err != nil {
			b.Close()
			return nil, err
		}
	}

	if cfg.MqttCfg != nil && cfg.MqttCfg.Host != "" {
		hostname, _ := os.Hostname()
		svc := mqtt.New(mqtt.NewClient(cfg.MqttCfg, "sensor-bridge-"+hostname), cfg.DeviceName)
		if err := svc.Connect(); err != nil {
			b.Close()
			return nil, fmt.Errorf("connect mqtt: %w", err)
		}
		b.closers = append(b.closers, svc)
		if err := svc.RegisterSensors(); err != nil {
			b.Close()
			return nil, fmt.Errorf("register mqtt sensors: %w", err)
		}
		b.announcer = svc
		if err := b.sinks.Register("mqtt", svc); err != nil {
			b.Close()
			return nil, err
		}
	}

	if cfg.RedisCfg != nil && cfg.RedisCfg.Addr != "" {
		rdb, err := redispub.NewClient(ctx, cfg.RedisCfg.Addr)
		if err != nil {
			b.Close()
			return nil, err
		}
		pub := redispub.New(rdb, cfg.RedisCfg.Channel)
		b.closers = append(b.closers, pub)
		latest = append(latest, pub.Latest)
		if err := b.sinks.Register("redis", pub); err != nil {
			b.Close()
			return nil, err
		}
	}

	if cfg.KafkaCfg != nil && len(cfg.KafkaCfg.Brokers) > 0 {
		bus := kafkabus.New(cfg.KafkaCfg, cfg.DeviceName)
		b.closers = append(b.closers, bus)
		if err := b.sinks.Register("kafka", bus); err != nil {
			b.Close()
			return nil, err
		}
	}

	hydrate(ctx, b.store, latest...)
	b.recorder = recorder.New(b.store, hist, b.sinks)
	logger.Info("bridge ready",
		zap.String("history_file", hist.Path()),
		zap.Strings("sinks", b.sinks.Names()),
	)
	return b, nil
}

// hydrate seeds the shared record from the first source holding a row.
func hydrate(ctx context.Context, store *state.Store, sources ...latestFunc) {
	for _, latest := range sources {
		row, ok, err := latest(ctx)
		if err != nil {
			zap.L().Warn("failed to read latest row", zap.Error(err))
			continue
		}
		if ok {
			store.Hydrate(row)
			zap.L().Info("restored latest reading",
				zap.Time("timestamp", row.Timestamp),
				zap.Float64("temp", row.Temperature),
				zap.Int("hum", row.Humidity),
				zap.Int("gas", row.Gas),
			)
			return
		}
	}
}

func (b *bridge) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			zap.L().Warn("failed to close", zap.Error(err))
		}
	}
	b.closers = nil
}
