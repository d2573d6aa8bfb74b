package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/config"
	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/anicoll/sensor-bridge/internal/pkg/sensor"
	"github.com/anicoll/sensor-bridge/internal/pkg/server"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	reconnectDelay  = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

func BridgeCommand(ctx *cli.Context) error {
	line, err := config.LoadLineFormat()
	if err != nil {
		return err
	}
	cfg := &config.Config{
		SerialCfg: &config.SerialConfig{
			Port:       ctx.String("serial-port"),
			BaudRate:   ctx.Int("serial-baud"),
			StaleAfter: ctx.Duration("stale-after"),
			Line:       line,
		},
		HttpCfg: &config.HttpConfig{
			Addr:   ctx.String("http-addr"),
			Ingest: ctx.Bool("ingest"),
		},
		MqttCfg: &config.MqttConfig{
			Host:     ctx.String("mqtt-host"),
			Username: ctx.String("mqtt-user"),
			Password: ctx.String("mqtt-pass"),
		},
		RedisCfg: &config.RedisConfig{
			Addr:    ctx.String("redis-addr"),
			Channel: ctx.String("redis-channel"),
		},
		KafkaCfg: &config.KafkaConfig{
			Brokers: ctx.StringSlice("kafka-brokers"),
			Topic:   ctx.String("kafka-topic"),
		},
		DatabaseCfg: &config.DatabaseConfig{
			URL:              ctx.String("database-url"),
			MigrationsFolder: ctx.String("migrations-folder"),
		},
		HistoryFile:      ctx.String("history-file"),
		DeviceName:       ctx.String("device-name"),
		AnnounceSchedule: ctx.String("announce-schedule"),
		LogLevel:         ctx.String("log-level"),
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	b, err := newBridge(ctx.Context, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	errorChan := make(chan error, 1000)
	var sensorSvc SensorService
	if cfg.SerialCfg.Port != "" {
		sensorSvc = sensor.New(cfg.SerialCfg, b.recorder, errorChan)
	} else {
		logger.Info("no serial port configured, serial reader disabled")
	}

	return run(ctx.Context, cfg, sensorSvc, errorChan, logger, b)
}

// ListPortsCommand prints the serial ports the OS reports.
func ListPortsCommand(ctx *cli.Context) error {
	ports, err := sensor.ListPorts()
	if err != nil {
		return err
	}
	for _, p := range ports {
		if _, err := fmt.Fprintln(ctx.App.Writer, p); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, sensorSvc SensorService, errorChan chan error, logger *zap.Logger, b *bridge) error {
	eg, ctx := errgroup.WithContext(ctx)

	if sensorSvc != nil {
		eg.Go(func() error {
			return serialLoop(ctx, sensorSvc, logger)
		})
	}

	if b != nil && cfg.HttpCfg != nil {
		srv := &http.Server{
			Handler: server.New(b.store, b.recorder, b.history, server.Options{
				Ingest: cfg.HttpCfg.Ingest,
				Live:   b.hub,
			}).Handler(),
			Addr:         cfg.HttpCfg.Addr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}

		eg.Go(func() error {
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		eg.Go(func() error {
			<-ctx.Done()
			// websocket connections are hijacked and not closed by Shutdown.
			_ = b.hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if b != nil && b.announcer != nil && cfg.AnnounceSchedule != "" {
		eg.Go(func() error {
			return cronAnnounce(ctx, cfg.AnnounceSchedule, b, logger)
		})
	}

	eg.Go(func() error {
		// handle any async errors from the reader
		for {
			select {
			case err, ok := <-errorChan:
				if !ok {
					errorChan = nil
					continue
				}
				logger.Error("async error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

// serialLoop keeps the reader connected. Only the first connect failure is fatal.
func serialLoop(ctx context.Context, svc SensorService, logger *zap.Logger) error {
	if err := svc.Connect(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return svc.Close()
		case err := <-svc.SubscribeToTimeout():
			if !errors.Is(err, sensor.ErrTimeout) && !errors.Is(err, sensor.ErrDisconnected) {
				_ = svc.Close()
				return err
			}
			logger.Error("serial connection lost", zap.Error(err))
		}

		for {
			_ = svc.Close()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectDelay):
			}
			err := svc.Connect(ctx)
			if err == nil {
				logger.Info("serial reader reconnected")
				break
			}
			logger.Warn("serial reconnect failed", zap.Error(err))
		}
	}
}

func cronAnnounce(ctx context.Context, schedule string, b *bridge, logger *zap.Logger) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		reading, at, ok := b.store.Get()
		var err error
		if ok {
			err = b.announcer.Announce(model.NewRow(at, reading))
		} else {
			err = b.announcer.RegisterSensors()
		}
		if err != nil {
			logger.Error("failed to announce sensor", zap.Error(err))
			return
		}
		logger.Debug("announced sensor")
	}); err != nil {
		return fmt.Errorf("announce schedule %q: %w", schedule, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
