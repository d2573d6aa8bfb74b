package main

import (
	"log"
	"os"
	"time"

	"github.com/anicoll/sensor-bridge/cmd"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "sensor-bridge",
		Usage:  "bridge an environmental sensor from serial or HTTP to a CSV log and web page",
		Action: cmd.BridgeCommand,
		Commands: []*cli.Command{
			{
				Name:   "list-ports",
				Usage:  "list serial ports available on this machine",
				Action: cmd.ListPortsCommand,
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "serial-port",
				EnvVars: []string{"SERIAL_PORT"},
				Usage:   "serial device, e.g. COM1 or /dev/ttyUSB0. Empty disables the serial reader",
				Value:   "",
			},
			&cli.IntFlag{
				Name:    "serial-baud",
				EnvVars: []string{"SERIAL_BAUD"},
				Value:   2400,
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				EnvVars: []string{"STALE_AFTER"},
				Usage:   "reopen the serial port when no line arrives for this long, 0 disables",
				Value:   30 * time.Second,
			},
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"HTTP_ADDR"},
				Value:   "0.0.0.0:5000",
			},
			&cli.BoolFlag{
				Name:    "ingest",
				EnvVars: []string{"INGEST"},
				Usage:   "accept readings on POST /ingest",
				Value:   true,
			},
			&cli.StringFlag{
				Name:    "history-file",
				EnvVars: []string{"HISTORY_FILE"},
				Value:   "sensor_data.csv",
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "migrations-folder",
				EnvVars: []string{"MIGRATIONS_FOLDER"},
				Value:   "migrations",
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				EnvVars: []string{"REDIS_ADDR"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "redis-channel",
				EnvVars: []string{"REDIS_CHANNEL"},
				Value:   "sensor",
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				EnvVars: []string{"KAFKA_BROKERS"},
			},
			&cli.StringFlag{
				Name:    "kafka-topic",
				EnvVars: []string{"KAFKA_TOPIC"},
				Value:   "sensor-readings",
			},
			&cli.StringFlag{
				Name:    "device-name",
				EnvVars: []string{"DEVICE_NAME"},
				Value:   "Environment Sensor",
			},
			&cli.StringFlag{
				Name:    "announce-schedule",
				EnvVars: []string{"ANNOUNCE_SCHEDULE"},
				Usage:   "cron spec for republishing MQTT discovery, empty disables it",
				Value:   "@every 5m",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
