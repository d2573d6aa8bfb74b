package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	SerialCfg   *SerialConfig
	HttpCfg     *HttpConfig
	MqttCfg     *MqttConfig
	RedisCfg    *RedisConfig
	KafkaCfg    *KafkaConfig
	DatabaseCfg *DatabaseConfig
	HistoryFile string
	DeviceName  string
	// cron spec for re-announcing MQTT discovery, empty disables it.
	AnnounceSchedule string
	LogLevel         string
}

type SerialConfig struct {
	Port       string
	BaudRate   int
	StaleAfter time.Duration
	Line       LineFormat
}

type HttpConfig struct {
	Addr   string
	Ingest bool
}

type MqttConfig struct {
	Host     string
	Username string
	Password string
}

type RedisConfig struct {
	Addr    string
	Channel string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type DatabaseConfig struct {
	URL              string
	MigrationsFolder string
}

// LineFormat describes the comma separated layout the sensor writes, e.g. T,23.5,H,45,G,120.
type LineFormat struct {
	Prefix    string `env:"LINE_PREFIX" envDefault:"T"`
	Separator string `env:"LINE_SEPARATOR" envDefault:","`
	TempField int    `env:"LINE_TEMP_FIELD" envDefault:"1"`
	HumField  int    `env:"LINE_HUM_FIELD" envDefault:"3"`
	GasField  int    `env:"LINE_GAS_FIELD" envDefault:"5"`
}

var ErrInvalidLineFormat = errors.New("invalid line format")

// DefaultLineFormat is the layout the sensor firmware ships with.
func DefaultLineFormat() LineFormat {
	return LineFormat{Prefix: "T", Separator: ",", TempField: 1, HumField: 3, GasField: 5}
}

// LoadLineFormat reads the line layout from the environment.
func LoadLineFormat() (LineFormat, error) {
	lf, err := env.ParseAs[LineFormat]()
	if err != nil {
		return LineFormat{}, err
	}
	if err := lf.Validate(); err != nil {
		return LineFormat{}, err
	}
	return lf, nil
}

func (lf LineFormat) Validate() error {
	if lf.Separator == "" {
		return fmt.Errorf("%w: empty separator", ErrInvalidLineFormat)
	}
	if lf.TempField < 0 || lf.HumField < 0 || lf.GasField < 0 {
		return fmt.Errorf("%w: negative field index", ErrInvalidLineFormat)
	}
	if lf.TempField == lf.HumField || lf.TempField == lf.GasField || lf.HumField == lf.GasField {
		return fmt.Errorf("%w: field indices must be distinct", ErrInvalidLineFormat)
	}
	return nil
}

// MaxField is the highest field index a line has to carry.
func (lf LineFormat) MaxField() int {
	return max(lf.TempField, lf.HumField, lf.GasField)
}
