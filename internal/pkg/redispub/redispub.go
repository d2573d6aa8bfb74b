package redispub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher keeps the latest reading under a key and announces every row on a channel.
type Publisher struct {
	rdb     *redis.Client
	channel string
	key     string
	logger  *zap.Logger
}

func New(rdb *redis.Client, channel string) *Publisher {
	return &Publisher{
		rdb:     rdb,
		channel: channel,
		key:     channel + ":latest",
		logger:  zap.L(),
	}
}

// NewClient connects to addr and checks the server answers.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
		Protocol: 2,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func encode(row model.Row) ([]byte, error) {
	return json.Marshal(model.StatePayload{
		Reading:   row.Reading,
		Timestamp: row.Timestamp.Format(model.TimestampLayout),
	})
}

func (p *Publisher) Write(ctx context.Context, row model.Row) error {
	payload, err := encode(row)
	if err != nil {
		return err
	}
	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, p.key, payload, 0)
	pipe.Publish(ctx, p.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	p.logger.Debug("published reading to redis", zap.String("channel", p.channel))
	return nil
}

// Latest returns the row stored by the last Write, false if none was stored.
func (p *Publisher) Latest(ctx context.Context) (model.Row, bool, error) {
	data, err := p.rdb.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Row{}, false, nil
	}
	if err != nil {
		return model.Row{}, false, err
	}
	row, err := decode(data)
	if err != nil {
		return model.Row{}, false, err
	}
	return row, true, nil
}

func decode(data []byte) (model.Row, error) {
	var payload model.StatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return model.Row{}, err
	}
	ts, err := time.Parse(model.TimestampLayout, payload.Timestamp)
	if err != nil {
		return model.Row{}, fmt.Errorf("latest timestamp: %w", err)
	}
	return model.NewRow(ts, payload.Reading), nil
}

func (p *Publisher) Close() error {
	return p.rdb.Close()
}
