package redispub

import (
	"context"
	"testing"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb, err := NewClient(ctx, addr)
	require.NoError(t, err)
	p := New(rdb, "sensor")
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPublisher_WriteAndLatest(t *testing.T) {
	p := newTestPublisher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, ok, err := p.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	sub := p.rdb.Subscribe(ctx, "sensor")
	defer sub.Close()
	// wait for the subscription to be confirmed before publishing
	_, err = sub.Receive(ctx)
	require.NoError(t, err)
	messages := sub.Channel()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first := model.NewRow(ts, model.Reading{Temperature: 20.5, Humidity: 40, Gas: 100})
	second := model.NewRow(ts.Add(time.Minute), model.Reading{Temperature: 21, Humidity: 41, Gas: 101})
	require.NoError(t, p.Write(ctx, first))
	require.NoError(t, p.Write(ctx, second))

	for _, want := range []model.Row{first, second} {
		select {
		case msg := <-messages:
			row, err := decode([]byte(msg.Payload))
			require.NoError(t, err)
			assert.Equal(t, want.Reading, row.Reading)
			assert.True(t, want.Timestamp.Equal(row.Timestamp))
		case <-ctx.Done():
			t.Fatal("no message published on channel")
		}
	}

	latest, ok, err := p.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.Reading, latest.Reading)
	assert.True(t, second.Timestamp.Equal(latest.Timestamp))
}

func TestPublisher_LatestCorrupt(t *testing.T) {
	p := newTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.rdb.Set(ctx, p.key, "not json", 0).Err())
	_, ok, err := p.Latest(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
}
