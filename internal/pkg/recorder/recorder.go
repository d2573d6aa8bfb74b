package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/anicoll/sensor-bridge/internal/pkg/state"
	"go.uber.org/zap"
)

type historyLog interface {
	Append(ctx context.Context, row model.Row) error
}

type sinks interface {
	Publish(ctx context.Context, row model.Row) int
}

// Recorder is the single path through which a reading is accepted: the shared
// record is updated, a history row appended and the row handed to every sink.
type Recorder struct {
	mu      sync.Mutex
	store   *state.Store
	history historyLog
	sinks   sinks
	now     func() time.Time
	logger  *zap.Logger
}

func New(store *state.Store, history historyLog, sinks sinks) *Recorder {
	return &Recorder{
		store:   store,
		history: history,
		sinks:   sinks,
		now:     time.Now,
		logger:  zap.L(),
	}
}

// Record accepts reading as a whole.
func (r *Recorder) Record(ctx context.Context, reading model.Reading) (model.Row, error) {
	return r.Apply(ctx, func(model.Reading) (model.Reading, error) {
		return reading, nil
	})
}

// Apply derives the next reading from the current one. When fn fails nothing is
// recorded. A history append failure is returned after the shared record has
// already moved on, sinks are skipped in that case.
func (r *Recorder) Apply(ctx context.Context, fn func(model.Reading) (model.Reading, error)) (model.Row, error) {
	r.mu.Lock()
	at := r.now()
	reading, err := r.store.Update(at, fn)
	if err != nil {
		r.mu.Unlock()
		return model.Row{}, err
	}
	row := model.NewRow(at, reading)
	if err := r.history.Append(ctx, row); err != nil {
		r.mu.Unlock()
		r.logger.Error("failed to append history row", zap.Error(err))
		return row, fmt.Errorf("append history: %w", err)
	}
	r.mu.Unlock()

	if r.sinks != nil {
		r.sinks.Publish(ctx, row)
	}
	r.logger.Debug("recorded reading",
		zap.Float64("temp", reading.Temperature),
		zap.Int("hum", reading.Humidity),
		zap.Int("gas", reading.Gas),
	)
	return row, nil
}
