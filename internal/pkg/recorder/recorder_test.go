package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/anicoll/sensor-bridge/internal/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockHistory struct {
	AppendFunc func(ctx context.Context, row model.Row) error
	rows       []model.Row
}

func (m *MockHistory) Append(ctx context.Context, row model.Row) error {
	if m.AppendFunc != nil {
		if err := m.AppendFunc(ctx, row); err != nil {
			return err
		}
	}
	m.rows = append(m.rows, row)
	return nil
}

type MockSinks struct {
	rows []model.Row
}

func (m *MockSinks) Publish(_ context.Context, row model.Row) int {
	m.rows = append(m.rows, row)
	return 1
}

func newTestRecorder(h *MockHistory, s *MockSinks) (*Recorder, *state.Store) {
	store := state.New()
	r := New(store, h, s)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	return r, store
}

func TestRecord(t *testing.T) {
	h, s := &MockHistory{}, &MockSinks{}
	r, store := newTestRecorder(h, s)

	row, err := r.Record(context.Background(), model.Reading{Temperature: 23.5, Humidity: 45, Gas: 120})
	require.NoError(t, err)

	want := model.NewRow(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), model.Reading{Temperature: 23.5, Humidity: 45, Gas: 120})
	assert.Equal(t, want, row)
	assert.Equal(t, []model.Row{want}, h.rows)
	assert.Equal(t, []model.Row{want}, s.rows)

	current, _, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, want.Reading, current)
}

func TestApply_RejectedLeavesEverythingUntouched(t *testing.T) {
	h, s := &MockHistory{}, &MockSinks{}
	r, store := newTestRecorder(h, s)

	_, err := r.Apply(context.Background(), func(model.Reading) (model.Reading, error) {
		return model.Reading{}, errors.New("bad value")
	})
	assert.Error(t, err)
	assert.Empty(t, h.rows)
	assert.Empty(t, s.rows)
	_, _, ok := store.Get()
	assert.False(t, ok)
}

func TestApply_HistoryFailureSkipsSinks(t *testing.T) {
	h := &MockHistory{AppendFunc: func(context.Context, model.Row) error { return errors.New("disk full") }}
	s := &MockSinks{}
	r, store := newTestRecorder(h, s)

	_, err := r.Record(context.Background(), model.Reading{Temperature: 1})
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, s.rows)

	current, _, _ := store.Get()
	assert.Equal(t, 1.0, current.Temperature)
}

func TestApply_MergesWithCurrent(t *testing.T) {
	r, _ := newTestRecorder(&MockHistory{}, &MockSinks{})
	_, err := r.Record(context.Background(), model.Reading{Temperature: 20, Humidity: 40, Gas: 100})
	require.NoError(t, err)

	row, err := r.Apply(context.Background(), func(cur model.Reading) (model.Reading, error) {
		cur.Gas = 150
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.Reading{Temperature: 20, Humidity: 40, Gas: 150}, row.Reading)
}
