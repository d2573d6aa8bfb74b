package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/history"
	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/anicoll/sensor-bridge/internal/pkg/recorder"
	"github.com/anicoll/sensor-bridge/internal/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type testBridge struct {
	store   *state.Store
	history *history.Log
	handler http.Handler
}

func newTestBridge(t *testing.T, opts Options) *testBridge {
	t.Helper()
	original := zap.L()
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(func() { zap.ReplaceGlobals(original) })

	h, err := history.Open(filepath.Join(t.TempDir(), "sensor_data.csv"))
	require.NoError(t, err)
	st := state.New()
	rec := recorder.New(st, h, nil)
	return &testBridge{
		store:   st,
		history: h,
		handler: New(st, rec, h, opts).Handler(),
	}
}

func (b *testBridge) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	return rec
}

func TestGetData_Initial(t *testing.T) {
	b := newTestBridge(t, Options{})
	res := b.do(http.MethodGet, "/data", "")

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"temp":0,"hum":0,"gas":0}`, res.Body.String())
}

func TestGetData_FallsBackToLastRow(t *testing.T) {
	b := newTestBridge(t, Options{})
	require.NoError(t, b.history.Append(context.Background(), model.NewRow(time.Now(), model.Reading{Temperature: 18.5, Humidity: 70, Gas: 50})))

	res := b.do(http.MethodGet, "/data", "")
	assert.JSONEq(t, `{"temp":18.5,"hum":70,"gas":50}`, res.Body.String())

	b.store.Set(model.Reading{Temperature: 30, Humidity: 20, Gas: 10}, time.Now())
	res = b.do(http.MethodGet, "/data", "")
	assert.JSONEq(t, `{"temp":30,"hum":20,"gas":10}`, res.Body.String())
}

func TestPostIngest(t *testing.T) {
	tests := map[string]struct {
		body       string
		wantStatus int
		wantData   string
	}{
		"all fields": {
			body:       `{"temp":23.5,"hum":45,"gas":120}`,
			wantStatus: http.StatusOK,
			wantData:   `{"temp":23.5,"hum":45,"gas":120}`,
		},
		"partial keeps current": {
			body:       `{"gas":300}`,
			wantStatus: http.StatusOK,
			wantData:   `{"temp":20,"hum":40,"gas":300}`,
		},
		"numeric strings": {
			body:       `{"temp":"21.25","hum":" 55 ","gas":"7"}`,
			wantStatus: http.StatusOK,
			wantData:   `{"temp":21.25,"hum":55,"gas":7}`,
		},
		"float humidity truncated": {
			body:       `{"hum":45.9,"gas":-3.7}`,
			wantStatus: http.StatusOK,
			wantData:   `{"temp":20,"hum":45,"gas":-3}`,
		},
		"empty body keeps current": {
			body:       ``,
			wantStatus: http.StatusOK,
			wantData:   `{"temp":20,"hum":40,"gas":100}`,
		},
		"decimal string humidity rejected": {
			body:       `{"temp":30,"hum":"45.5"}`,
			wantStatus: http.StatusBadRequest,
		},
		"null rejected": {
			body:       `{"temp":null}`,
			wantStatus: http.StatusBadRequest,
		},
		"bool rejected": {
			body:       `{"gas":true}`,
			wantStatus: http.StatusBadRequest,
		},
		"malformed json is rejected, not read as an empty payload": {
			body:       `{"temp":`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			b := newTestBridge(t, Options{Ingest: true})
			b.store.Set(model.Reading{Temperature: 20, Humidity: 40, Gas: 100}, time.Now())

			res := b.do(http.MethodPost, "/ingest", tt.body)
			assert.Equal(t, tt.wantStatus, res.Code, res.Body.String())

			rows, err := b.history.Rows(context.Background())
			require.NoError(t, err)
			current, _, _ := b.store.Get()

			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, res.Body.String(), `"ok":false`)
				assert.Contains(t, res.Body.String(), `"error":`)
				assert.Empty(t, rows)
				assert.Equal(t, model.Reading{Temperature: 20, Humidity: 40, Gas: 100}, current)
				return
			}
			assert.JSONEq(t, `{"ok":true,"data":`+tt.wantData+`}`, res.Body.String())
			require.Len(t, rows, 1)
			assert.Equal(t, current, rows[0].Reading)
		})
	}
}

func TestPostIngest_Disabled(t *testing.T) {
	b := newTestBridge(t, Options{Ingest: false})
	res := b.do(http.MethodPost, "/ingest", `{"temp":1}`)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestGetHistory(t *testing.T) {
	b := newTestBridge(t, Options{Ingest: true})

	res := b.do(http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[]`, res.Body.String())

	require.Equal(t, http.StatusOK, b.do(http.MethodPost, "/ingest", `{"temp":20,"hum":40,"gas":100}`).Code)
	require.Equal(t, http.StatusOK, b.do(http.MethodPost, "/ingest", `{"temp":21}`).Code)

	res = b.do(http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, `"temp":20,"hum":40,"gas":100`)
	assert.Contains(t, body, `"temp":21,"hum":40,"gas":100`)
	assert.Equal(t, 2, strings.Count(body, `"x":`))
}

func TestGetHistory_SkipsNonFiniteRows(t *testing.T) {
	b := newTestBridge(t, Options{})
	content := "timestamp,temp,hum,gas\n" +
		"2024-05-01T10:00:00.000000Z,NaN,30,100\n" +
		"2024-05-01T10:00:01.000000Z,22,31,101\n"
	require.NoError(t, os.WriteFile(b.history.Path(), []byte(content), 0o644))

	res := b.do(http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[{"x":"2024-05-01T10:00:01.000000Z","temp":22,"hum":31,"gas":101}]`, res.Body.String())

	res = b.do(http.MethodGet, "/data", "")
	assert.JSONEq(t, `{"temp":22,"hum":31,"gas":101}`, res.Body.String())
}

type MockHistory struct {
	LastFunc   func(ctx context.Context) (model.Row, bool, error)
	PointsFunc func(ctx context.Context) ([]model.HistoryPoint, error)
}

func (m *MockHistory) Last(ctx context.Context) (model.Row, bool, error) { return m.LastFunc(ctx) }
func (m *MockHistory) Points(ctx context.Context) ([]model.HistoryPoint, error) {
	return m.PointsFunc(ctx)
}

type MockRecorder struct {
	ApplyFunc func(ctx context.Context, fn func(model.Reading) (model.Reading, error)) (model.Row, error)
}

func (m *MockRecorder) Apply(ctx context.Context, fn func(model.Reading) (model.Reading, error)) (model.Row, error) {
	return m.ApplyFunc(ctx, fn)
}

func TestErrors(t *testing.T) {
	failing := &MockHistory{
		LastFunc:   func(context.Context) (model.Row, bool, error) { return model.Row{}, false, errors.New("read failed") },
		PointsFunc: func(context.Context) ([]model.HistoryPoint, error) { return nil, errors.New("read failed") },
	}
	rec := &MockRecorder{ApplyFunc: func(context.Context, func(model.Reading) (model.Reading, error)) (model.Row, error) {
		return model.Row{}, errors.New("append history: disk full")
	}}
	s := New(state.New(), rec, failing, Options{Ingest: true})
	s.logger = zaptest.NewLogger(t)
	h := s.Handler()

	for _, path := range []string{"/data", "/history"} {
		res := httptest.NewRecorder()
		h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, res.Code, path)
		assert.Equal(t, "read failed", res.Body.String())
	}

	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"temp":1}`)))
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.JSONEq(t, `{"ok":false,"error":"append history: disk full"}`, res.Body.String())
}

func TestGetIndex(t *testing.T) {
	b := newTestBridge(t, Options{})
	res := b.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/html; charset=utf-8", res.Header().Get("Content-Type"))
	assert.Contains(t, res.Body.String(), "<title>Sensor</title>")
}

func TestGetHealth(t *testing.T) {
	b := newTestBridge(t, Options{})
	res := b.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "ok", res.Body.String())
}

func TestCORS(t *testing.T) {
	b := newTestBridge(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	res := httptest.NewRecorder()
	b.handler.ServeHTTP(res, req)
	assert.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
}

type mockHub struct {
	msgs [][]byte
}

func (m *mockHub) Broadcast(msg []byte) { m.msgs = append(m.msgs, msg) }

func TestLiveSink(t *testing.T) {
	hub := &mockHub{}
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, NewLiveSink(hub).Write(context.Background(), model.NewRow(ts, model.Reading{Temperature: 22, Humidity: 41, Gas: 99})))

	require.Len(t, hub.msgs, 1)
	assert.JSONEq(t, `{"x":"2024-05-01T10:00:00.000000Z","temp":22,"hum":41,"gas":99}`, string(hub.msgs[0]))
}
