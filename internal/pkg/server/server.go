package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

//go:embed static/sensor.html
var indexPage []byte

// maxIngestBody bounds the size of a pushed payload.
const maxIngestBody = 1 << 20

type store interface {
	Get() (model.Reading, time.Time, bool)
}

type readingRecorder interface {
	Apply(ctx context.Context, fn func(model.Reading) (model.Reading, error)) (model.Row, error)
}

type historyLog interface {
	Last(ctx context.Context) (model.Row, bool, error)
	Points(ctx context.Context) ([]model.HistoryPoint, error)
}

type Options struct {
	// Ingest enables POST /ingest.
	Ingest bool
	// Live, when set, is served on /ws.
	Live http.Handler
}

type server struct {
	store    store
	recorder readingRecorder
	history  historyLog
	opts     Options
	logger   *zap.Logger
}

func New(st store, rec readingRecorder, history historyLog, opts Options) *server {
	return &server{
		store:    st,
		recorder: rec,
		history:  history,
		opts:     opts,
		logger:   zap.L(),
	}
}

// Handler returns the routed handler with logging, CORS and panic recovery applied.
func (s *server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)
	r.HandleFunc("/", s.GetIndex).Methods(http.MethodGet)
	r.HandleFunc("/data", s.GetData).Methods(http.MethodGet)
	r.HandleFunc("/history", s.GetHistory).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.GetHealth).Methods(http.MethodGet)
	if s.opts.Ingest {
		r.HandleFunc("/ingest", s.PostIngest).Methods(http.MethodPost)
	}
	if s.opts.Live != nil {
		r.Handle("/ws", s.opts.Live).Methods(http.MethodGet)
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(cors(r))
}

func (s *server) GetIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}

func (s *server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GetData serves the latest reading, falling back to the last logged row before
// anything has been received since start.
func (s *server) GetData(w http.ResponseWriter, r *http.Request) {
	reading, _, ok := s.store.Get()
	if !ok {
		row, found, err := s.history.Last(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		if found {
			reading = row.Reading
		}
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *server) GetHistory(w http.ResponseWriter, r *http.Request) {
	points, err := s.history.Points(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *server) PostIngest(w http.ResponseWriter, r *http.Request) {
	payload, err := unmarshalPayload[IngestPayload](http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, IngestResponse{Ok: false, Error: err.Error()})
		return
	}

	row, err := s.recorder.Apply(r.Context(), payload.Merge)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidValue) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("ingest rejected", zap.Error(err), zap.Int("status", status))
		writeJSON(w, status, IngestResponse{Ok: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Ok: true, Data: &row.Reading})
}

func handleError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

// unmarshalPayload decodes body into T. An empty body decodes to the zero value,
// malformed JSON is an error rather than an empty payload.
func unmarshalPayload[T any](body io.Reader) (*T, error) {
	var out T
	if err := json.NewDecoder(body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &out, nil
}
