package sensor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/config"
	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"go.uber.org/zap"
)

var (
	ErrConnect      = errors.New("unable to open serial port")
	ErrDisconnected = errors.New("serial port disconnected")
	ErrTimeout      = errors.New("no sensor output received in time")
)

// maxLineLength caps how much unterminated output is buffered before it is dropped.
const maxLineLength = 1024

type recorder interface {
	Record(ctx context.Context, reading model.Reading) (model.Row, error)
}

type service struct {
	cfg         *config.SerialConfig
	open        OpenFunc
	recorder    recorder
	errChan     chan error
	logger      *zap.Logger
	mu          sync.Mutex
	port        Port
	cancel      context.CancelFunc
	timeoutChan chan error
	lastLine    atomic.Int64
}

func New(cfg *config.SerialConfig, rec recorder, errChan chan error) *service {
	return &service{
		cfg:         cfg,
		open:        openSerial,
		recorder:    rec,
		errChan:     errChan,
		logger:      zap.L(), // returns the global logger.
		timeoutChan: make(chan error, 1),
	}
}

// WithOpener replaces how the port is opened.
func (s *service) WithOpener(open OpenFunc) *service {
	s.open = open
	return s
}

func (s *service) sendIfErr(err error) {
	if err == nil || s.errChan == nil {
		return
	}
	select {
	case s.errChan <- err:
	default:
		s.logger.Warn("error channel full, dropping error", zap.Error(err))
	}
}

// Connect opens the port and starts reading in the background. Failures after this
// point, and the staleness watchdog, are reported on SubscribeToTimeout.
func (s *service) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		s.closeLocked()
	}

	s.logger.Debug("opening serial port", zap.String("port", s.cfg.Port), zap.Int("baud", s.cfg.BaudRate))
	port, err := s.open(s.cfg)
	if err != nil {
		s.logger.Error("failed to open serial port", zap.String("port", s.cfg.Port), zap.Error(err))
		return fmt.Errorf("%w %s: %w", ErrConnect, s.cfg.Port, err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	timeoutChan := make(chan error, 1)
	s.port = port
	s.cancel = cancel
	s.timeoutChan = timeoutChan
	s.lastLine.Store(time.Now().UnixNano())

	go s.readLoop(connCtx, port, timeoutChan)
	if s.cfg.StaleAfter > 0 {
		go s.watchdog(connCtx, timeoutChan)
	}
	go func() {
		<-connCtx.Done()
		_ = port.Close()
	}()

	s.logger.Info("serial port opened", zap.String("port", s.cfg.Port))
	return nil
}

func (s *service) SubscribeToTimeout() chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutChan
}

func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *service) closeLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.port = nil
}

func notify(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func (s *service) readLoop(ctx context.Context, port Port, timeoutChan chan error) {
	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := port.Read(buf)
		if n > 0 {
			pending = s.consume(ctx, pending, buf[:n])
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("serial read failed", zap.Error(err))
			notify(timeoutChan, fmt.Errorf("%w: %w", ErrDisconnected, err))
			return
		}
	}
}

func (s *service) watchdog(ctx context.Context, timeoutChan chan error) {
	ticker := time.NewTicker(max(s.cfg.StaleAfter/4, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			since := time.Since(time.Unix(0, s.lastLine.Load()))
			if since > s.cfg.StaleAfter {
				s.logger.Warn("no sensor output", zap.Duration("since", since))
				notify(timeoutChan, ErrTimeout)
				return
			}
		}
	}
}

// consume splits incoming bytes into lines; a trailing partial line is kept for the next read.
func (s *service) consume(ctx context.Context, pending, data []byte) []byte {
	pending = append(pending, data...)
	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimSpace(pending[:i]))
		pending = pending[i+1:]
		if line == "" {
			continue
		}
		s.lastLine.Store(time.Now().UnixNano())
		s.handleLine(ctx, line)
	}
	if len(pending) > maxLineLength {
		s.logger.Warn("unterminated sensor output exceeds max line length, dropping",
			zap.Int("pending_size", len(pending)),
			zap.Int("max_size", maxLineLength),
		)
		return pending[:0]
	}
	return pending
}

func (s *service) handleLine(ctx context.Context, line string) {
	s.logger.Debug("raw serial line", zap.String("line", line))
	reading, ok, err := ParseLine(line, s.cfg.Line)
	if !ok {
		return
	}
	if err != nil {
		s.logger.Warn("failed to parse sensor line", zap.String("line", line), zap.Error(err))
		return
	}
	if _, err := s.recorder.Record(ctx, reading); err != nil {
		s.sendIfErr(err)
		return
	}
	s.logger.Debug("parsed reading",
		zap.Float64("temp", reading.Temperature),
		zap.Int("hum", reading.Humidity),
		zap.Int("gas", reading.Gas),
	)
}
