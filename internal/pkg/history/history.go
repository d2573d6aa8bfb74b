package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var ErrMalformedRow = errors.New("malformed history row")

var header = []string{"timestamp", "temp", "hum", "gas"}

// timestamp layouts accepted when reading rows back, newest first.
var timestampLayouts = []string{
	model.TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// Log is an append-only CSV file of accepted readings.
type Log struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// Open returns a Log for path, creating the file with a header row if it does not exist.
func Open(path string) (*Log, error) {
	l := &Log{path: path, logger: zap.L()}
	if err := l.ensureHeader(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) ensureHeader() error {
	info, err := os.Stat(l.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Append writes one row to the end of the file.
func (l *Log) Append(_ context.Context, row model.Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(encode(row)); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Rows returns every well formed row in file order. Malformed rows are skipped.
func (l *Log) Rows(ctx context.Context) ([]model.Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	rows := []model.Row{}
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			l.logger.Warn("skipping unreadable history row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if line == 1 && record[0] == header[0] {
			continue
		}
		row, err := decode(record)
		if err != nil {
			l.logger.Warn("skipping history row", zap.Int("line", line), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Last returns the most recent row, false if the log holds none.
func (l *Log) Last(ctx context.Context) (model.Row, bool, error) {
	rows, err := l.Rows(ctx)
	if err != nil {
		return model.Row{}, false, err
	}
	if len(rows) == 0 {
		return model.Row{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

// Points returns the history in the shape served over HTTP.
func (l *Log) Points(ctx context.Context) ([]model.HistoryPoint, error) {
	rows, err := l.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r model.Row, _ int) model.HistoryPoint {
		return r.Point()
	}), nil
}

func encode(row model.Row) []string {
	return []string{
		row.Timestamp.Format(model.TimestampLayout),
		strconv.FormatFloat(row.Temperature, 'f', -1, 64),
		strconv.Itoa(row.Humidity),
		strconv.Itoa(row.Gas),
	}
}

func decode(record []string) (model.Row, error) {
	if len(record) != len(header) {
		return model.Row{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedRow, len(header), len(record))
	}
	ts, err := parseTimestamp(record[0])
	if err != nil {
		return model.Row{}, err
	}
	temp, err := strconv.ParseFloat(record[1], 64)
	if err != nil || math.IsNaN(temp) || math.IsInf(temp, 0) {
		return model.Row{}, fmt.Errorf("%w: temp %q", ErrMalformedRow, record[1])
	}
	hum, err := strconv.Atoi(record[2])
	if err != nil {
		return model.Row{}, fmt.Errorf("%w: hum %q", ErrMalformedRow, record[2])
	}
	gas, err := strconv.Atoi(record[3])
	if err != nil {
		return model.Row{}, fmt.Errorf("%w: gas %q", ErrMalformedRow, record[3])
	}
	row := model.NewRow(ts, model.Reading{Temperature: temp, Humidity: hum, Gas: gas})
	row.RawTimestamp = record[0]
	return row, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrMalformedRow, s)
}
