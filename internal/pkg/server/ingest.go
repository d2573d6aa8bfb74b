package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
)

var ErrInvalidValue = errors.New("invalid value")

// IngestPayload is a pushed reading. Absent fields keep their current value; present
// ones may be JSON numbers or numeric strings.
type IngestPayload struct {
	Temp json.RawMessage `json:"temp"`
	Hum  json.RawMessage `json:"hum"`
	Gas  json.RawMessage `json:"gas"`
}

type IngestResponse struct {
	Ok    bool           `json:"ok"`
	Data  *model.Reading `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Merge applies the payload to cur. Either every present field coerces or cur is
// returned with an error.
func (p IngestPayload) Merge(cur model.Reading) (model.Reading, error) {
	next := cur
	var err error
	if p.Temp != nil {
		if next.Temperature, err = coerceFloat("temp", p.Temp); err != nil {
			return cur, err
		}
	}
	if p.Hum != nil {
		if next.Humidity, err = coerceInt("hum", p.Hum); err != nil {
			return cur, err
		}
	}
	if p.Gas != nil {
		if next.Gas, err = coerceInt("gas", p.Gas); err != nil {
			return cur, err
		}
	}
	return next, nil
}

// literal returns the numeric text held by raw, unquoting strings.
func literal(name string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidValue, name)
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidValue, name, err)
		}
		return strings.TrimSpace(s), nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw), nil
	}
	return "", fmt.Errorf("%w: %s must be a number or numeric string, got %s", ErrInvalidValue, name, raw)
}

func coerceFloat(name string, raw json.RawMessage) (float64, error) {
	s, err := literal(name, raw)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s %q is not a finite number", ErrInvalidValue, name, s)
	}
	return f, nil
}

// coerceInt accepts integer strings, and numbers which are truncated toward zero.
func coerceInt(name string, raw json.RawMessage) (int, error) {
	s, err := literal(name, raw)
	if err != nil {
		return 0, err
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidValue, name, s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidValue, name, s)
	}
	return int(math.Trunc(f)), nil
}
