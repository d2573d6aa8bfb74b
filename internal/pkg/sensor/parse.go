package sensor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/anicoll/sensor-bridge/internal/pkg/config"
	"github.com/anicoll/sensor-bridge/internal/pkg/model"
)

var ErrMalformedLine = errors.New("malformed sensor line")

// ParseLine decodes one line of sensor output. ok is false when the line does not
// carry a reading (wrong prefix), err is set when it should but cannot be decoded.
func ParseLine(line string, lf config.LineFormat) (reading model.Reading, ok bool, err error) {
	if !strings.HasPrefix(line, lf.Prefix) {
		return model.Reading{}, false, nil
	}
	parts := strings.Split(line, lf.Separator)
	if len(parts) <= lf.MaxField() {
		return model.Reading{}, true, fmt.Errorf("%w: want at least %d fields, got %d", ErrMalformedLine, lf.MaxField()+1, len(parts))
	}

	field := func(i int) string { return strings.TrimSpace(parts[i]) }

	reading.Temperature, err = strconv.ParseFloat(field(lf.TempField), 64)
	if err != nil || math.IsNaN(reading.Temperature) || math.IsInf(reading.Temperature, 0) {
		return model.Reading{}, true, fmt.Errorf("%w: temperature %q", ErrMalformedLine, field(lf.TempField))
	}
	if reading.Humidity, err = strconv.Atoi(field(lf.HumField)); err != nil {
		return model.Reading{}, true, fmt.Errorf("%w: humidity %q", ErrMalformedLine, field(lf.HumField))
	}
	if reading.Gas, err = strconv.Atoi(field(lf.GasField)); err != nil {
		return model.Reading{}, true, fmt.Errorf("%w: gas %q", ErrMalformedLine, field(lf.GasField))
	}
	return reading, true, nil
}
