package model

import "time"

// Reading is the latest set of values reported by the sensor.
type Reading struct {
	Temperature float64 `json:"temp"`
	Humidity    int     `json:"hum"`
	Gas         int     `json:"gas"`
}

// Row is one accepted reading as it is persisted.
type Row struct {
	Timestamp time.Time `json:"timestamp"`
	// RawTimestamp is the timestamp text as read back from the log, empty for new rows.
	RawTimestamp string `json:"-"`
	Reading
}

// HistoryPoint is the shape served by /history, x being the row timestamp.
type HistoryPoint struct {
	X           string  `json:"x"`
	Temperature float64 `json:"temp"`
	Humidity    int     `json:"hum"`
	Gas         int     `json:"gas"`
}

// TimestampLayout is ISO-8601 with microseconds and zone offset.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

func NewRow(ts time.Time, r Reading) Row {
	return Row{Timestamp: ts, Reading: r}
}

// Point keeps a logged timestamp exactly as it was stored.
func (r Row) Point() HistoryPoint {
	x := r.RawTimestamp
	if x == "" {
		x = r.Timestamp.Format(TimestampLayout)
	}
	return HistoryPoint{
		X:           x,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Gas:         r.Gas,
	}
}
