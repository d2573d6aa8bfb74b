package database

import (
	"context"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
)

// Write stores one accepted row.
func (db *Database) Write(ctx context.Context, row model.Row) error {
	const insertSQL = `
	INSERT INTO sensor_reading (time_stamp, temperature, humidity, gas)
	VALUES ($1, $2, $3, $4)
	`
	if _, err := db.pool.Exec(ctx, insertSQL, row.Timestamp, row.Temperature, row.Humidity, row.Gas); err != nil {
		return err
	}
	return nil
}
