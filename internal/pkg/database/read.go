package database

import (
	"context"
	"errors"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/jackc/pgx/v5"
)

func scanRows(rows pgx.Rows) ([]model.Row, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Row, error) {
		var r model.Row
		err := row.Scan(&r.Timestamp, &r.Temperature, &r.Humidity, &r.Gas)
		return r, err
	})
}

// Rows returns every stored row oldest first.
func (db *Database) Rows(ctx context.Context) ([]model.Row, error) {
	const query = `
	SELECT time_stamp, temperature, humidity, gas
	FROM sensor_reading
	ORDER BY time_stamp ASC, id ASC;
	`
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// Latest returns the newest stored row, false if the table is empty.
func (db *Database) Latest(ctx context.Context) (model.Row, bool, error) {
	const query = `
	SELECT time_stamp, temperature, humidity, gas
	FROM sensor_reading
	ORDER BY time_stamp DESC, id DESC
	LIMIT 1;
	`
	var r model.Row
	err := db.pool.QueryRow(ctx, query).Scan(&r.Timestamp, &r.Temperature, &r.Humidity, &r.Gas)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Row{}, false, nil
	}
	if err != nil {
		return model.Row{}, false, err
	}
	return r, true, nil
}
