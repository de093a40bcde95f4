package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/thermistor-controller/internal/model"
)

// GetSetpoint returns the persisted setpoint; ok is false when none has been stored yet.
func GetSetpoint(db *sql.DB) (value float64, ok bool, err error) {
	err = db.QueryRow(`SELECT value_f FROM setpoint WHERE id = 1`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get setpoint: %w", err)
	}
	return value, true, nil
}

// GetRecentReadings returns up to limit readings, newest first.
func GetRecentReadings(db *sql.DB, limit int) ([]model.ReadingRecord, error) {
	rows, err := db.Query(`SELECT id, taken_at, raw, volts, ohms, temp_c, status, direction, output, clamped
		FROM readings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var records []model.ReadingRecord
	for rows.Next() {
		var (
			r         model.ReadingRecord
			takenAt   string
			status    string
			direction sql.NullString
			output    sql.NullFloat64
		)
		err = rows.Scan(&r.ID, &takenAt, &r.Raw, &r.Volts, &r.Ohms, &r.TemperatureC, &status, &direction, &output, &r.Clamped)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse reading time %q: %w", takenAt, err)
		}
		r.Status = model.Status(status)
		r.Direction = model.Direction(direction.String)
		r.Output = output.Float64
		records = append(records, r)
	}
	return records, rows.Err()
}

func CountReadings(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return n, nil
}
