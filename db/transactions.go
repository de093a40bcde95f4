package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/thatsimonsguy/thermistor-controller/internal/model"
)

var ErrInvalidSetpoint = errors.New("setpoint must be a finite number")

func UpdateSetpoint(db *sql.DB, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSetpoint, value)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO setpoint (id, value_f, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET value_f = excluded.value_f, updated_at = excluded.updated_at`,
		value, time.Now().Format(time.RFC3339))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("update setpoint: %w", err)
	}
	return tx.Commit()
}

// InsertReading stores one tick. A cooling/heating direction is only
// recorded when control ran; pass an empty Direction otherwise.
func InsertReading(db *sql.DB, r model.ReadingRecord) error {
	var direction, output any
	if r.Direction != "" {
		direction = string(r.Direction)
		output = r.Output
	}

	_, err := db.Exec(`INSERT INTO readings (taken_at, raw, volts, ohms, temp_c, status, direction, output, clamped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TakenAt.UTC().Format(time.RFC3339Nano), r.Raw, r.Volts, r.Ohms, r.TemperatureC, string(r.Status), direction, output, r.Clamped)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// PruneReadings keeps only the newest keep rows.
func PruneReadings(db *sql.DB, keep int) (int64, error) {
	res, err := db.Exec(`DELETE FROM readings WHERE id NOT IN (SELECT id FROM readings ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	return res.RowsAffected()
}
