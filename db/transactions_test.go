package db

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/thermistor-controller/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	dbConn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbConn.Close() })
	return dbConn
}

func TestSetpointRoundTrip(t *testing.T) {
	dbConn := setupTestDB(t)

	_, ok, err := GetSetpoint(dbConn)
	require.NoError(t, err)
	assert.False(t, ok, "fresh database has no setpoint")

	require.NoError(t, UpdateSetpoint(dbConn, 68.5))
	value, ok, err := GetSetpoint(dbConn)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 68.5, value)

	require.NoError(t, UpdateSetpoint(dbConn, 72))
	value, _, err = GetSetpoint(dbConn)
	require.NoError(t, err)
	assert.Equal(t, 72.0, value)

	var rows int
	require.NoError(t, dbConn.QueryRow(`SELECT COUNT(*) FROM setpoint`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestInsertAndGetReadings(t *testing.T) {
	dbConn := setupTestDB(t)
	now := time.Now()

	require.NoError(t, InsertReading(dbConn, model.ReadingRecord{
		TakenAt:      now.Add(-time.Second),
		Raw:          2048,
		Volts:        1.5,
		Ohms:         10000,
		TemperatureC: 25,
		Status:       model.StatusOK,
		Direction:    model.DirectionHeating,
		Output:       100,
	}))
	require.NoError(t, InsertReading(dbConn, model.ReadingRecord{
		TakenAt:      now,
		Raw:          4095,
		Volts:        3.0,
		TemperatureC: -30,
		Status:       model.StatusSensorFault,
	}))

	records, err := GetRecentReadings(dbConn, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	newest := records[0]
	assert.Equal(t, model.StatusSensorFault, newest.Status)
	assert.Equal(t, model.Direction(""), newest.Direction)
	assert.Equal(t, 0.0, newest.Output)
	assert.WithinDuration(t, now, newest.TakenAt, time.Millisecond)

	oldest := records[1]
	assert.Equal(t, 2048, oldest.Raw)
	assert.Equal(t, 25.0, oldest.TemperatureC)
	assert.Equal(t, model.DirectionHeating, oldest.Direction)
	assert.Equal(t, 100.0, oldest.Output)
	assert.False(t, oldest.Clamped)
}

func TestPruneReadings(t *testing.T) {
	dbConn := setupTestDB(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, InsertReading(dbConn, model.ReadingRecord{
			TakenAt:      time.Now(),
			Raw:          i,
			TemperatureC: float64(i),
			Status:       model.StatusOK,
		}))
	}

	removed, err := PruneReadings(dbConn, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)

	n, err := CountReadings(dbConn)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := GetRecentReadings(dbConn, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 9, records[0].Raw)
	assert.Equal(t, 7, records[2].Raw)
}

func TestSetSetpointCLI(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "thermistor.db")

	require.NoError(t, SetSetpointCLI(dbPath, 65))

	dbConn, err := Open(dbPath)
	require.NoError(t, err)
	defer dbConn.Close()

	value, ok, err := GetSetpoint(dbConn)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 65.0, value)
}

func TestUpdateSetpoint_RejectsNonFinite(t *testing.T) {
	dbConn := setupTestDB(t)
	require.NoError(t, UpdateSetpoint(dbConn, 70))

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, UpdateSetpoint(dbConn, v), ErrInvalidSetpoint)
	}

	value, ok, err := GetSetpoint(dbConn)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 70.0, value, "stored setpoint untouched")
}

func TestSetSetpointCLI_RejectsNonFinite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "thermistor.db")

	assert.ErrorIs(t, SetSetpointCLI(dbPath, math.Inf(1)), ErrInvalidSetpoint)

	dbConn, err := Open(dbPath)
	require.NoError(t, err)
	defer dbConn.Close()

	_, ok, err := GetSetpoint(dbConn)
	require.NoError(t, err)
	assert.False(t, ok)
}
