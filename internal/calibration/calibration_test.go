package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	require.NoError(t, table.Validate())
	assert.Equal(t, 29, table.Count())
	assert.Equal(t, -30.0, table.TempAt(0))
	assert.Equal(t, 25.0, table.TempAt(11))
	assert.Equal(t, 110.0, table.UpperLimitC())
	assert.Equal(t, 10000.0, table.ResistanceOhms[11])

	for i := 0; i < table.Count()-1; i++ {
		assert.Greater(t, table.ResistanceOhms[i], table.ResistanceOhms[i+1], "index %d", i)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		table    Table
		expected error
	}{
		{"valid", Table{LowerLimitC: 0, IncrementC: 10, ResistanceOhms: []float64{300, 200, 100}}, nil},
		{"empty", Table{IncrementC: 5}, ErrTooShort},
		{"single entry", Table{IncrementC: 5, ResistanceOhms: []float64{100}}, ErrTooShort},
		{"zero increment", Table{IncrementC: 0, ResistanceOhms: []float64{300, 200}}, ErrBadIncrement},
		{"negative increment", Table{IncrementC: -5, ResistanceOhms: []float64{300, 200}}, ErrBadIncrement},
		{"increasing", Table{IncrementC: 5, ResistanceOhms: []float64{300, 200, 250}}, ErrNotMonotonic},
		{"duplicate", Table{IncrementC: 5, ResistanceOhms: []float64{300, 200, 200}}, ErrNotMonotonic},
		{"negative resistance", Table{IncrementC: 5, ResistanceOhms: []float64{300, -1}}, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
lower_limit_c: -10
increment_c: 10
resistance_ohms: [55000, 33000, 20000, 12500]
`)
	table, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, -10.0, table.LowerLimitC)
	assert.Equal(t, 10.0, table.IncrementC)
	assert.Equal(t, 20.0, table.UpperLimitC())
	assert.Equal(t, []float64{55000, 33000, 20000, 12500}, table.ResistanceOhms)
}

func TestParse_RejectsNonMonotonic(t *testing.T) {
	_, err := Parse([]byte("lower_limit_c: 0\nincrement_c: 5\nresistance_ohms: [100, 200]\n"))
	assert.ErrorIs(t, err, ErrNotMonotonic)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lower_limit_c: 0\nincrement_c: 5\nresistance_ohms: [300, 200]\n"), 0644))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Count())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
