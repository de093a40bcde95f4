package calibration

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrTooShort     = errors.New("calibration table needs at least two entries")
	ErrNotMonotonic = errors.New("calibration table resistances must be strictly decreasing")
	ErrBadIncrement = errors.New("calibration increment must be positive")
	ErrInvalidValue = errors.New("calibration table contains a non-positive or non-finite resistance")
)

// Table maps uniformly spaced temperatures to thermistor resistance.
// Index 0 is LowerLimitC; each following index adds IncrementC.
type Table struct {
	LowerLimitC    float64   `yaml:"lower_limit_c"`
	IncrementC     float64   `yaml:"increment_c"`
	ResistanceOhms []float64 `yaml:"resistance_ohms"`
}

// Default is a 10k NTC curve (B25/85 = 3950) from -30C to 110C in 5C steps.
func Default() Table {
	return Table{
		LowerLimitC: -30.0,
		IncrementC:  5.0,
		ResistanceOhms: []float64{
			200204, // -30C
			144317,
			105385,
			77898,
			58246,
			44026,
			33621, // 0C
			25925,
			20175,
			15837,
			12535,
			10000, // 25C
			8037,
			6506,
			5301,
			4348,
			3588, // 50C
			2978,
			2486,
			2086,
			1760,
			1492,
			1270,
			1087,
			934,
			805,
			698, // 100C
			606,
			529, // 110C
		},
	}
}

func (t Table) Count() int {
	return len(t.ResistanceOhms)
}

// TempAt returns the calibrated temperature for index i.
func (t Table) TempAt(i int) float64 {
	return t.LowerLimitC + t.IncrementC*float64(i)
}

func (t Table) UpperLimitC() float64 {
	return t.TempAt(t.Count() - 1)
}

// Validate is run once at startup; a table that fails it must not be used.
func (t Table) Validate() error {
	if t.Count() < 2 {
		return ErrTooShort
	}
	if !(t.IncrementC > 0) || math.IsInf(t.IncrementC, 0) {
		return fmt.Errorf("%w: %v", ErrBadIncrement, t.IncrementC)
	}
	if math.IsNaN(t.LowerLimitC) || math.IsInf(t.LowerLimitC, 0) {
		return fmt.Errorf("%w: lower limit %v", ErrInvalidValue, t.LowerLimitC)
	}
	for i, r := range t.ResistanceOhms {
		if !(r > 0) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: index %d = %v", ErrInvalidValue, i, r)
		}
		if i > 0 && !(t.ResistanceOhms[i-1] > r) {
			return fmt.Errorf("%w: index %d (%.1f) >= index %d (%.1f)", ErrNotMonotonic, i, r, i-1, t.ResistanceOhms[i-1])
		}
	}
	return nil
}

// LoadFile reads a YAML table and validates it.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read calibration file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("failed to parse calibration table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}
