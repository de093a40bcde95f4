package thermistor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/thatsimonsguy/thermistor-controller/internal/calibration"
	"github.com/thatsimonsguy/thermistor-controller/internal/model"
	"github.com/thatsimonsguy/thermistor-controller/internal/units"
)

var (
	ErrSensorFault    = errors.New("sensor fault")
	ErrOutOfRangeLow  = errors.New("reading below calibrated range")
	ErrOutOfRangeHigh = errors.New("reading above calibrated range")
)

// Policy selects how a resistance between two table entries becomes a temperature.
type Policy string

const (
	// Stepped reports the colder bracketing table temperature.
	Stepped Policy = "stepped"
	// Interpolated linearly interpolates between the bracketing entries.
	Interpolated Policy = "interpolated"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case Stepped:
		return Stepped, nil
	case Interpolated, "":
		return Interpolated, nil
	default:
		return "", fmt.Errorf("unknown conversion policy %q", s)
	}
}

// Result is always usable: out-of-range and faulted inputs carry a saturated temperature.
type Result struct {
	Celsius float64
	Ohms    float64
	Volts   float64
	Status  model.Status
}

func (r Result) Fahrenheit() float64 {
	return units.CelsiusToFahrenheit(r.Celsius)
}

func (r Result) Err() error {
	switch r.Status {
	case model.StatusSensorFault:
		return fmt.Errorf("%w: %.4fV", ErrSensorFault, r.Volts)
	case model.StatusOutOfRangeLow:
		return fmt.Errorf("%w: %.1f ohms", ErrOutOfRangeLow, r.Ohms)
	case model.StatusOutOfRangeHigh:
		return fmt.Errorf("%w: %.1f ohms", ErrOutOfRangeHigh, r.Ohms)
	default:
		return nil
	}
}

// Converter turns the voltage across a thermistor in the low leg of a divider
// (series resistor to Vref) into a temperature.
type Converter struct {
	table          calibration.Table
	seriesOhms     float64
	referenceVolts float64
	policy         Policy
}

// New expects a table that already passed calibration.Table.Validate.
func New(table calibration.Table, seriesOhms, referenceVolts float64, policy Policy) *Converter {
	if policy == "" {
		policy = Interpolated
	}
	return &Converter{
		table:          table,
		seriesOhms:     seriesOhms,
		referenceVolts: referenceVolts,
		policy:         policy,
	}
}

func (c *Converter) Policy() Policy {
	return c.policy
}

func (c *Converter) Table() calibration.Table {
	return c.table
}

// Resistance computes R = Rs * V / (Vref - V). V must be in [0, Vref).
func (c *Converter) Resistance(volts float64) (float64, error) {
	if math.IsNaN(volts) || math.IsInf(volts, 0) || volts < 0 || volts >= c.referenceVolts {
		return 0, fmt.Errorf("%w: %.4fV outside [0, %.4fV)", ErrSensorFault, volts, c.referenceVolts)
	}
	return c.seriesOhms * volts / (c.referenceVolts - volts), nil
}

// Convert maps a measured voltage to a temperature.
func (c *Converter) Convert(volts float64) Result {
	ohms, err := c.Resistance(volts)
	if err != nil {
		// Negative voltage reads like a shorted thermistor, anything else like an open one.
		celsius := c.table.LowerLimitC
		if volts < 0 {
			celsius = c.table.UpperLimitC()
		}
		return Result{Celsius: celsius, Volts: volts, Status: model.StatusSensorFault}
	}

	res := c.FromResistance(ohms)
	res.Volts = volts
	return res
}

// FromResistance looks ohms up in the calibration table.
func (c *Converter) FromResistance(ohms float64) Result {
	table := c.table.ResistanceOhms
	n := len(table)

	if ohms > table[0] {
		return Result{Celsius: c.table.LowerLimitC, Ohms: ohms, Status: model.StatusOutOfRangeLow}
	}
	if ohms < table[n-1] {
		return Result{Celsius: c.table.UpperLimitC(), Ohms: ohms, Status: model.StatusOutOfRangeHigh}
	}

	i := 1
	for ; i < n; i++ {
		if table[i] <= ohms {
			break
		}
	}

	var celsius float64
	switch {
	case ohms == table[i-1]:
		celsius = c.table.TempAt(i - 1)
	case ohms == table[i]:
		celsius = c.table.TempAt(i)
	case c.policy == Stepped:
		celsius = c.table.TempAt(i - 1)
	default:
		lowT, highT := c.table.TempAt(i-1), c.table.TempAt(i)
		celsius = lowT + (ohms-table[i-1])*(highT-lowT)/(table[i]-table[i-1])
	}

	return Result{Celsius: celsius, Ohms: ohms, Status: model.StatusOK}
}

// ConvertReading is Convert applied to a raw ADC sample.
func (c *Converter) ConvertReading(r model.Reading) Result {
	return c.Convert(r.Volts())
}
