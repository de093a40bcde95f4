package model

import (
	"math"
	"time"
)

// Direction is the actuator polarity chosen by the controller.
type Direction string

const (
	DirectionHeating Direction = "heating"
	DirectionCooling Direction = "cooling"
	// DirectionOff is the rest state: relay released, no drive.
	DirectionOff Direction = "off"
)

// Status describes how a temperature was derived from the sensor.
type Status string

const (
	StatusOK             Status = "ok"
	StatusSensorFault    Status = "sensor_fault"
	StatusOutOfRangeLow  Status = "out_of_range_low"
	StatusOutOfRangeHigh Status = "out_of_range_high"
)

// Reading is one raw ADC sample.
type Reading struct {
	Raw       int
	FullScale int     // count that corresponds to Vref
	Vref      float64 // volts
	TakenAt   time.Time
}

// Volts is NaN when the sample has no usable full scale.
func (r Reading) Volts() float64 {
	if r.FullScale <= 0 {
		return math.NaN()
	}
	return float64(r.Raw) / float64(r.FullScale) * r.Vref
}

type ControlOutput struct {
	Direction Direction `json:"direction"`
	Setpoint  float64   `json:"setpoint"`
	Measured  float64   `json:"measured"`
	Error     float64   `json:"error"`
	Raw       float64   `json:"raw"`   // before clamping
	Level     float64   `json:"level"` // value sent to the actuator
	Clamped   bool      `json:"clamped"`
}

// ReadingRecord is a persisted tick.
type ReadingRecord struct {
	ID           int64
	TakenAt      time.Time
	Raw          int
	Volts        float64
	Ohms         float64
	TemperatureC float64
	Status       Status
	Direction    Direction
	Output       float64
	Clamped      bool
}
