package controller

import (
	"math"

	"github.com/thatsimonsguy/thermistor-controller/internal/model"
)

const (
	DefaultPConstant = 4.0
	DefaultOutputMin = 0.0
	DefaultOutputMax = 255.0 // 8-bit PWM
)

// Proportional is stateless: each Compute depends only on its arguments.
//
// The output folds the measured temperature into the proportional term
// (error*P + measured) rather than the textbook setpoint + error*P. Existing
// tuning of PConstant assumes that form, so it is kept.
type Proportional struct {
	PConstant float64
	OutputMin float64
	OutputMax float64
}

func New(pConstant, outputMin, outputMax float64) *Proportional {
	return &Proportional{
		PConstant: pConstant,
		OutputMin: outputMin,
		OutputMax: outputMax,
	}
}

// Compute expects setpoint and measured in the same unit. A zero error
// counts as heating, so the direction pin is only released on overshoot.
func (c *Proportional) Compute(setpoint, measured float64) model.ControlOutput {
	err := setpoint - measured

	direction := model.DirectionHeating
	if err < 0 {
		direction = model.DirectionCooling
	}

	raw := err*c.PConstant + measured
	level, clamped := c.clamp(raw)

	return model.ControlOutput{
		Direction: direction,
		Setpoint:  setpoint,
		Measured:  measured,
		Error:     err,
		Raw:       raw,
		Level:     level,
		Clamped:   clamped,
	}
}

// Idle is the command that leaves the actuator at rest. Its level is zero
// regardless of OutputMin.
func (c *Proportional) Idle() model.ControlOutput {
	return model.ControlOutput{Direction: model.DirectionOff}
}

func (c *Proportional) clamp(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return c.OutputMin, true
	case v > c.OutputMax:
		return c.OutputMax, true
	case v < c.OutputMin:
		return c.OutputMin, true
	default:
		return v, false
	}
}
