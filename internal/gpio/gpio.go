package gpio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/thermistor-controller/internal/config"
	"github.com/thatsimonsguy/thermistor-controller/internal/model"
	"github.com/thatsimonsguy/thermistor-controller/internal/pinctrl"
)

const pwmRoot = "/sys/class/pwm"

var (
	driveOutput = pinctrl.DriveOutput
	readLevel   = pinctrl.ReadLevel
	writeFile   = func(path string, data []byte) error { return os.WriteFile(path, data, 0644) }
	pathExists  = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}
)

type Pin struct {
	Number     int
	ActiveHigh bool
}

// Actuator drives a heating/cooling stage: a direction relay on a GPIO pin
// (active = heating) and a sysfs PWM channel for the drive level. It is safe
// for concurrent use; shutdown may call Off while the loop is driving.
type Actuator struct {
	mu sync.Mutex

	direction   Pin
	chipDir     string
	channel     int
	periodNanos int
	outputMax   float64
	safeMode    bool
	pwmReady    bool
}

func NewActuator(cfg config.Config) *Actuator {
	a := &Actuator{
		chipDir:     filepath.Join(pwmRoot, fmt.Sprintf("pwmchip%d", cfg.Actuator.PWMChip)),
		channel:     cfg.Actuator.PWMChannel,
		periodNanos: cfg.Actuator.PWMPeriodNanos,
		outputMax:   255,
		safeMode:    cfg.SafeMode,
	}
	if cfg.Actuator.DirectionPin != nil {
		a.direction = Pin{Number: *cfg.Actuator.DirectionPin, ActiveHigh: cfg.Actuator.DirectionActiveHigh}
	}
	if cfg.OutputMax != nil {
		a.outputMax = *cfg.OutputMax
	}
	return a
}

func (a *Actuator) channelDir() string {
	return filepath.Join(a.chipDir, fmt.Sprintf("pwm%d", a.channel))
}

// Drive applies a control output. Level is expected to be clamped already.
// DirectionOff puts the actuator at rest, same as Off.
func (a *Actuator) Drive(out model.ControlOutput) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.safeMode {
		log.Debug().
			Str("direction", string(out.Direction)).
			Float64("level", out.Level).
			Msg("Safe mode: skipping actuator write")
		return nil
	}
	if out.Direction == model.DirectionOff {
		return a.off()
	}

	heating := out.Direction == model.DirectionHeating
	if err := driveOutput(a.direction.Number, a.direction.ActiveHigh == heating); err != nil {
		return fmt.Errorf("failed to set direction pin %d: %w", a.direction.Number, err)
	}

	if err := a.setupPWM(); err != nil {
		return err
	}
	return a.writeDuty(a.dutyNanos(out.Level))
}

// Off leaves the actuator at rest: zero duty and direction relay released.
func (a *Actuator) Off() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.safeMode {
		return nil
	}
	return a.off()
}

func (a *Actuator) off() error {

	var errs []error
	if err := a.setupPWM(); err != nil {
		errs = append(errs, err)
	} else if err := a.writeDuty(0); err != nil {
		errs = append(errs, err)
	}
	if err := driveOutput(a.direction.Number, !a.direction.ActiveHigh); err != nil {
		errs = append(errs, fmt.Errorf("failed to release direction pin %d: %w", a.direction.Number, err))
	}
	return errors.Join(errs...)
}

// ValidateStartup forces the actuator off and confirms the direction relay
// reads back as released.
func (a *Actuator) ValidateStartup() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.safeMode {
		return nil
	}
	if err := a.off(); err != nil {
		return err
	}

	level, err := readLevel(a.direction.Number)
	if err != nil {
		return fmt.Errorf("failed to read direction pin %d: %w", a.direction.Number, err)
	}
	if active := level == a.direction.ActiveHigh; active {
		return fmt.Errorf("direction pin %d is still active after release", a.direction.Number)
	}
	return nil
}

func (a *Actuator) dutyNanos(level float64) int {
	if a.outputMax <= 0 || math.IsNaN(level) {
		return 0
	}
	frac := level / a.outputMax
	frac = math.Max(0, math.Min(1, frac))
	return int(math.Round(frac * float64(a.periodNanos)))
}

func (a *Actuator) setupPWM() error {
	if a.pwmReady {
		return nil
	}

	if !pathExists(a.channelDir()) {
		if err := writeFile(filepath.Join(a.chipDir, "export"), []byte(strconv.Itoa(a.channel))); err != nil {
			return fmt.Errorf("failed to export pwm channel %d: %w", a.channel, err)
		}
	}
	if err := writeFile(filepath.Join(a.channelDir(), "period"), []byte(strconv.Itoa(a.periodNanos))); err != nil {
		return fmt.Errorf("failed to set pwm period: %w", err)
	}
	if err := a.writeDuty(0); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(a.channelDir(), "enable"), []byte("1")); err != nil {
		return fmt.Errorf("failed to enable pwm channel %d: %w", a.channel, err)
	}

	log.Info().
		Str("pwm", a.channelDir()).
		Int("period_ns", a.periodNanos).
		Msg("PWM channel configured")
	a.pwmReady = true
	return nil
}

func (a *Actuator) writeDuty(nanos int) error {
	if err := writeFile(filepath.Join(a.channelDir(), "duty_cycle"), []byte(strconv.Itoa(nanos))); err != nil {
		return fmt.Errorf("failed to set pwm duty cycle: %w", err)
	}
	return nil
}
