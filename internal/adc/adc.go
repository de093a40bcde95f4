package adc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thatsimonsguy/thermistor-controller/internal/config"
	"github.com/thatsimonsguy/thermistor-controller/internal/model"
)

// Sampler produces raw ADC readings. Sample must return within the
// deadline carried by ctx.
type Sampler interface {
	Sample(ctx context.Context) (model.Reading, error)
	Close() error
}

// New builds the sampler selected by cfg.ADC.Driver.
func New(cfg config.Config) (Sampler, error) {
	fullScale := cfg.FullScale()
	vref := cfg.ReferenceVoltage
	timeout := time.Duration(cfg.ADC.TimeoutMillis) * time.Millisecond

	switch cfg.ADC.Driver {
	case "sysfs":
		return NewSysfsSampler(cfg.ADC.SysfsPath, fullScale, vref), nil
	case "serial":
		return NewSerialSampler(cfg.ADC.SerialPort, cfg.ADC.BaudRate, timeout, fullScale, vref), nil
	case "modbus":
		return NewModbusSampler(cfg.ADC.ModbusAddr, byte(cfg.ADC.ModbusSlaveID), uint16(cfg.ADC.ModbusRegister), timeout, fullScale, vref), nil
	default:
		return nil, fmt.Errorf("unknown adc driver %q", cfg.ADC.Driver)
	}
}

// parseRaw accepts a decimal count, optionally prefixed with a label ("raw=1234", "A0:1234").
func parseRaw(s string, fullScale int) (int, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "=:"); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	if s == "" {
		return 0, fmt.Errorf("empty adc sample")
	}

	raw, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("could not parse adc sample %q: %w", s, err)
	}
	if raw < 0 || raw > fullScale {
		return 0, fmt.Errorf("adc sample %d outside [0, %d]", raw, fullScale)
	}
	return raw, nil
}

func reading(raw, fullScale int, vref float64) model.Reading {
	return model.Reading{
		Raw:       raw,
		FullScale: fullScale,
		Vref:      vref,
		TakenAt:   time.Now(),
	}
}
