package adc

import (
	"context"
	"fmt"
	"os"

	"github.com/thatsimonsguy/thermistor-controller/internal/model"
)

var readFile = os.ReadFile

// SysfsSampler reads a Linux IIO channel such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type SysfsSampler struct {
	path      string
	fullScale int
	vref      float64
}

func NewSysfsSampler(path string, fullScale int, vref float64) *SysfsSampler {
	return &SysfsSampler{path: path, fullScale: fullScale, vref: vref}
}

func (s *SysfsSampler) Sample(ctx context.Context) (model.Reading, error) {
	if err := ctx.Err(); err != nil {
		return model.Reading{}, err
	}

	data, err := readFile(s.path)
	if err != nil {
		return model.Reading{}, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	raw, err := parseRaw(string(data), s.fullScale)
	if err != nil {
		return model.Reading{}, err
	}
	return reading(raw, s.fullScale, s.vref), nil
}

func (s *SysfsSampler) Close() error {
	return nil
}
