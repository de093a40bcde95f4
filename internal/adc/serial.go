package adc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/thatsimonsguy/thermistor-controller/internal/model"
)

// sampleRequest asks the MCU for one conversion; it answers with a single line.
const sampleRequest = "R\n"

const maxLineLength = 64

type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

var openPort = func(name string, baudRate int) (serialPort, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baudRate})
}

// SerialSampler polls a microcontroller that digitizes the divider voltage.
type SerialSampler struct {
	port      string
	baudRate  int
	timeout   time.Duration
	fullScale int
	vref      float64

	mu   sync.Mutex
	conn serialPort
}

func NewSerialSampler(port string, baudRate int, timeout time.Duration, fullScale int, vref float64) *SerialSampler {
	return &SerialSampler{
		port:      port,
		baudRate:  baudRate,
		timeout:   timeout,
		fullScale: fullScale,
		vref:      vref,
	}
}

func (s *SerialSampler) Sample(ctx context.Context) (model.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(); err != nil {
		return model.Reading{}, err
	}

	line, err := s.request(ctx)
	if err != nil {
		// drop the link so the next tick reopens it
		s.closeLocked()
		return model.Reading{}, err
	}

	raw, err := parseRaw(line, s.fullScale)
	if err != nil {
		return model.Reading{}, err
	}
	return reading(raw, s.fullScale, s.vref), nil
}

func (s *SerialSampler) connect() error {
	if s.conn != nil {
		return nil
	}

	port, err := openPort(s.port, s.baudRate)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}
	if err := port.SetReadTimeout(s.timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", s.port, err)
	}

	log.Info().Str("port", s.port).Int("baud", s.baudRate).Msg("Serial ADC connected")
	s.conn = port
	return nil
}

func (s *SerialSampler) request(ctx context.Context) (string, error) {
	if _, err := s.conn.Write([]byte(sampleRequest)); err != nil {
		return "", fmt.Errorf("failed to send sample request: %w", err)
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return readLine(ctx, s.conn, deadline)
}

// readLine reads up to '\n'. A port read timeout shows up as (0, nil).
func readLine(ctx context.Context, r io.Reader, deadline time.Time) (string, error) {
	var (
		line []byte
		buf  [16]byte
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", errors.New("timed out waiting for adc sample")
		}

		n, err := r.Read(buf[:])
		for _, b := range buf[:n] {
			if b == '\n' {
				return string(line), nil
			}
			if b != '\r' {
				line = append(line, b)
			}
		}
		if len(line) > maxLineLength {
			return "", fmt.Errorf("adc sample line exceeds %d bytes", maxLineLength)
		}
		if err != nil {
			return "", fmt.Errorf("failed to read adc sample: %w", err)
		}
	}
}

func (s *SerialSampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *SerialSampler) closeLocked() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
