package adc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/thermistor-controller/internal/config"
)

func TestParseRaw(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"2048\n", 2048, false},
		{"  17 ", 17, false},
		{"raw=4095", 4095, false},
		{"A0: 12", 12, false},
		{"4096", 0, true},
		{"-1", 0, true},
		{"", 0, true},
		{"raw=", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := parseRaw(tt.input, 4095)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestNew(t *testing.T) {
	cfg := config.Config{ReferenceVoltage: 3.0}
	cfg.ADC.ResolutionBits = 12
	cfg.ADC.TimeoutMillis = 100

	cfg.ADC.Driver = "sysfs"
	s, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SysfsSampler{}, s)

	cfg.ADC.Driver = "serial"
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SerialSampler{}, s)

	cfg.ADC.Driver = "modbus"
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ModbusSampler{}, s)

	cfg.ADC.Driver = "spi"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestSysfsSampler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in_voltage0_raw")
	require.NoError(t, os.WriteFile(path, []byte("2048\n"), 0644))

	s := NewSysfsSampler(path, 4095, 3.0)
	r, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2048, r.Raw)
	assert.Equal(t, 4095, r.FullScale)
	assert.InDelta(t, 2048.0/4095.0*3.0, r.Volts(), 1e-12)
	assert.False(t, r.TakenAt.IsZero())
	assert.NoError(t, s.Close())
}

func TestSysfsSampler_Errors(t *testing.T) {
	orig := readFile
	defer func() { readFile = orig }()

	readFile = func(string) ([]byte, error) { return nil, errors.New("no such device") }
	_, err := NewSysfsSampler("/dev/null", 4095, 3.0).Sample(context.Background())
	assert.Error(t, err)

	readFile = func(string) ([]byte, error) { return []byte("garbage"), nil }
	_, err = NewSysfsSampler("/dev/null", 4095, 3.0).Sample(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSysfsSampler("/dev/null", 4095, 3.0).Sample(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakePort struct {
	mu      sync.Mutex
	written bytes.Buffer
	reply   *strings.Reader
	closed  bool
	timeout time.Duration
	readErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	if p.reply == nil || p.reply.Len() == 0 {
		// behaves like a serial read timeout
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	return p.reply.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func withFakePort(t *testing.T, port *fakePort) *int {
	orig := openPort
	t.Cleanup(func() { openPort = orig })

	opens := 0
	openPort = func(name string, baudRate int) (serialPort, error) {
		opens++
		return port, nil
	}
	return &opens
}

func TestSerialSampler(t *testing.T) {
	port := &fakePort{reply: strings.NewReader("raw=1000\r\n")}
	opens := withFakePort(t, port)

	s := NewSerialSampler("/dev/ttyUSB0", 115200, 50*time.Millisecond, 4095, 3.0)
	r, err := s.Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1000, r.Raw)
	assert.Equal(t, sampleRequest, port.written.String())
	assert.Equal(t, 50*time.Millisecond, port.timeout)
	assert.Equal(t, 1, *opens)

	require.NoError(t, s.Close())
	assert.True(t, port.closed)
}

func TestSerialSampler_TimeoutReopens(t *testing.T) {
	port := &fakePort{}
	opens := withFakePort(t, port)

	s := NewSerialSampler("/dev/ttyUSB0", 115200, 20*time.Millisecond, 4095, 3.0)
	_, err := s.Sample(context.Background())
	assert.Error(t, err)
	assert.True(t, port.closed)

	port.reply = strings.NewReader("12\n")
	r, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, r.Raw)
	assert.Equal(t, 2, *opens)
}

func TestSerialSampler_OpenFailure(t *testing.T) {
	orig := openPort
	defer func() { openPort = orig }()
	openPort = func(string, int) (serialPort, error) { return nil, errors.New("permission denied") }

	_, err := NewSerialSampler("/dev/ttyUSB0", 115200, time.Second, 4095, 3.0).Sample(context.Background())
	assert.Error(t, err)
}

func TestReadLine(t *testing.T) {
	line, err := readLine(context.Background(), strings.NewReader("4095\nextra"), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "4095", line)

	_, err = readLine(context.Background(), strings.NewReader(strings.Repeat("9", 200)), time.Now().Add(time.Second))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = readLine(ctx, strings.NewReader("1\n"), time.Now().Add(time.Second))
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeRegisters struct {
	data     []byte
	err      error
	address  uint16
	quantity uint16
}

func (f *fakeRegisters) ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]byte, error) {
	f.address, f.quantity = address, quantity
	return f.data, f.err
}

func TestModbusSampler(t *testing.T) {
	regs := &fakeRegisters{data: []byte{0x08, 0x00}}

	orig := dialModbus
	defer func() { dialModbus = orig }()
	dials := 0
	dialModbus = func(ctx context.Context, addr string, slaveID byte, timeout time.Duration) (*modbusConn, error) {
		dials++
		assert.Equal(t, "10.0.0.5:502", addr)
		assert.Equal(t, byte(3), slaveID)
		return &modbusConn{client: regs}, nil
	}

	m := NewModbusSampler("10.0.0.5:502", 3, 7, time.Second, 4095, 3.0)
	r, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2048, r.Raw)
	assert.Equal(t, uint16(7), regs.address)
	assert.Equal(t, uint16(1), regs.quantity)

	regs.data = []byte{0xFF, 0xFF}
	_, err = m.Sample(context.Background())
	assert.Error(t, err, "value above full scale")

	regs.err = errors.New("i/o timeout")
	_, err = m.Sample(context.Background())
	assert.Error(t, err)

	regs.err = nil
	regs.data = []byte{0x00, 0x10}
	r, err = m.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, r.Raw)
	assert.Equal(t, 2, dials, "read error drops the connection")

	assert.NoError(t, m.Close())
}
