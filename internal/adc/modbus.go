package adc

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/grid-x/modbus"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/thermistor-controller/internal/model"
)

type inputRegisterReader interface {
	ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]byte, error)
}

type modbusConn struct {
	handler *modbus.TCPClientHandler
	client  inputRegisterReader
}

var dialModbus = func(ctx context.Context, addr string, slaveID byte, timeout time.Duration) (*modbusConn, error) {
	handler := modbus.NewTCPClientHandler(addr)
	handler.SlaveID = slaveID
	handler.Timeout = timeout
	handler.LinkRecoveryTimeout = 5 * time.Second

	if err := handler.Connect(ctx); err != nil {
		return nil, fmt.Errorf("modbus connect failed: %w", err)
	}
	return &modbusConn{handler: handler, client: modbus.NewClient(handler)}, nil
}

// ModbusSampler reads one input register holding the raw conversion from a
// remote analog input module.
type ModbusSampler struct {
	addr      string
	slaveID   byte
	register  uint16
	timeout   time.Duration
	fullScale int
	vref      float64

	mu   sync.Mutex
	conn *modbusConn
}

func NewModbusSampler(addr string, slaveID byte, register uint16, timeout time.Duration, fullScale int, vref float64) *ModbusSampler {
	return &ModbusSampler{
		addr:      addr,
		slaveID:   slaveID,
		register:  register,
		timeout:   timeout,
		fullScale: fullScale,
		vref:      vref,
	}
}

func (m *ModbusSampler) Sample(ctx context.Context) (model.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		conn, err := dialModbus(ctx, m.addr, m.slaveID, m.timeout)
		if err != nil {
			return model.Reading{}, err
		}
		log.Info().Str("addr", m.addr).Uint8("slave_id", m.slaveID).Msg("Modbus ADC connected")
		m.conn = conn
	}

	data, err := m.conn.client.ReadInputRegisters(ctx, m.register, 1)
	if err != nil {
		m.closeLocked()
		return model.Reading{}, fmt.Errorf("failed to read input register %d: %w", m.register, err)
	}
	if len(data) != 2 {
		return model.Reading{}, fmt.Errorf("unexpected register payload length %d", len(data))
	}

	raw := int(binary.BigEndian.Uint16(data))
	if raw > m.fullScale {
		return model.Reading{}, fmt.Errorf("adc sample %d outside [0, %d]", raw, m.fullScale)
	}
	return reading(raw, m.fullScale, m.vref), nil
}

func (m *ModbusSampler) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *ModbusSampler) closeLocked() error {
	if m.conn == nil {
		return nil
	}
	var err error
	if m.conn.handler != nil {
		err = m.conn.handler.Close()
	}
	m.conn = nil
	return err
}
