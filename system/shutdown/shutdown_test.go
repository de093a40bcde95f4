package shutdown

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockActuator struct {
	offCalled bool
	err       error
}

func (m *mockActuator) Off() error {
	m.offCalled = true
	return m.err
}

func captureExit(t *testing.T) *int {
	code := -1
	ExitFunc = func(c int) { code = c }
	t.Cleanup(func() { ExitFunc = os.Exit })
	return &code
}

func TestShutdown(t *testing.T) {
	code := captureExit(t)
	act := &mockActuator{}

	Shutdown(act, 0)

	assert.True(t, act.offCalled)
	assert.Equal(t, 0, *code)
}

func TestShutdown_ActuatorFailure(t *testing.T) {
	code := captureExit(t)
	act := &mockActuator{err: errors.New("pwm busy")}

	Shutdown(act, 0)

	assert.True(t, act.offCalled)
	assert.Equal(t, 1, *code)
}

func TestShutdownWithError(t *testing.T) {
	code := captureExit(t)
	act := &mockActuator{}

	ShutdownWithError(act, errors.New("boom"), "fatal condition")

	assert.True(t, act.offCalled)
	assert.Equal(t, 1, *code)

	Shutdown(nil, 0)
	assert.Equal(t, 0, *code)
}
