package pinctrl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withCommand(t *testing.T, out string, err error) *[][]string {
	orig := runCommand
	t.Cleanup(func() { runCommand = orig })

	var calls [][]string
	runCommand = func(args ...string) ([]byte, error) {
		calls = append(calls, args)
		return []byte(out), err
	}
	return &calls
}

func TestParseLevelOutput(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"0", false},
		{"1", true},
		{"\n1\n", true},
		{"\n0\n", false},
	}
	for _, tc := range tests {
		result, err := parseLevel(tc.input)
		if err != nil {
			t.Errorf("error parsing level output %q: %v", tc.input, err)
		}
		if result != tc.expected {
			t.Errorf("expected %v for input %q, got %v", tc.expected, tc.input, result)
		}
	}

	_, err := parseLevel("hi")
	assert.Error(t, err)
}

func TestReadLevel(t *testing.T) {
	calls := withCommand(t, "1\n", nil)

	level, err := ReadLevel(17)
	require.NoError(t, err)
	assert.True(t, level)
	assert.Equal(t, [][]string{{"lev", "17"}}, *calls)
}

func TestReadLevel_CommandFails(t *testing.T) {
	withCommand(t, "", errors.New("exit status 1"))

	_, err := ReadLevel(17)
	assert.Error(t, err)
}

func TestDriveOutput(t *testing.T) {
	calls := withCommand(t, "", nil)

	require.NoError(t, DriveOutput(22, true))
	require.NoError(t, DriveOutput(22, false))
	assert.Equal(t, [][]string{
		{"set", "22", "op", "pn", "dh"},
		{"set", "22", "op", "pn", "dl"},
	}, *calls)
}

func TestSetPin_Fails(t *testing.T) {
	withCommand(t, "invalid pin\n", errors.New("exit status 2"))

	err := SetPin(99, "op")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pin")
}
