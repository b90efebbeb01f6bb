package codec

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const temperatureScript = `
function Decode(fPort, bytes) {
	return {
		port: fPort,
		temperature: ((bytes[0] << 8) | bytes[1]) / 100,
		length: bytes.length
	};
}
`

func TestDecode(t *testing.T) {
	c := New(temperatureScript)

	out, err := c.Decode(10, []byte{0x09, 0x29})
	require.NoError(t, err)
	assert.Equal(t, "10", fmt.Sprint(out["port"]))
	assert.Equal(t, "23.45", fmt.Sprint(out["temperature"]))
	assert.Equal(t, "2", fmt.Sprint(out["length"]))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codec.js")
	require.NoError(t, os.WriteFile(path, []byte(temperatureScript), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	_, err = c.Decode(1, []byte{0x00, 0x64})
	require.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.js"))
	require.Error(t, err)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"syntax error", "function Decode(fPort, bytes) {"},
		{"no decode function", "var x = 1;"},
		{"runtime error", "function Decode(fPort, bytes) { return bytes.foo.bar; }"},
		{"not an object", "function Decode(fPort, bytes) { return 42; }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.script).Decode(1, []byte{0x01})
			require.Error(t, err)
		})
	}

	_, err := New("function Decode(fPort, bytes) { return 'x'; }").Decode(1, nil)
	require.ErrorIs(t, err, ErrUnexpectedType)
}

func TestDecodeTimeout(t *testing.T) {
	c := New("function Decode(fPort, bytes) { while (true) {} }")
	c.Timeout = 20 * time.Millisecond

	_, err := c.Decode(1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution timeout")
}
