// Package codec runs user supplied JavaScript decoders over application payloads.
package codec

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robertkrimen/otto"
)

// DefaultTimeout bounds a single script execution
const DefaultTimeout = 100 * time.Millisecond

// ErrUnexpectedType is returned when Decode does not return an object
var ErrUnexpectedType = errors.New("codec returned unexpected data type")

// Codec holds a script defining `function Decode(fPort, bytes)`.
type Codec struct {
	script  string
	Timeout time.Duration
}

// New returns a codec for the given script source
func New(script string) *Codec {
	return &Codec{script: script, Timeout: DefaultTimeout}
}

// Load reads the script from path
func Load(path string) (*Codec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read codec script: %w", err)
	}
	return New(string(b)), nil
}

// Decode runs the script against the decrypted application payload
func (c *Codec) Decode(fPort uint8, data []byte) (map[string]interface{}, error) {
	script := c.script + "\n\nDecode(fPort, bytes);\n"

	vars := map[string]interface{}{
		"fPort": fPort,
		"bytes": data,
	}

	v, err := c.executeJS(script, vars)
	if err != nil {
		return nil, err
	}

	out, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedType, v)
	}
	return out, nil
}

func (c *Codec) executeJS(script string, vars map[string]interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	vm.SetStackDepthLimit(32)

	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt <- func() {
			panic(errors.New("execution timeout"))
		}
	})
	defer timer.Stop()

	var val otto.Value
	val, err = vm.Run(script)
	if err != nil {
		return nil, err
	}

	return val.Export()
}
