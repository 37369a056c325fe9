// Package engine defines the operations the chat CLI needs from the inference
// runtime. Tokenization, weights, sampling and statistics all live behind
// these interfaces; every call is synchronous.
package engine

import (
	"errors"
	"fmt"

	"github.com/samcharles93/mlcchat/internal/device"
)

// Engine is one chat module bound to a device.
type Engine interface {
	// Reload loads the model in lib with the weights and config at modelPath,
	// discarding any conversation.
	Reload(lib Library, modelPath string) error
	Stopped() (bool, error)
	Encode(text string) error
	Decode() error
	// Message returns the full reply generated so far.
	Message() (string, error)
	ResetChat() error
	RuntimeStatsText() (string, error)
	Role0() (string, error)
	Role1() (string, error)
	Evaluate() error
	Close() error
}

// Library is a loaded model library.
type Library interface {
	Path() string
	Close() error
}

// Runtime creates engines and loads model libraries. It doubles as the device
// prober, since only the runtime knows which backends it was built with.
type Runtime interface {
	device.Prober
	LoadLibrary(path string) (Library, error)
	NewChat(dev device.Descriptor) (Engine, error)
	Close() error
}

// ErrUnsupportedPlatform is returned where no native runtime binding exists.
var ErrUnsupportedPlatform = errors.New("native chat runtime is not supported on this platform")

// CallError is an error raised by the engine during a named operation.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Roles fetches both role labels.
func Roles(e Engine) (string, string, error) {
	r0, err := e.Role0()
	if err != nil {
		return "", "", err
	}
	r1, err := e.Role1()
	if err != nil {
		return "", "", err
	}
	return r0, r1, nil
}
