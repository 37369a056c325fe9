// Package device names the compute backends a model can run on and picks one
// when the user asks for auto.
package device

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a compute backend.
type Kind string

const (
	CUDA   Kind = "cuda"
	Metal  Kind = "metal"
	Vulkan Kind = "vulkan"
	OpenCL Kind = "opencl"
	CPU    Kind = "cpu"

	// Auto is accepted by Resolve but never stored in a Descriptor.
	Auto = "auto"
)

// Kinds lists every backend a Descriptor may carry.
var Kinds = []Kind{CUDA, Metal, Vulkan, OpenCL, CPU}

// DefaultPriority is the order "auto" probes backends in. CPU is never
// auto-selected.
var DefaultPriority = []Kind{CUDA, Metal, Vulkan, OpenCL}

// ErrNoBackend is returned when "auto" finds no usable device.
var ErrNoBackend = errors.New("cannot auto detect device-name: no backend found")

// UnknownKindError is returned for backend names outside Kinds.
type UnknownKindError struct {
	Name string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("do not recognize device name %q (expected auto, %s)", e.Name, kindList(Kinds))
}

// Descriptor identifies one device of one backend.
type Descriptor struct {
	Kind    Kind
	Ordinal int
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%d", d.Kind, d.Ordinal)
}

// DLPackCode returns the DLPack device type used by the native runtime.
func (k Kind) DLPackCode() int {
	switch k {
	case CPU:
		return 1
	case CUDA:
		return 2
	case OpenCL:
		return 4
	case Vulkan:
		return 7
	case Metal:
		return 8
	default:
		return 0
	}
}

// ParseKind validates a backend name. Matching is case-insensitive.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, k := range Kinds {
		if string(k) == n {
			return k, nil
		}
	}
	return "", &UnknownKindError{Name: name}
}

func kindList(kinds []Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
