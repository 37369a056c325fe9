package device

import (
	"fmt"
	"strings"
)

// Prober answers whether a backend has a usable device at ordinal.
// Implementations must be side-effect free.
type Prober interface {
	Probe(kind Kind, ordinal int) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(kind Kind, ordinal int) bool

func (f ProberFunc) Probe(kind Kind, ordinal int) bool { return f(kind, ordinal) }

// StaticProber reports a fixed set of kinds as present at every ordinal.
type StaticProber map[Kind]bool

func (s StaticProber) Probe(kind Kind, _ int) bool { return s[kind] }

// Resolver turns a requested backend name into a Descriptor.
type Resolver struct {
	Prober   Prober
	Priority []Kind
}

// NewResolver returns a Resolver probing DefaultPriority.
func NewResolver(p Prober) *Resolver {
	return &Resolver{Prober: p, Priority: DefaultPriority}
}

// Resolve maps name ("auto" or a Kind) and ordinal to a Descriptor.
// Named kinds are not probed; the engine reports a missing device itself.
func (r *Resolver) Resolve(name string, ordinal int) (Descriptor, error) {
	if ordinal < 0 {
		return Descriptor{}, fmt.Errorf("invalid device ordinal %d", ordinal)
	}
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || n == Auto {
		k, err := r.detect()
		if err != nil {
			return Descriptor{}, err
		}
		return Descriptor{Kind: k, Ordinal: ordinal}, nil
	}
	k, err := ParseKind(n)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Kind: k, Ordinal: ordinal}, nil
}

func (r *Resolver) detect() (Kind, error) {
	if r.Prober == nil {
		return "", ErrNoBackend
	}
	for _, k := range r.priority() {
		if r.Prober.Probe(k, 0) {
			return k, nil
		}
	}
	return "", ErrNoBackend
}

func (r *Resolver) priority() []Kind {
	if len(r.Priority) == 0 {
		return DefaultPriority
	}
	return r.Priority
}

// Available returns a comma-separated list of kinds with a device at ordinal 0.
func Available(p Prober) string {
	entries := []Kind{}
	for _, k := range Kinds {
		if p != nil && p.Probe(k, 0) {
			entries = append(entries, k)
		}
	}
	if len(entries) == 0 {
		return "none"
	}
	return kindList(entries)
}
