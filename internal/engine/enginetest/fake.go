// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"fmt"
	"strings"

	"github.com/samcharles93/mlcchat/internal/device"
	"github.com/samcharles93/mlcchat/internal/engine"
)

// Fake is a scripted engine. After Encode(prompt), each Decode advances to the
// next entry of the prompt's reply script; Message returns the current entry.
// Generation stops when the script is exhausted.
type Fake struct {
	// Replies maps a prompt to the successive full messages it produces.
	Replies map[string][]string
	// DefaultReply is used for prompts missing from Replies.
	DefaultReply []string
	// Roles maps a library path to its role labels. Unknown paths use
	// "USER"/"ASSISTANT".
	Roles map[string][2]string
	Stats string
	// Fail makes the named operation ("encode", "decode", ...) return the error.
	Fail map[string]error

	Calls     []string
	Library   string
	ModelPath string
	Resets    int
	Evaluated int
	Closed    bool

	script  []string
	decoded int
}

var _ engine.Engine = (*Fake)(nil)

func (f *Fake) record(op string, args ...string) error {
	call := op
	if len(args) > 0 {
		call += "(" + strings.Join(args, ",") + ")"
	}
	f.Calls = append(f.Calls, call)
	if err := f.Fail[op]; err != nil {
		return &engine.CallError{Op: op, Err: err}
	}
	return nil
}

func (f *Fake) Reload(lib engine.Library, modelPath string) error {
	if err := f.record("reload", lib.Path(), modelPath); err != nil {
		return err
	}
	f.Library = lib.Path()
	f.ModelPath = modelPath
	f.script = nil
	f.decoded = 0
	return nil
}

func (f *Fake) Stopped() (bool, error) {
	if err := f.record("stopped"); err != nil {
		return false, err
	}
	return f.decoded >= len(f.script), nil
}

func (f *Fake) Encode(text string) error {
	if err := f.record("encode", text); err != nil {
		return err
	}
	if r, ok := f.Replies[text]; ok {
		f.script = r
	} else {
		f.script = f.DefaultReply
	}
	f.decoded = 0
	return nil
}

func (f *Fake) Decode() error {
	if err := f.record("decode"); err != nil {
		return err
	}
	if f.decoded >= len(f.script) {
		return &engine.CallError{Op: "decode", Err: fmt.Errorf("decode called after stop")}
	}
	f.decoded++
	return nil
}

func (f *Fake) Message() (string, error) {
	if err := f.record("get_message"); err != nil {
		return "", err
	}
	if f.decoded == 0 {
		return "", nil
	}
	return f.script[f.decoded-1], nil
}

func (f *Fake) ResetChat() error {
	if err := f.record("reset_chat"); err != nil {
		return err
	}
	f.Resets++
	f.script = nil
	f.decoded = 0
	return nil
}

func (f *Fake) RuntimeStatsText() (string, error) {
	if err := f.record("runtime_stats_text"); err != nil {
		return "", err
	}
	return f.Stats, nil
}

func (f *Fake) roles() [2]string {
	if r, ok := f.Roles[f.Library]; ok {
		return r
	}
	return [2]string{"USER", "ASSISTANT"}
}

func (f *Fake) Role0() (string, error) {
	if err := f.record("get_role0"); err != nil {
		return "", err
	}
	return f.roles()[0], nil
}

func (f *Fake) Role1() (string, error) {
	if err := f.record("get_role1"); err != nil {
		return "", err
	}
	return f.roles()[1], nil
}

func (f *Fake) Evaluate() error {
	if err := f.record("evaluate"); err != nil {
		return err
	}
	f.Evaluated++
	return nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Library is a named stand-in for a loaded model library.
type Library struct {
	Name   string
	Closed bool
}

func (l *Library) Path() string { return l.Name }

func (l *Library) Close() error {
	l.Closed = true
	return nil
}

// Runtime hands out a single Fake engine and records library loads.
type Runtime struct {
	Devices device.StaticProber
	Engine  *Fake
	// LoadErr fails LoadLibrary for the given paths.
	LoadErr map[string]error

	Loaded  []*Library
	Created []device.Descriptor
	Closed  bool
}

var _ engine.Runtime = (*Runtime)(nil)

func (r *Runtime) Probe(kind device.Kind, ordinal int) bool {
	return r.Devices.Probe(kind, ordinal)
}

func (r *Runtime) LoadLibrary(path string) (engine.Library, error) {
	if err := r.LoadErr[path]; err != nil {
		return nil, &engine.CallError{Op: "load library " + path, Err: err}
	}
	lib := &Library{Name: path}
	r.Loaded = append(r.Loaded, lib)
	return lib, nil
}

func (r *Runtime) NewChat(dev device.Descriptor) (engine.Engine, error) {
	r.Created = append(r.Created, dev)
	if r.Engine == nil {
		r.Engine = &Fake{}
	}
	return r.Engine, nil
}

func (r *Runtime) Close() error {
	r.Closed = true
	return nil
}
