//go:build darwin || linux || freebsd

// Package native binds the chat runtime shared library without cgo. The
// library must export the flat mlc_chat_* C functions bound below; a runtime
// that only exposes TVM packed functions needs a shim exporting them.
package native

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/samcharles93/mlcchat/internal/device"
	"github.com/samcharles93/mlcchat/internal/engine"
)

func init() {
	// mlc_chat_last_error and device contexts are thread-local; keep every
	// call on the main thread.
	runtime.LockOSThread()
}

// Runtime is an open chat runtime library.
type Runtime struct {
	path   string
	handle uintptr

	deviceExists func(devType, devID int32) bool
	lastError    func() unsafe.Pointer

	moduleLoad func(path string) uintptr
	moduleFree func(mod uintptr)

	chatCreate     func(devType, devID int32) uintptr
	chatFree       func(chat uintptr)
	chatReload     func(chat, mod uintptr, modelPath string) int32
	chatStopped    func(chat uintptr) int32
	chatEncode     func(chat uintptr, text string) int32
	chatDecode     func(chat uintptr) int32
	chatGetMessage func(chat uintptr) unsafe.Pointer
	chatReset      func(chat uintptr) int32
	chatStatsText  func(chat uintptr) unsafe.Pointer
	chatGetRole0   func(chat uintptr) unsafe.Pointer
	chatGetRole1   func(chat uintptr) unsafe.Pointer
	chatEvaluate   func(chat uintptr) int32
}

// Open loads the runtime at path and binds every entry point. A missing
// symbol fails the whole open.
func Open(path string) (engine.Runtime, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("open chat runtime %s: %w", path, err)
	}
	rt := &Runtime{path: path, handle: handle}

	bindings := []struct {
		name string
		fptr any
	}{
		{"mlc_chat_device_exists", &rt.deviceExists},
		{"mlc_chat_last_error", &rt.lastError},
		{"mlc_chat_module_load", &rt.moduleLoad},
		{"mlc_chat_module_free", &rt.moduleFree},
		{"mlc_chat_create", &rt.chatCreate},
		{"mlc_chat_free", &rt.chatFree},
		{"mlc_chat_reload", &rt.chatReload},
		{"mlc_chat_stopped", &rt.chatStopped},
		{"mlc_chat_encode", &rt.chatEncode},
		{"mlc_chat_decode", &rt.chatDecode},
		{"mlc_chat_get_message", &rt.chatGetMessage},
		{"mlc_chat_reset", &rt.chatReset},
		{"mlc_chat_stats_text", &rt.chatStatsText},
		{"mlc_chat_get_role0", &rt.chatGetRole0},
		{"mlc_chat_get_role1", &rt.chatGetRole1},
		{"mlc_chat_evaluate", &rt.chatEvaluate},
	}
	for _, b := range bindings {
		sym, err := purego.Dlsym(handle, b.name)
		if err != nil {
			_ = purego.Dlclose(handle)
			return nil, fmt.Errorf("chat runtime %s: missing symbol %s: %w", path, b.name, err)
		}
		purego.RegisterFunc(b.fptr, sym)
	}
	return rt, nil
}

func (rt *Runtime) Probe(kind device.Kind, ordinal int) bool {
	code := kind.DLPackCode()
	if code == 0 {
		return false
	}
	return rt.deviceExists(int32(code), int32(ordinal))
}

func (rt *Runtime) LoadLibrary(path string) (engine.Library, error) {
	mod := rt.moduleLoad(path)
	if mod == 0 {
		return nil, rt.fail("load library " + path)
	}
	return &library{rt: rt, handle: mod, path: path}, nil
}

func (rt *Runtime) NewChat(dev device.Descriptor) (engine.Engine, error) {
	h := rt.chatCreate(int32(dev.Kind.DLPackCode()), int32(dev.Ordinal))
	if h == 0 {
		return nil, rt.fail("create")
	}
	return &chat{rt: rt, handle: h}, nil
}

func (rt *Runtime) Close() error {
	if rt.handle == 0 {
		return nil
	}
	err := purego.Dlclose(rt.handle)
	rt.handle = 0
	return err
}

func (rt *Runtime) fail(op string) error {
	msg, ok := goString(rt.lastError())
	if !ok || msg == "" {
		msg = "unknown error"
	}
	return &engine.CallError{Op: op, Err: errors.New(msg)}
}

type library struct {
	rt     *Runtime
	handle uintptr
	path   string
}

func (l *library) Path() string { return l.path }

func (l *library) Close() error {
	if l.handle != 0 {
		l.rt.moduleFree(l.handle)
		l.handle = 0
	}
	return nil
}

type chat struct {
	rt     *Runtime
	handle uintptr
}

func (c *chat) status(op string, rc int32) error {
	if rc != 0 {
		return c.rt.fail(op)
	}
	return nil
}

func (c *chat) text(op string, p unsafe.Pointer) (string, error) {
	s, ok := goString(p)
	if !ok {
		return "", c.rt.fail(op)
	}
	return s, nil
}

func (c *chat) Reload(lib engine.Library, modelPath string) error {
	l, ok := lib.(*library)
	if !ok || l.rt != c.rt {
		return &engine.CallError{Op: "reload", Err: fmt.Errorf("library %s was not loaded by this runtime", lib.Path())}
	}
	return c.status("reload", c.rt.chatReload(c.handle, l.handle, modelPath))
}

func (c *chat) Stopped() (bool, error) {
	rc := c.rt.chatStopped(c.handle)
	if rc < 0 {
		return false, c.rt.fail("stopped")
	}
	return rc == 1, nil
}

func (c *chat) Encode(text string) error {
	return c.status("encode", c.rt.chatEncode(c.handle, text))
}

func (c *chat) Decode() error {
	return c.status("decode", c.rt.chatDecode(c.handle))
}

func (c *chat) Message() (string, error) {
	return c.text("get_message", c.rt.chatGetMessage(c.handle))
}

func (c *chat) ResetChat() error {
	return c.status("reset_chat", c.rt.chatReset(c.handle))
}

func (c *chat) RuntimeStatsText() (string, error) {
	return c.text("runtime_stats_text", c.rt.chatStatsText(c.handle))
}

func (c *chat) Role0() (string, error) {
	return c.text("get_role0", c.rt.chatGetRole0(c.handle))
}

func (c *chat) Role1() (string, error) {
	return c.text("get_role1", c.rt.chatGetRole1(c.handle))
}

func (c *chat) Evaluate() error {
	return c.status("evaluate", c.rt.chatEvaluate(c.handle))
}

func (c *chat) Close() error {
	if c.handle != 0 {
		c.rt.chatFree(c.handle)
		c.handle = 0
	}
	return nil
}

// goString copies a NUL-terminated C string owned by the runtime.
func goString(p unsafe.Pointer) (string, bool) {
	if p == nil {
		return "", false
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n)), true
}
