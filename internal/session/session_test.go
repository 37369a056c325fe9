package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/mlcchat/internal/artifact"
	"github.com/samcharles93/mlcchat/internal/console"
	"github.com/samcharles93/mlcchat/internal/engine"
	"github.com/samcharles93/mlcchat/internal/engine/enginetest"
	"github.com/samcharles93/mlcchat/internal/logger"
	"github.com/samcharles93/mlcchat/internal/render"
	"github.com/samcharles93/mlcchat/internal/textseg"
)

type stubResolver struct {
	sets   map[string]artifact.Set
	err    error
	called []string
}

func (r *stubResolver) ResolveModel(candidates []string) (artifact.Set, error) {
	r.called = append(r.called, candidates...)
	for _, c := range candidates {
		if set, ok := r.sets[c]; ok {
			return set, nil
		}
	}
	if r.err != nil {
		return artifact.Set{}, r.err
	}
	return artifact.Set{}, &artifact.NotFoundError{Artifact: "chat config", Dirs: candidates, Names: []string{"mlc-chat-config.json"}}
}

type harness struct {
	eng      *enginetest.Fake
	rt       *enginetest.Runtime
	lib      *enginetest.Library
	resolver *stubResolver
	out      bytes.Buffer
	errOut   bytes.Buffer
	sess     *Session
}

func newHarness(t *testing.T, input string, fake *enginetest.Fake, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		eng:      fake,
		rt:       &enginetest.Runtime{Engine: fake},
		lib:      &enginetest.Library{Name: "/dist/a/a-cuda.so"},
		resolver: &stubResolver{},
	}
	cfg := Config{
		Engine:         fake,
		Loader:         h.rt,
		Resolver:       h.resolver,
		Library:        h.lib,
		ModelPath:      "/dist/a/params",
		LocalID:        "a",
		Input:          console.NewPlain(strings.NewReader(input), &h.out),
		Out:            &h.out,
		Err:            &h.errOut,
		StreamInterval: 2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sess, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.sess = sess
	return h
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.JSON(io.Discard, slog.LevelDebug))
}

func TestRunStreamsReply(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{Replies: map[string][]string{
		"hi": {"H", "He", "Hel", "Hello"},
	}}
	h := newHarness(t, "hi\n", fake, nil)

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, want := h.out.String(), "USER: ASSISTANT: Hello\nUSER: "; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}

	want := []string{
		"reload(/dist/a/a-cuda.so,/dist/a/params)",
		"get_role0", "get_role1",
		"encode(hi)",
		// step 0: redraw
		"stopped", "decode", "stopped", "get_message",
		// step 1: skipped by the interval
		"stopped", "decode", "stopped",
		// step 2: redraw
		"stopped", "decode", "stopped", "get_message",
		// step 3: stopped after decode forces a redraw
		"stopped", "decode", "stopped", "get_message",
		"stopped",
	}
	if diff := cmp.Diff(want, fake.Calls); diff != "" {
		t.Fatalf("engine calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRedrawErasesChangedTail(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{Replies: map[string][]string{
		"x": {"ab", "ac", "ac 世界"},
	}}
	h := newHarness(t, "x\n", fake, func(c *Config) { c.StreamInterval = 1 })

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := h.out.String(), "USER: ASSISTANT: ab\b \bc 世界\nUSER: "; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestRunRendersEachTurnFromScratch(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{Replies: map[string][]string{
		"one": {"same"},
		"two": {"same"},
	}}
	h := newHarness(t, "one\ntwo\n", fake, nil)

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Count(h.out.String(), "ASSISTANT: same\n"); got != 2 {
		t.Fatalf("expected both replies printed in full, got %q", h.out.String())
	}
}

func TestRunQuietModePrintsFinalMessageOnly(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{Replies: map[string][]string{
		"hi": {"H", "He", "Hel", "Hello"},
	}}
	h := newHarness(t, "hi\n", fake, func(c *Config) { c.StreamMode = render.StreamQuiet })

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := h.out.String(), "USER: ASSISTANT: Hello\nUSER: "; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	var messages int
	for _, c := range fake.Calls {
		if c == "get_message" {
			messages++
		}
	}
	if messages != 1 {
		t.Fatalf("quiet mode fetched the message %d times, want 1", messages)
	}
}

func TestRunSpecialCommands(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{Stats: "prefill: 10.0 tok/s, decode: 5.0 tok/s"}
	h := newHarness(t, "/help\n/stats\n/reset\n/exitnow\n/exit\nafter\n", fake, nil)

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := h.out.String()
	for _, want := range []string{
		HelpText,
		"prefill: 10.0 tok/s, decode: 5.0 tok/s\n",
		"RESET CHAT SUCCESS\n",
		"ASSISTANT: \n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if fake.Resets != 1 {
		t.Fatalf("resets = %d, want 1", fake.Resets)
	}
	for _, c := range fake.Calls {
		if c == "encode(after)" {
			t.Fatal("input after /exit was processed")
		}
	}
	if !contains(fake.Calls, "encode(/exitnow)") {
		t.Fatalf("/exitnow should be sent as a prompt, calls: %v", fake.Calls)
	}
}

func TestRunReloadSameModel(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{}
	h := newHarness(t, "/reload\n", fake, nil)

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(h.out.String(), "RELOAD THE SAME MODEL SUCCESS\n") {
		t.Fatalf("missing reload acknowledgement: %q", h.out.String())
	}
	reloads := 0
	for _, c := range fake.Calls {
		if c == "reload(/dist/a/a-cuda.so,/dist/a/params)" {
			reloads++
		}
	}
	if reloads != 2 {
		t.Fatalf("expected initial load and reload with the same artifacts, calls: %v", fake.Calls)
	}
	if len(h.rt.Loaded) != 0 {
		t.Fatalf("reloading the same model must not load a library, loaded %d", len(h.rt.Loaded))
	}
}

func TestRunReloadNewModel(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{Roles: map[string][2]string{
		"/dist/b/b-cuda.so": {"Human", "Bot"},
	}}
	h := newHarness(t, "/reload b\n", fake, nil)
	h.resolver.sets = map[string]artifact.Set{
		"b": {
			LocalID:     "b",
			ConfigPath:  "/dist/b/params/mlc-chat-config.json",
			LibraryPath: "/dist/b/b-cuda.so",
			ModelPath:   "/dist/b/params",
		},
	}

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantTail := "Use config /dist/b/params/mlc-chat-config.json\n" +
		"Use lib /dist/b/b-cuda.so\n" +
		"LOAD MODEL b SUCCESS\nHuman: "
	if !strings.Contains(h.out.String(), wantTail) {
		t.Fatalf("expected new roles after reload, got %q", h.out.String())
	}
	if diff := cmp.Diff([]string{"b"}, h.resolver.called); diff != "" {
		t.Fatalf("resolver candidates mismatch (-want +got):\n%s", diff)
	}
	if r0, r1 := h.sess.Roles(); r0 != "Human" || r1 != "Bot" {
		t.Fatalf("roles = %q/%q, want Human/Bot", r0, r1)
	}
	if got := h.sess.ModelPath(); got != "/dist/b/params" {
		t.Fatalf("model path = %q", got)
	}
	if got := h.sess.Library().Path(); got != "/dist/b/b-cuda.so" {
		t.Fatalf("library = %q", got)
	}
	if !h.lib.Closed {
		t.Fatal("previous library was not closed")
	}
	if fake.ModelPath != "/dist/b/params" {
		t.Fatalf("engine reloaded with %q", fake.ModelPath)
	}
}

func TestRunReloadLookupFailureKeepsState(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{}
	h := newHarness(t, "/reload missing\n/stats\n", fake, nil)

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run should continue after a failed lookup: %v", err)
	}

	if !strings.Contains(h.errOut.String(), "error: reload missing: cannot find chat config") {
		t.Fatalf("diagnostic = %q", h.errOut.String())
	}
	if strings.Contains(h.out.String(), "LOAD MODEL") || strings.Contains(h.out.String(), "Use config") {
		t.Fatalf("unexpected success message: %q", h.out.String())
	}
	if r0, r1 := h.sess.Roles(); r0 != "USER" || r1 != "ASSISTANT" {
		t.Fatalf("roles changed to %q/%q", r0, r1)
	}
	if got := h.sess.ModelPath(); got != "/dist/a/params" {
		t.Fatalf("model path changed to %q", got)
	}
	if h.lib.Closed {
		t.Fatal("current library closed after failed lookup")
	}
	if !contains(fake.Calls, "runtime_stats_text") {
		t.Fatalf("session did not continue after failed reload, calls: %v", fake.Calls)
	}
}

func TestRunReloadLibraryFailureIsFatal(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{}
	h := newHarness(t, "/reload b\n", fake, nil)
	h.resolver.sets = map[string]artifact.Set{
		"b": {LocalID: "b", LibraryPath: "/dist/b/b-cuda.so", ModelPath: "/dist/b/params"},
	}
	h.rt.LoadErr = map[string]error{"/dist/b/b-cuda.so": errors.New("bad ELF")}

	err := h.sess.Run(quietContext())
	var callErr *engine.CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected engine call error, got %v", err)
	}
}

func TestRunEngineErrorIsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("device lost")
	fake := &enginetest.Fake{
		DefaultReply: []string{"a", "ab"},
		Fail:         map[string]error{"decode": boom},
	}
	h := newHarness(t, "hi\n", fake, nil)

	err := h.sess.Run(quietContext())
	if !errors.Is(err, boom) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	var callErr *engine.CallError
	if !errors.As(err, &callErr) || callErr.Op != "decode" {
		t.Fatalf("expected decode call error, got %v", err)
	}
}

func TestRunInvalidUTF8IsFatal(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{Replies: map[string][]string{"hi": {"ok\xff"}}}
	h := newHarness(t, "hi\n", fake, nil)

	err := h.sess.Run(quietContext())
	if !errors.Is(err, textseg.ErrInvalidUTF8) {
		t.Fatalf("expected invalid UTF-8 error, got %v", err)
	}
}

func TestRunCancelledContextStopsBeforeRead(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{}
	h := newHarness(t, "hi\n", fake, nil)

	ctx, cancel := context.WithCancel(quietContext())
	cancel()
	if err := h.sess.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if contains(fake.Calls, "encode(hi)") {
		t.Fatal("prompt read after cancellation")
	}
}

func TestRunCancelInterruptsPendingRead(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	fake := &enginetest.Fake{}
	var out syncBuffer
	h := newHarness(t, "", fake, func(c *Config) {
		c.Input = console.NewPlain(pr, &out)
	})

	ctx, cancel := context.WithCancel(quietContext())
	done := make(chan error, 1)
	go func() { done <- h.sess.Run(ctx) }()

	out.waitFor(t, "USER: ")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	for _, c := range fake.Calls {
		if strings.HasPrefix(c, "encode") {
			t.Fatalf("nothing should be generated after cancellation, calls: %v", fake.Calls)
		}
	}
}

func TestLoadFailure(t *testing.T) {
	t.Parallel()

	fake := &enginetest.Fake{Fail: map[string]error{"reload": errors.New("missing weights")}}
	h := newHarness(t, "", fake, nil)

	if err := h.sess.Load(quietContext()); err == nil || !strings.Contains(err.Error(), "initialize chat") {
		t.Fatalf("expected initialization error, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Engine:  &enginetest.Fake{},
			Library: &enginetest.Library{Name: "lib"},
			Input:   console.NewPlain(strings.NewReader(""), io.Discard),
			Out:     io.Discard,
		}
	}

	t.Run("defaults", func(t *testing.T) {
		s, err := New(base())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if s.interval != DefaultStreamInterval {
			t.Fatalf("interval = %d, want %d", s.interval, DefaultStreamInterval)
		}
		if s.stream != render.StreamTypewriter {
			t.Fatalf("stream mode = %q", s.stream)
		}
		if s.ID() == "" {
			t.Fatal("empty session id")
		}
	})

	t.Run("negative interval", func(t *testing.T) {
		cfg := base()
		cfg.StreamInterval = -1
		if _, err := New(cfg); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing engine", func(t *testing.T) {
		cfg := base()
		cfg.Engine = nil
		if _, err := New(cfg); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing library", func(t *testing.T) {
		cfg := base()
		cfg.Library = nil
		if _, err := New(cfg); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestRunReloadWithLocator(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for path, content := range map[string]string{
		"b-q4f16_0/params/mlc-chat-config.json": `{"local_id":"b-q4f16_0"}`,
		"b-q4f16_0/params/ndarray-cache.json":   `{"records":[]}`,
		"b-q4f16_0/lib/b-q4f16_0-cuda.so":       "lib",
	} {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fake := &enginetest.Fake{}
	h := newHarness(t, "/reload b-q4f16_0\n", fake, func(c *Config) {
		c.Resolver = &artifact.Locator{Root: root, Device: "cuda", LibSuffixes: []string{".so"}}
	})

	if err := h.sess.Run(quietContext()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(h.out.String(), "LOAD MODEL b-q4f16_0 SUCCESS") {
		t.Fatalf("reload failed: out=%q err=%q", h.out.String(), h.errOut.String())
	}
	if !strings.Contains(h.out.String(), "Use config ") ||
		!strings.Contains(h.out.String(), filepath.Join("lib", "b-q4f16_0-cuda.so")+"\nLOAD MODEL") {
		t.Fatalf("reload should report the library it uses: %q", h.out.String())
	}
	if len(h.rt.Loaded) != 1 || filepath.Base(h.rt.Loaded[0].Name) != "b-q4f16_0-cuda.so" {
		t.Fatalf("unexpected library loads: %+v", h.rt.Loaded)
	}
	if filepath.Base(h.sess.ModelPath()) != "params" {
		t.Fatalf("model path = %q", h.sess.ModelPath())
	}
}

func contains(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

// syncBuffer is a bytes.Buffer that is safe to write from a reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) waitFor(t *testing.T, s string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		ok := strings.Contains(b.buf.String(), s)
		b.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q", s)
}
