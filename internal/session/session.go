// Package session runs the interactive chat loop: it reads lines, dispatches
// special commands and streams generated replies to the terminal.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/mlcchat/internal/artifact"
	"github.com/samcharles93/mlcchat/internal/console"
	"github.com/samcharles93/mlcchat/internal/engine"
	"github.com/samcharles93/mlcchat/internal/logger"
	"github.com/samcharles93/mlcchat/internal/render"
)

// DefaultStreamInterval is the number of decode steps between redraws.
const DefaultStreamInterval = 2

// HelpText lists the special commands.
const HelpText = `You can use the following special commands:
  /help               print the special commands
  /exit               quit the cli
  /stats              print out the latest stats (token/sec)
  /reset              restart a fresh chat
  /reload [model_id]  reload model "model_id" from disk, or reload the current model if model_id is not specified

`

// ModelResolver finds the artifacts for a model identifier.
type ModelResolver interface {
	ResolveModel(candidates []string) (artifact.Set, error)
}

// LibraryLoader loads a compiled model library.
type LibraryLoader interface {
	LoadLibrary(path string) (engine.Library, error)
}

// Config wires a Session to its collaborators. Library and ModelPath are the
// artifacts the engine is initialized with.
type Config struct {
	Engine    engine.Engine
	Loader    LibraryLoader
	Resolver  ModelResolver
	Library   engine.Library
	ModelPath string
	LocalID   string

	Input console.Reader
	Out   io.Writer
	// Err receives recoverable diagnostics, such as a failed /reload lookup.
	Err io.Writer

	StreamInterval int
	StreamMode     render.StreamMode
	EraseMode      render.EraseMode
}

// Session is one chat conversation with a loaded engine. It is driven from a
// single goroutine.
type Session struct {
	id        string
	eng       engine.Engine
	loader    LibraryLoader
	resolver  ModelResolver
	lib       engine.Library
	modelPath string
	localID   string

	in       console.Reader
	out      io.Writer
	errOut   io.Writer
	redraw   *render.Redrawer
	interval int
	stream   render.StreamMode

	role0, role1 string
	loaded       bool
}

// New validates cfg and returns a Session. Load must be called before Run.
func New(cfg Config) (*Session, error) {
	if cfg.Engine == nil {
		return nil, errors.New("session: engine is required")
	}
	if cfg.Library == nil {
		return nil, errors.New("session: model library is required")
	}
	if cfg.Input == nil || cfg.Out == nil {
		return nil, errors.New("session: input and output are required")
	}
	if cfg.StreamInterval < 0 {
		return nil, fmt.Errorf("session: stream interval must be positive, got %d", cfg.StreamInterval)
	}
	if cfg.StreamInterval == 0 {
		cfg.StreamInterval = DefaultStreamInterval
	}
	if cfg.StreamMode == "" {
		cfg.StreamMode = render.StreamTypewriter
	}
	if cfg.EraseMode == "" {
		cfg.EraseMode = render.EraseCluster
	}
	if cfg.Err == nil {
		cfg.Err = cfg.Out
	}

	return &Session{
		id:        uuid.NewString(),
		eng:       cfg.Engine,
		loader:    cfg.Loader,
		resolver:  cfg.Resolver,
		lib:       cfg.Library,
		modelPath: cfg.ModelPath,
		localID:   cfg.LocalID,
		in:        cfg.Input,
		out:       cfg.Out,
		errOut:    cfg.Err,
		redraw:    render.NewRedrawer(cfg.Out, cfg.EraseMode),
		interval:  cfg.StreamInterval,
		stream:    cfg.StreamMode,
	}, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Roles returns the current prompt labels.
func (s *Session) Roles() (string, string) { return s.role0, s.role1 }

// ModelPath is the directory of the loaded model.
func (s *Session) ModelPath() string { return s.modelPath }

// Library is the currently loaded model library.
func (s *Session) Library() engine.Library { return s.lib }

// Load initializes the engine with the configured artifacts and reads the
// role labels.
func (s *Session) Load(ctx context.Context) error {
	log := logger.FromContext(ctx).With("session", s.id)
	start := time.Now()
	if err := s.eng.Reload(s.lib, s.modelPath); err != nil {
		return fmt.Errorf("initialize chat: %w", err)
	}
	if err := s.refreshRoles(); err != nil {
		return err
	}
	s.loaded = true
	log.Debug("model loaded", "model", s.modelPath, "lib", s.lib.Path(), "duration", time.Since(start))
	return nil
}

// Run reads and dispatches lines until /exit, end of input or ctx is done.
// A cancelled context interrupts a pending read on readers that support it,
// and is otherwise observed between lines. Engine failures and
// malformed engine output end the session with an error.
func (s *Session) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).With("session", s.id)
	if !s.loaded {
		if err := s.Load(ctx); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			log.Debug("session interrupted", "reason", err)
			return nil
		}
		line, err := s.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				log.Debug("session interrupted", "reason", ctx.Err())
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		cmd := ParseCommand(line)
		switch cmd.Kind {
		case Exit:
			return nil
		case Help:
			if _, err := io.WriteString(s.out, HelpText); err != nil {
				return err
			}
		case Stats:
			text, err := s.eng.RuntimeStatsText()
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			fmt.Fprintln(s.out, text)
		case Reset:
			if err := s.eng.ResetChat(); err != nil {
				return fmt.Errorf("reset chat: %w", err)
			}
			fmt.Fprintln(s.out, "RESET CHAT SUCCESS")
		case Reload:
			if err := s.reload(ctx, cmd.Arg); err != nil {
				return err
			}
		case Prompt:
			if err := s.generate(ctx, cmd.Arg); err != nil {
				return err
			}
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	prompt := s.role0 + ": "
	if r, ok := s.in.(console.ContextReader); ok {
		return r.ReadLineContext(ctx, prompt)
	}
	return s.in.ReadLine(prompt)
}

// Close releases the engine and the current model library.
func (s *Session) Close() error {
	return errors.Join(s.eng.Close(), s.lib.Close())
}

func (s *Session) refreshRoles() error {
	r0, r1, err := engine.Roles(s.eng)
	if err != nil {
		return fmt.Errorf("read roles: %w", err)
	}
	s.role0, s.role1 = r0, r1
	return nil
}

// reload re-initializes the engine. With no id the current artifacts are
// reused. A model that cannot be found is reported and the session keeps its
// current model; failures after that point are returned.
func (s *Session) reload(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).With("session", s.id)

	if id == "" {
		if err := s.eng.Reload(s.lib, s.modelPath); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		fmt.Fprintln(s.out, "RELOAD THE SAME MODEL SUCCESS")
		return nil
	}

	if s.resolver == nil || s.loader == nil {
		return errors.New("reload: no model resolver configured")
	}
	set, err := s.resolver.ResolveModel([]string{id})
	if err != nil {
		log.Debug("reload lookup failed", "model", id, "error", err)
		fmt.Fprintf(s.errOut, "error: reload %s: %v\n", id, err)
		return nil
	}
	fmt.Fprintf(s.out, "Use config %s\n", set.ConfigPath)
	fmt.Fprintf(s.out, "Use lib %s\n", set.LibraryPath)

	lib, err := s.loader.LoadLibrary(set.LibraryPath)
	if err != nil {
		return fmt.Errorf("reload %s: %w", id, err)
	}
	if err := s.eng.Reload(lib, set.ModelPath); err != nil {
		_ = lib.Close()
		return fmt.Errorf("reload %s: %w", id, err)
	}

	prev := s.lib
	s.lib, s.modelPath, s.localID = lib, set.ModelPath, set.LocalID
	if prev != nil && prev != lib {
		if err := prev.Close(); err != nil {
			log.Warn("close previous model library", "lib", prev.Path(), "error", err)
		}
	}
	if err := s.refreshRoles(); err != nil {
		return err
	}

	log.Info("model reloaded", "model", set.LocalID, "path", set.ModelPath, "lib", set.LibraryPath)
	fmt.Fprintf(s.out, "LOAD MODEL %s SUCCESS\n", id)
	return nil
}

// generate runs one turn. The screen is redrawn every interval decode steps
// and once more when the engine stops, always from a message fetched after
// the latest decode.
func (s *Session) generate(ctx context.Context, text string) error {
	log := logger.FromContext(ctx).With("session", s.id)
	start := time.Now()

	fmt.Fprintf(s.out, "%s: ", s.role1)
	s.redraw.Reset()
	if err := s.eng.Encode(text); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	steps := 0
	for {
		stopped, err := s.eng.Stopped()
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		if stopped {
			break
		}
		if err := s.eng.Decode(); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		i := steps
		steps++

		if s.stream == render.StreamQuiet {
			continue
		}
		if stopped, err = s.eng.Stopped(); err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		if i%s.interval == 0 || stopped {
			if err := s.show(); err != nil {
				return err
			}
		}
	}

	if s.stream == render.StreamQuiet {
		if err := s.show(); err != nil {
			return err
		}
	}
	fmt.Fprintln(s.out)

	log.Debug("turn complete",
		"model", s.localID,
		"steps", steps,
		"chars", len(s.redraw.Rendered()),
		"duration", time.Since(start))
	return nil
}

func (s *Session) show() error {
	msg, err := s.eng.Message()
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	return s.redraw.Update(msg)
}
