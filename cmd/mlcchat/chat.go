package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/samcharles93/mlcchat/internal/artifact"
	"github.com/samcharles93/mlcchat/internal/console"
	"github.com/samcharles93/mlcchat/internal/device"
	"github.com/samcharles93/mlcchat/internal/engine"
	"github.com/samcharles93/mlcchat/internal/engine/native"
	"github.com/samcharles93/mlcchat/internal/logger"
	"github.com/samcharles93/mlcchat/internal/render"
	"github.com/samcharles93/mlcchat/internal/session"
)

// runtimeLibNames are the base names of the chat runtime library.
var runtimeLibNames = []string{"libmlc_llm", "mlc_llm"}

type chatOptions struct {
	LocalID      string
	Model        string
	Quantization string
	DeviceName   string
	DeviceID     int
	ArtifactPath string
	RuntimeLib   string
	Evaluate     bool

	StreamInterval int
	StreamMode     render.StreamMode
	EraseMode      render.EraseMode
}

// optionsFromFlags validates the parsed flag variables.
func optionsFromFlags() (chatOptions, error) {
	sm, err := render.ParseStreamMode(streamMode)
	if err != nil {
		return chatOptions{}, err
	}
	em, err := render.ParseEraseMode(eraseMode)
	if err != nil {
		return chatOptions{}, err
	}
	if streamInterval < 1 {
		return chatOptions{}, fmt.Errorf("--stream-interval must be at least 1, got %d", streamInterval)
	}
	if deviceID < 0 {
		return chatOptions{}, fmt.Errorf("--device_id must not be negative, got %d", deviceID)
	}
	return chatOptions{
		LocalID:        localID,
		Model:          modelName,
		Quantization:   quantization,
		DeviceName:     deviceName,
		DeviceID:       int(deviceID),
		ArtifactPath:   artifactPath,
		RuntimeLib:     runtimeLib,
		Evaluate:       evaluate,
		StreamInterval: int(streamInterval),
		StreamMode:     sm,
		EraseMode:      em,
	}, nil
}

// host holds the process boundary so tests can swap the runtime and streams.
type host struct {
	openRuntime func(path string) (engine.Runtime, error)
	newInput    func(out io.Writer) console.Reader
	stdout      io.Writer
	stderr      io.Writer
	exeDir      string
	goos        string
	goarch      string
}

func defaultHost() *host {
	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	return &host{
		openRuntime: native.Open,
		newInput:    func(out io.Writer) console.Reader { return console.New(os.Stdin, out) },
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		exeDir:      exeDir,
		goos:        runtime.GOOS,
		goarch:      runtime.GOARCH,
	}
}

// findRuntimeLib returns the runtime library to open. An explicit path is
// used as given.
func (h *host) findRuntimeLib(explicit, root string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, nil
	}
	dirs := []string{filepath.Join(root, "lib")}
	if h.exeDir != "" {
		dirs = append(dirs, h.exeDir)
	}
	suffixes := artifact.LibSuffixes(h.goos)
	if p, ok := artifact.FindFile(dirs, runtimeLibNames, suffixes); ok {
		return p, nil
	}
	names := make([]string, 0, len(runtimeLibNames)*len(suffixes))
	for _, n := range runtimeLibNames {
		for _, s := range suffixes {
			names = append(names, n+s)
		}
	}
	return "", fmt.Errorf("%w; set --runtime-lib", &artifact.NotFoundError{Artifact: "chat runtime", Dirs: dirs, Names: names})
}

// run resolves the device and artifacts, loads the model and then either
// chats until the input ends or runs the benchmark once.
func (h *host) run(ctx context.Context, opts chatOptions) error {
	log := logger.FromContext(ctx)

	libPath, err := h.findRuntimeLib(opts.RuntimeLib, opts.ArtifactPath)
	if err != nil {
		return err
	}
	rt, err := h.openRuntime(libPath)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	log.Debug("chat runtime opened", "path", libPath, "devices", device.Available(rt))

	dev, err := device.NewResolver(rt).Resolve(opts.DeviceName, opts.DeviceID)
	if err != nil {
		return err
	}
	log.Debug("device selected", "device", dev.String(), "requested", opts.DeviceName)

	candidates, err := artifact.Candidates(opts.LocalID, opts.Model, opts.Quantization, artifact.QuantizationPresets)
	if err != nil {
		return err
	}
	loc := &artifact.Locator{
		Root:        opts.ArtifactPath,
		Device:      string(dev.Kind),
		ArchSuffix:  artifact.ArchSuffix(h.goarch),
		LibSuffixes: artifact.LibSuffixes(h.goos),
	}
	set, err := loc.ResolveModel(candidates)
	if err != nil {
		return err
	}

	fmt.Fprintf(h.stdout, "Use config %s\n", set.ConfigPath)
	if m, err := artifact.LoadParamsManifest(set.ParamsDir); err == nil {
		log.Debug("params found", "dir", set.ParamsDir, "shards", m.Shards, "size", artifact.FormatSize(m.TotalBytes))
	} else {
		log.Debug("params manifest unreadable", "dir", set.ParamsDir, "error", err)
	}
	if set.Config.ConvTemplate != "" {
		log.Debug("chat config", "local_id", set.LocalID, "conv_template", set.Config.ConvTemplate)
	}
	fmt.Fprintf(h.stdout, "Use lib %s\n", set.LibraryPath)

	lib, err := rt.LoadLibrary(set.LibraryPath)
	if err != nil {
		return err
	}
	eng, err := rt.NewChat(dev)
	if err != nil {
		_ = lib.Close()
		return err
	}

	if opts.Evaluate {
		defer func() { _ = eng.Close(); _ = lib.Close() }()
		return runEvaluate(ctx, h.stdout, eng, lib, set, dev)
	}

	fmt.Fprintln(h.stdout, "Initializing the chat module...")
	sess, err := session.New(session.Config{
		Engine:         eng,
		Loader:         rt,
		Resolver:       loc,
		Library:        lib,
		ModelPath:      set.ModelPath,
		LocalID:        set.LocalID,
		Input:          h.newInput(h.stdout),
		Out:            h.stdout,
		Err:            h.stderr,
		StreamInterval: opts.StreamInterval,
		StreamMode:     opts.StreamMode,
		EraseMode:      opts.EraseMode,
	})
	if err != nil {
		_ = eng.Close()
		_ = lib.Close()
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("close chat", "error", err)
		}
	}()

	if err := sess.Load(ctx); err != nil {
		return err
	}
	fmt.Fprintln(h.stdout, "Finish loading")
	fmt.Fprint(h.stdout, session.HelpText)

	return sess.Run(ctx)
}
