// Package artifact locates the files a chat model needs on disk: the chat
// config, the compiled model library and the parameter cache.
//
// Two layouts are understood under an artifact root:
//
//	{root}/{id}/params/mlc-chat-config.json   library beside params/ (or in lib/)
//	{root}/prebuilt/{id}/mlc-chat-config.json library in {root}/prebuilt/lib
package artifact

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/samcharles93/mlcchat/internal/device"
)

const (
	ConfigName     = "mlc-chat-config"
	ParamsName     = "ndarray-cache"
	jsonSuffix     = ".json"
	paramsDirName  = "params"
	libDirName     = "lib"
	prebuiltDirKey = "prebuilt"
)

// QuantizationPresets is the order presets are tried in when quantization is "auto".
var QuantizationPresets = []string{"q3f16_0", "q4f16_0", "q4f32_0", "q0f32", "q0f16"}

// Set is a fully resolved group of artifacts. Paths are absolute and canonical.
type Set struct {
	LocalID     string
	ConfigPath  string
	LibraryPath string
	ParamsDir   string
	ModelPath   string
	Config      ChatConfig
}

// NotFoundError names what was searched when an artifact is missing.
type NotFoundError struct {
	Artifact string
	Dirs     []string
	Names    []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot find %s %s in %s",
		e.Artifact, quoteJoin(e.Names), quoteJoin(e.Dirs))
}

// ErrNoCandidates is returned when ResolveModel has nothing to search for.
var ErrNoCandidates = errors.New("no model identifier to search for")

// Locator resolves model identifiers against one artifact root for one device.
type Locator struct {
	Root        string
	Device      string
	ArchSuffix  string
	LibSuffixes []string
}

// NewLocator returns a Locator using the platform tables of the running binary.
func NewLocator(root string, kind device.Kind) *Locator {
	return &Locator{
		Root:        root,
		Device:      string(kind),
		ArchSuffix:  ArchSuffix(runtime.GOARCH),
		LibSuffixes: LibSuffixes(runtime.GOOS),
	}
}

// ResolveModel searches candidates in order. The first identifier with a chat
// config is selected; library and params must then be found for that same
// identifier or the whole resolution fails.
func (l *Locator) ResolveModel(candidates []string) (Set, error) {
	if len(candidates) == 0 {
		return Set{}, ErrNoCandidates
	}

	var (
		configPath string
		localID    string
		searched   []string
	)
	for _, id := range candidates {
		if strings.TrimSpace(id) == "" {
			return Set{}, fmt.Errorf("empty model identifier in candidates")
		}
		dirs := l.configDirs(id)
		searched = append(searched, dirs...)
		if p, ok := FindFile(dirs, []string{ConfigName}, []string{jsonSuffix}); ok {
			configPath = p
			localID = id
			break
		}
	}
	if configPath == "" {
		return Set{}, &NotFoundError{
			Artifact: "chat config",
			Dirs:     searched,
			Names:    []string{ConfigName + jsonSuffix},
		}
	}

	cfg, err := LoadChatConfig(configPath)
	if err != nil {
		return Set{}, err
	}

	modelPath := filepath.Dir(configPath)

	libName := localID + "-" + l.Device
	libNames := []string{libName}
	if l.ArchSuffix != "" {
		libNames = append(libNames, libName+l.ArchSuffix)
	}
	libDirs := LibraryDirs(modelPath)
	libPath, ok := FindFile(libDirs, libNames, l.LibSuffixes)
	if !ok {
		return Set{}, &NotFoundError{
			Artifact: "library",
			Dirs:     libDirs,
			Names:    probeNames(libNames, l.LibSuffixes),
		}
	}

	paramsJSON, ok := FindFile([]string{modelPath}, []string{ParamsName}, []string{jsonSuffix})
	if !ok {
		return Set{}, &NotFoundError{
			Artifact: "params",
			Dirs:     []string{modelPath},
			Names:    []string{ParamsName + jsonSuffix},
		}
	}

	return Set{
		LocalID:     localID,
		ConfigPath:  configPath,
		LibraryPath: libPath,
		ParamsDir:   filepath.Dir(paramsJSON),
		ModelPath:   modelPath,
		Config:      cfg,
	}, nil
}

func (l *Locator) configDirs(id string) []string {
	return []string{
		filepath.Join(l.Root, id, paramsDirName),
		filepath.Join(l.Root, prebuiltDirKey, id),
	}
}

// LibraryDirs returns the directories searched for a model library. A model
// kept in a params/ directory has its library beside that directory, falling
// back to a lib/ sibling; any other model path uses {parent}/lib.
func LibraryDirs(modelPath string) []string {
	parent := filepath.Dir(modelPath)
	if filepath.Base(modelPath) == paramsDirName {
		return []string{parent, filepath.Join(parent, libDirName)}
	}
	return []string{filepath.Join(parent, libDirName)}
}

// Candidates builds the ordered list of identifiers to search for. An explicit
// localID wins; otherwise model is combined with quantization, and "auto"
// expands to every preset.
func Candidates(localID, model, quantization string, presets []string) ([]string, error) {
	if id := strings.TrimSpace(localID); id != "" {
		return []string{id}, nil
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("--model is required when --local-id is not set")
	}
	quantization = strings.TrimSpace(quantization)
	if quantization == "" || quantization == "auto" {
		if len(presets) == 0 {
			return nil, errors.New("no quantization presets configured")
		}
		out := make([]string, 0, len(presets))
		for _, q := range presets {
			out = append(out, model+"-"+q)
		}
		return out, nil
	}
	return []string{model + "-" + quantization}, nil
}

func probeNames(names, suffixes []string) []string {
	out := make([]string, 0, len(names)*len(suffixes))
	for _, n := range names {
		for _, s := range suffixes {
			out = append(out, n+s)
		}
	}
	return out
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
