package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Model is one identifier found under an artifact root.
type Model struct {
	ID        string
	ModelPath string
	Prebuilt  bool
}

// Discover lists the identifiers under root that have a chat config in either
// layout, sorted by identifier. An identifier present in both layouts is
// reported once, with the params layout, matching ResolveModel's search order.
func Discover(root string) ([]Model, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("artifact path is empty")
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("artifact path is not a directory: %s", root)
	}

	seen := map[string]Model{}

	ents, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		if !e.IsDir() || e.Name() == prebuiltDirKey {
			continue
		}
		dir := filepath.Join(root, e.Name(), paramsDirName)
		if _, ok := FindFile([]string{dir}, []string{ConfigName}, []string{jsonSuffix}); ok {
			seen[e.Name()] = Model{ID: e.Name(), ModelPath: dir}
		}
	}

	prebuilt := filepath.Join(root, prebuiltDirKey)
	if ents, err := os.ReadDir(prebuilt); err == nil {
		for _, e := range ents {
			if !e.IsDir() || e.Name() == libDirName {
				continue
			}
			if _, dup := seen[e.Name()]; dup {
				continue
			}
			dir := filepath.Join(prebuilt, e.Name())
			if _, ok := FindFile([]string{dir}, []string{ConfigName}, []string{jsonSuffix}); ok {
				seen[e.Name()] = Model{ID: e.Name(), ModelPath: dir, Prebuilt: true}
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	models := make([]Model, 0, len(seen))
	for _, m := range seen {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}
