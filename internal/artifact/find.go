package artifact

import (
	"os"
	"path/filepath"
)

// Probes returns every path FindFile tries, in order: directories outermost,
// suffixes innermost.
func Probes(dirs, names, suffixes []string) []string {
	out := make([]string, 0, len(dirs)*len(names)*len(suffixes))
	for _, dir := range dirs {
		for _, name := range names {
			for _, suffix := range suffixes {
				out = append(out, filepath.Join(dir, name+suffix))
			}
		}
	}
	return out
}

// FindFile returns the canonical path of the first probe that exists and is a
// regular file once symlinks are resolved.
func FindFile(dirs, names, suffixes []string) (string, bool) {
	for _, p := range Probes(dirs, names, suffixes) {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		canonical, err := canonicalize(p)
		if err != nil {
			continue
		}
		st, err := os.Stat(canonical)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		return canonical, true
	}
	return "", false
}

func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
