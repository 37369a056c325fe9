//go:build !(darwin || linux || freebsd)

package native

import "github.com/samcharles93/mlcchat/internal/engine"

func Open(path string) (engine.Runtime, error) {
	return nil, engine.ErrUnsupportedPlatform
}
