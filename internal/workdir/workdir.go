// Package workdir tracks the directory that relative document resources
// resolve against. The directory is mutable at runtime through the chdir
// control command, so callers must resolve through the Resolver on every use
// instead of caching absolute paths.
package workdir

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// AssetPrefix is the URL path under which resolved local files are served.
const AssetPrefix = "/@mdfs/"

// Resolver holds the current working directory. The chdir command is the only
// writer; the renderer and the asset handler read concurrently.
type Resolver struct {
	mu  sync.RWMutex
	dir string
}

// New creates a Resolver rooted at dir. Relative dirs are made absolute
// against the process working directory.
func New(dir string) (*Resolver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory %q: %w", dir, err)
	}
	return &Resolver{dir: abs}, nil
}

// Set replaces the working directory.
func (r *Resolver) Set(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve working directory %q: %w", dir, err)
	}

	r.mu.Lock()
	r.dir = abs
	r.mu.Unlock()
	return nil
}

// Dir returns the current working directory.
func (r *Resolver) Dir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dir
}

// Resolve turns a resource reference from a document into an absolute
// filesystem path. Absolute references pass through cleaned; relative ones are
// joined with the current working directory.
func (r *Resolver) Resolve(ref string) string {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	return filepath.Clean(filepath.Join(r.Dir(), ref))
}

// AssetPath encodes an absolute file path into the URL path the HTTP layer
// serves it under.
func AssetPath(abs string) string {
	return AssetPrefix + base64.RawURLEncoding.EncodeToString([]byte(filepath.Clean(abs)))
}

// ParseAssetPath decodes an asset URL path back into the absolute file path it
// names. It rejects anything that does not decode to a clean absolute path.
func ParseAssetPath(urlPath string) (string, error) {
	id := strings.TrimPrefix(urlPath, AssetPrefix)
	if id == "" || id == urlPath {
		return "", fmt.Errorf("not an asset path: %q", urlPath)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("decode asset id: %w", err)
	}

	p := string(decoded)
	if p != filepath.Clean(p) || !filepath.IsAbs(p) {
		return "", fmt.Errorf("invalid asset target %q", p)
	}
	return p, nil
}
