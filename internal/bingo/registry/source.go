package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source lists and reads raw definition documents. Names are file-like
// ("spring.yaml"); the game id is the name without its extension.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) ([]byte, error)
}

var definitionExts = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// IDFromName strips the extension of a definition file name.
func IDFromName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type DirSource struct {
	Dir string
}

// List returns definition files in Dir sorted by name. A missing directory is
// an empty source, not an error.
func (d DirSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		if definitionExts[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (d DirSource) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(d.Dir, filepath.Base(name)))
}

// MemorySource serves definitions from memory.
type MemorySource map[string][]byte

func (m MemorySource) List(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m MemorySource) Read(ctx context.Context, name string) ([]byte, error) {
	raw, ok := m[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return raw, nil
}
