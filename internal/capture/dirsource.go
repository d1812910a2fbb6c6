package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoFrame reports that a frame source currently has nothing new to
// offer. The capture loop treats it as "no usable text yet" without
// logging noise.
var ErrNoFrame = errors.New("no new frame available")

// DirSource feeds frames from a watched directory: every image file that
// appears is offered exactly once, in name order. It backs the CLI
// capture loop, where a camera process drops stills into a folder.
type DirSource struct {
	dir  string
	seen map[string]bool
}

// NewDirSource creates a frame source over the given directory.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir, seen: make(map[string]bool)}
}

// Open verifies the directory exists. Files already present at open time
// are skipped; only frames arriving afterwards count.
func (d *DirSource) Open(ctx context.Context) error {
	names, err := d.imageNames()
	if err != nil {
		return fmt.Errorf("open frame directory: %w", err)
	}
	for _, name := range names {
		d.seen[name] = true
	}
	return nil
}

// Frame returns the next unseen image file's contents.
func (d *DirSource) Frame(ctx context.Context) ([]byte, error) {
	names, err := d.imageNames()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if d.seen[name] {
			continue
		}
		d.seen[name] = true
		data, err := os.ReadFile(filepath.Join(d.dir, name))
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, ErrNoFrame
}

// Close releases nothing; the directory stays untouched.
func (d *DirSource) Close() error { return nil }

func (d *DirSource) imageNames() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
