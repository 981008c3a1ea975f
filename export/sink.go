package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Sink stores a named export file.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
	Location() string
}

// DirSink writes files into a local directory, creating it on first use.
// Existing files are overwritten.
type DirSink struct {
	Dir string
}

// NewDirSink returns a sink rooted at dir.
func NewDirSink(dir string) (*DirSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("output directory required")
	}
	return &DirSink{Dir: dir}, nil
}

// Put writes data to Dir/name.
func (s *DirSink) Put(ctx context.Context, name string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if name == "" || name != filepath.Base(name) {
		return errors.New("invalid file name " + name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir, name), data, 0o644)
}

// Location returns the target directory.
func (s *DirSink) Location() string {
	return s.Dir
}
