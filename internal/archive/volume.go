package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirVolume is a directory standing in for the removable card. Files are
// created flat in the directory.
type DirVolume struct {
	dir string
}

// NewDirVolume creates dir when it does not exist
func NewDirVolume(dir string) (*DirVolume, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating volume directory: %w", err)
	}
	return &DirVolume{dir: dir}, nil
}

func (v *DirVolume) Dir() string {
	return v.dir
}

func (v *DirVolume) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(v.dir, name), nil
}

// Create truncates an existing file
func (v *DirVolume) Create(name string) (io.WriteCloser, error) {
	p, err := v.path(name)
	if err != nil {
		return nil, err
	}
	return os.Create(p)
}

func (v *DirVolume) Open(name string) (io.ReadCloser, error) {
	p, err := v.path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}
