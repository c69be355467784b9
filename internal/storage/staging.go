package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Stager holds uploaded audio on local disk for the lifetime of one job
type Stager struct {
	dir string
}

// NewStager creates a stager writing into dir, creating it if needed
func NewStager(dir string) (*Stager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Stager{dir: dir}, nil
}

// Dir returns the staging directory
func (s *Stager) Dir() string {
	return s.dir
}

// Stage copies r into a fresh file in the staging directory and returns its path.
// The extension of filename is kept so the engine can sniff the container.
func (s *Stager) Stage(filename string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.dir, "upload-*"+sanitizeExt(filename))
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	path := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return path, nil
}

// Release removes a staged file. Releasing a missing file is not an error.
func (s *Stager) Release(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file %s: %w", path, err)
	}
	return nil
}

// sanitizeExt returns the lower-cased extension of name when it is short and
// alphanumeric, otherwise "".
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
