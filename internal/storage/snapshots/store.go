// Package snapshots stores page screenshots on the local filesystem and
// resolves them back for serving.
package snapshots

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// URLPrefix is the public path screenshots are served under.
const URLPrefix = "/snapshots"

// Config captures the parameters for the snapshot store.
type Config struct {
	// BaseDir is the directory screenshot files are written to.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes screenshot JPEGs to BaseDir. File names embed the page ID and
// a millisecond timestamp so successive crawls never overwrite each other.
type Store struct {
	baseDir string
}

func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &Store{baseDir: cfg.BaseDir}, nil
}

// Save writes the screenshot and returns its public URL path.
func (s *Store) Save(pageID string, data []byte) (string, error) {
	if strings.TrimSpace(pageID) == "" {
		return "", fmt.Errorf("page id is required")
	}
	name := fmt.Sprintf("%s-%d.jpg", pageID, time.Now().UnixMilli())

	fullPath, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return URLPrefix + "/" + name, nil
}

// Path maps a requested file name back to its location on disk. Names that
// escape the base directory are rejected.
func (s *Store) Path(name string) (string, error) {
	return s.resolve(name)
}

// Dir returns the directory files are stored in, for static file serving.
func (s *Store) Dir() string {
	return s.baseDir
}

func (s *Store) resolve(name string) (string, error) {
	cleanBase := filepath.Clean(s.baseDir)
	fullPath := filepath.Clean(filepath.Join(cleanBase, name))
	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
