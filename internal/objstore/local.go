package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore archives documents to a local directory. It exists for
// development and for deployments without a cloud bucket; the upload
// contract matches GCSStore.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Upload writes data under the given relative name and returns the
// absolute path of the stored file.
func (s *LocalStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, filepath.FromSlash(name))
	cleanRoot := filepath.Clean(s.dir) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(target)+string(filepath.Separator), cleanRoot) {
		return "", fmt.Errorf("object name %q escapes archive directory", name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o640); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return target, nil
	}
	return abs, nil
}

// Fetch reads a stored document back by the path Upload returned. Paths
// outside the archive directory are rejected.
func (s *LocalStore) Fetch(ctx context.Context, storedPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(s.dir)
	if err != nil {
		return nil, fmt.Errorf("resolve archive directory: %w", err)
	}
	absTarget, err := filepath.Abs(storedPath)
	if err != nil {
		return nil, fmt.Errorf("resolve object path: %w", err)
	}
	if !strings.HasPrefix(absTarget+string(filepath.Separator), absRoot+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q is outside the archive directory", storedPath)
	}

	data, err := os.ReadFile(absTarget) // #nosec G304 -- path verified above
	if err != nil {
		return nil, fmt.Errorf("read archived object: %w", err)
	}
	return data, nil
}
