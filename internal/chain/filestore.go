package chain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	blocksDir = "blocks"
	tailFile  = "TAIL"
)

// FileStore persists one JSON file per block under <base>/blocks/<hash>.json
// and the tail hash in <base>/TAIL. Every write goes through a temp file,
// fsync and rename, so a crash leaves either the old or the new file.
type FileStore struct {
	base string
}

// NewFileStore creates the directory layout under base if needed.
func NewFileStore(base string) (*FileStore, error) {
	base = strings.TrimSuffix(base, string(os.PathSeparator))
	if err := os.MkdirAll(filepath.Join(base, blocksDir), 0o755); err != nil {
		return nil, fmt.Errorf("create block dir: %w", err)
	}
	return &FileStore{base: base}, nil
}

// BlockPath returns the file holding the block with the given hash.
func (s *FileStore) BlockPath(hash string) string {
	return filepath.Join(s.base, blocksDir, hash+".json")
}

func (s *FileStore) GetBlock(hash string) ([]byte, error) {
	if !isDigest(hash) {
		return nil, ErrBlockNotFound
	}
	data, err := os.ReadFile(s.BlockPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read block %s: %w", hash, err)
	}
	return data, nil
}

func (s *FileStore) PutBlock(hash string, encoded []byte) error {
	if !isDigest(hash) {
		return fmt.Errorf("invalid block hash %q", hash)
	}
	return writeFileAtomic(s.BlockPath(hash), encoded, 0o644)
}

func (s *FileStore) GetTail() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.base, tailFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read tail: %w", err)
	}
	tail := strings.TrimSpace(string(data))
	if tail != "" && !isDigest(tail) {
		return "", fmt.Errorf("corrupt tail pointer %q", tail)
	}
	return tail, nil
}

func (s *FileStore) SetTail(hash string) error {
	return writeFileAtomic(filepath.Join(s.base, tailFile), []byte(hash+"\n"), 0o644)
}

func (s *FileStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// isDigest reports whether s looks like a lowercase hex SHA-256 digest.
// Hashes become file names, so nothing else may reach the filesystem.
func isDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
