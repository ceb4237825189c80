package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Keys are restricted to a filesystem-safe charset so a key can map
// directly to a file name.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// FileStore implements Store using one file per key under a base directory.
type FileStore struct {
	basePath string
	mutex    sync.RWMutex
}

// NewFileStore creates a new file-based store rooted at basePath. The
// directory is created if it does not exist.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Path returns the directory backing this store.
func (s *FileStore) Path() string {
	return s.basePath
}

func (s *FileStore) filePath(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid store key: %q", key)
	}
	return filepath.Join(s.basePath, key+".blob"), nil
}

// Put writes the blob atomically: write to a temp file, then rename, so a
// crash mid-write never leaves a torn blob behind.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	path, err := s.filePath(key)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit blob: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.filePath(key)
	if err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	path, err := s.filePath(key)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".blob") {
			continue
		}
		key := strings.TrimSuffix(name, ".blob")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Close() error {
	return nil
}
