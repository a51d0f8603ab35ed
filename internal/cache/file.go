package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kyleking/gh-actionboard/internal/pubsub"
)

const fileExt = ".json"

// FileStore keeps one file per key under a directory. Keys are path-escaped
// so any username is a valid file name.
type FileStore struct {
	*pubsub.Broadcaster[Event]
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{Broadcaster: pubsub.New[Event](), dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileExt)
}

// Get reads the value stored under key.
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %q: %w", key, err)
	}
	return data, true, nil
}

// Set writes value atomically through a temp file and rename.
func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to write cache entry %q: %w", key, err)
	}
	_, werr := tmp.Write(value)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), s.path(key))
	}
	if werr != nil {
		_ = os.Remove(tmp.Name())
	}
	s.mu.Unlock()

	if werr != nil {
		return fmt.Errorf("failed to write cache entry %q: %w", key, werr)
	}
	s.Publish(Event{Key: key, Op: OpSet})
	return nil
}

// Clear removes the entry for key. Missing entries are not an error.
func (s *FileStore) Clear(key string) error {
	s.mu.Lock()
	err := os.Remove(s.path(key))
	s.mu.Unlock()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear cache entry %q: %w", key, err)
	}
	s.Publish(Event{Key: key, Op: OpClear})
	return nil
}

// Keys lists stored keys starting with prefix.
func (s *FileStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
