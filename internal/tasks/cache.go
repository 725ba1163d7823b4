package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v4"

	"github.com/signalnine/autotune/internal/logging"
)

// DefaultCacheDir returns the task cache location under the XDG cache dir.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "autotune", "tasks")
}

// Cache remembers task listings across sessions. Entries are keyed by the
// enumeration command line and the model file's size and mtime, so editing
// the model or changing target flags invalidates them.
type Cache struct {
	db *badger.DB
}

func OpenCache(dir string) (*Cache, error) {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening task cache: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) get(key []byte) ([]Task, bool, error) {
	var tasks []Task
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tasks)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return tasks, true, nil
}

func (c *Cache) put(key []byte, tasks []Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Wrap returns an Enumerator that consults the cache before running e.
func (c *Cache) Wrap(e *ToolEnumerator) Enumerator {
	return &cachedEnumerator{cache: c, inner: e}
}

type cachedEnumerator struct {
	cache *Cache
	inner *ToolEnumerator
}

func (ce *cachedEnumerator) key() ([]byte, error) {
	h := sha256.New()
	h.Write([]byte(strings.Join(ce.inner.argv(), "\x00")))
	if ce.inner.Args.Model != "" {
		info, err := os.Stat(ce.inner.Args.Model)
		if err != nil {
			return nil, fmt.Errorf("stat model: %w", err)
		}
		fmt.Fprintf(h, "\x00%d\x00%d", info.Size(), info.ModTime().UnixNano())
	}
	return append([]byte("tasks/"), h.Sum(nil)...), nil
}

func (ce *cachedEnumerator) Enumerate(ctx context.Context) ([]Task, error) {
	logger := logging.Get("tasks")
	key, err := ce.key()
	if err != nil {
		return nil, err
	}
	if tasks, ok, err := ce.cache.get(key); err != nil {
		logger.Warn("task cache read failed", "err", err)
	} else if ok {
		logger.Debug("task listing served from cache", "tasks", len(tasks))
		return tasks, nil
	}

	tasks, err := ce.inner.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	if err := ce.cache.put(key, tasks); err != nil {
		logger.Warn("task cache write failed", "err", err)
	}
	return tasks, nil
}
