package records

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ReadStore returns the content of a persistent record store, or "" when
// the file does not exist.
func ReadStore(path string) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return "", fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading record store: %w", err)
	}
	return string(data), nil
}

// AppendStore appends log to the record store at path. Concurrent sessions
// sharing a store are serialized by an exclusive lock file next to it.
func AppendStore(path, log string) error {
	if log == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating record store dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		if err := ensureTrailingNewline(path, info.Size(), f); err != nil {
			f.Close()
			return err
		}
	}
	if _, err := f.WriteString(log); err != nil {
		f.Close()
		return fmt.Errorf("appending to record store: %w", err)
	}
	return f.Close()
}

func ensureTrailingNewline(path string, size int64, f *os.File) error {
	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading record store: %w", err)
	}
	defer r.Close()
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, size-1); err != nil {
		return fmt.Errorf("reading record store: %w", err)
	}
	if last[0] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return fmt.Errorf("appending to record store: %w", err)
		}
	}
	return nil
}
