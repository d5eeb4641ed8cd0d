package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mircrewapi/internal/components/chrono"
	"mircrewapi/internal/components/telemetry"
)

const (
	report_file_store_get    = "file_store.get"
	report_file_store_delete = "file_store.delete"
)

// FileStore keeps one json file per key inside a directory.
type FileStore struct {
	dir   string
	clock chrono.API
	tel   telemetry.API
}

func NewFileStore(dir string, clock chrono.API, tel telemetry.API) (FileStore, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return FileStore{}, fmt.Errorf("create cache dir: %w", err)
	}
	return FileStore{
		dir:   dir,
		clock: clock,
		tel:   telemetry.NewScopedAPI("cache", tel),
	}, nil
}

func (s FileStore) path(key string) (string, bool) {
	safe := sanitizeKey(key)
	if safe == "" {
		return "", false
	}
	return filepath.Join(s.dir, safe+".json"), true
}

func (s FileStore) Get(ctx context.Context, key string) (Entry, bool) {
	path, ok := s.path(key)
	if !ok {
		return Entry{}, false
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false
	}
	if err != nil {
		s.tel.ReportWarning(report_file_store_get, fmt.Errorf("read %s: %w", path, err))
		return Entry{}, false
	}

	var entry Entry
	err = json.Unmarshal(contents, &entry)
	if err != nil {
		s.tel.ReportWarning(report_file_store_get, fmt.Errorf("decode %s: %w", path, err))
		return Entry{}, false
	}

	if entry.expired(s.clock.Now()) {
		err = s.Delete(ctx, key)
		if err != nil {
			s.tel.ReportWarning(report_file_store_get, err)
		}
		return Entry{}, false
	}
	return entry, true
}

func (s FileStore) Set(ctx context.Context, key, value string, ttl time.Duration) (Entry, error) {
	path, ok := s.path(key)
	if !ok {
		return Entry{}, fmt.Errorf("set %q: %w", key, ErrInvalidKey)
	}
	entry, err := newEntry(key, value, s.clock.Now(), ttl)
	if err != nil {
		return Entry{}, fmt.Errorf("set %q: %w", key, err)
	}

	serialized, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, err
	}
	err = WriteFileAtomic(path, serialized)
	if err != nil {
		return Entry{}, fmt.Errorf("set %q: %w", key, err)
	}
	return entry, nil
}

func (s FileStore) Delete(ctx context.Context, key string) error {
	path, ok := s.path(key)
	if !ok {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.tel.ReportWarning(report_file_store_delete, err)
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// WriteFileAtomic writes contents to a temporary file next to path and then
// renames it over path.
func WriteFileAtomic(path string, contents []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(contents)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	err = tmp.Close()
	if err != nil {
		os.Remove(tmpName)
		return err
	}
	err = os.Rename(tmpName, path)
	if err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
