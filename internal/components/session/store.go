package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mircrewapi/internal/components/cache"
	"mircrewapi/internal/components/chrono"
	"mircrewapi/internal/components/telemetry"
)

const (
	report_file_store_restore = "file_store.restore"
)

const fileName = "session.json"

// FileStore persists a single State slot as json.
type FileStore struct {
	path  string
	clock chrono.API
	tel   telemetry.API
}

func NewFileStore(dir string, clock chrono.API, tel telemetry.API) (FileStore, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return FileStore{}, fmt.Errorf("create session dir: %w", err)
	}
	return FileStore{
		path:  filepath.Join(dir, fileName),
		clock: clock,
		tel:   telemetry.NewScopedAPI("session", tel),
	}, nil
}

func (s FileStore) Path() string {
	return s.path
}

// Save overwrites the slot with state, stamping SavedAt.
func (s FileStore) Save(ctx context.Context, state State) error {
	state.SavedAt = s.clock.Now()
	serialized, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	err = cache.WriteFileAtomic(s.path, serialized)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Restore reads the slot back, missing, unreadable and empty states are all
// reported as absent.
func (s FileStore) Restore(ctx context.Context) (State, bool) {
	contents, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false
	}
	if err != nil {
		s.tel.ReportWarning(report_file_store_restore, err)
		return State{}, false
	}

	var state State
	err = json.Unmarshal(contents, &state)
	if err != nil {
		s.tel.ReportWarning(report_file_store_restore, fmt.Errorf("decode %s: %w", s.path, err))
		return State{}, false
	}
	if state.Empty() {
		return State{}, false
	}
	return state, true
}

func (s FileStore) Clear(ctx context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
