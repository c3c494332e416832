package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	lockRetryDelay = 250 * time.Millisecond
	lockTimeout    = 5 * time.Second
)

// Store persists State as a JSON document guarded by an exclusive,
// non-reentrant cross-process lock. The lock is held only for the duration of
// a read-decide-act-persist cycle, never for a whole tick interval, so a
// second instance is skipped rather than starved.
type Store struct {
	logger *zap.Logger
	path   string
	lock   *flock.Flock
}

// NewStore creates a store for the state file at path. The lock file lives
// next to the state file.
func NewStore(logger *zap.Logger, path string) *Store {
	return &Store{
		logger: logger.Named("state"),
		path:   path,
		lock:   flock.New(path + ".lock"),
	}
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// TryLock attempts to acquire the cross-process lock without blocking.
// A false return means another instance holds it; callers treat that as a
// benign no-op.
func (s *Store) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create state directory: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire state lock: %w", err)
	}
	return ok, nil
}

// Lock acquires the cross-process lock, retrying until lockTimeout. Manual
// commands use this so they queue briefly behind a running tick instead of
// failing outright.
func (s *Store) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	ok, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("timed out waiting for state lock")
	}
	return nil
}

// Unlock releases the cross-process lock.
func (s *Store) Unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Error("Failed to release state lock", zap.Error(err))
	}
}

// Load reads the persisted state, returning an empty state when no file
// exists yet. Callers must hold the lock.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No state file, starting fresh", zap.String("path", s.path))
			return New(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	st := New()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return st, nil
}

// Save writes the state atomically (temp file + rename) so a crash mid-write
// never leaves a torn document. Callers must hold the lock.
func (s *Store) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.Debug("Saved state", zap.String("path", s.path))
	return nil
}

// With runs fn with the lock held and the current state loaded, saving the
// state afterwards when fn succeeds.
func (s *Store) With(ctx context.Context, fn func(*State) error) error {
	if err := s.Lock(ctx); err != nil {
		return err
	}
	defer s.Unlock()

	st, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.Save(st)
}
