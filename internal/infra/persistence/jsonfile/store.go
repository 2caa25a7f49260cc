// Package jsonfile provides the default persistent store: a single JSON
// document holding every space record, rewritten in full after each
// successful transaction, with timestamped backups of the previous document.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"spacecore/internal/infra/persistence/memory"
	"spacecore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	// DefaultPath is the canonical document location when none is configured.
	DefaultPath = "spaces.json"
	// BackupDirName is the subdirectory, next to the canonical file, that
	// holds timestamped copies of superseded documents.
	BackupDirName = "backups"
	// BackupRetention is how many backups are kept; older ones are pruned.
	BackupRetention = 3

	backupTimeLayout = "20060102150405"
)

// Store persists state to a JSON document while reusing the in-memory
// implementation for transactions. The document is the source of truth; a
// failed write surfaces as the transaction error. Backup writes and pruning
// are best effort and never fail a transaction.
type Store struct {
	*memory.Store
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewStore opens the document at path (falling back to DefaultPath) and
// hydrates the in-memory store from it. A missing file is an empty store; a
// file that exists but cannot be parsed is an error, never silently replaced.
func NewStore(path string, engine *domain.RulesEngine, logger *zap.Logger) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, path: path, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the canonical document path.
func (s *Store) Path() string { return s.path }

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	var spaces []domain.Space
	if err := json.Unmarshal(data, &spaces); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	s.ImportState(memory.Snapshot{Spaces: spaces})
	return nil
}

// RunInTransaction applies fn within a transaction, then rewrites the
// document if successful. The previous document is backed up first.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Store) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.backup()

	snapshot := s.ExportState()
	data, err := json.MarshalIndent(snapshot.Spaces, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spaces: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create dirs: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// backup copies the current document into the backup directory with a UTC
// timestamp suffix and prunes backups beyond the retention count. Backup
// failures are logged and swallowed; losing a backup must not lose a write.
func (s *Store) backup() {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Warn("backup read failed", zap.String("path", s.path), zap.Error(err))
		return
	}

	dir := filepath.Join(filepath.Dir(s.path), BackupDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		s.logger.Warn("backup dir creation failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	stamp := s.NowFunc()().UTC().Format(backupTimeLayout)
	name := filepath.Join(dir, fmt.Sprintf("%s.bak.%s", filepath.Base(s.path), stamp))
	if err := os.WriteFile(name, data, 0o640); err != nil {
		s.logger.Warn("backup write failed", zap.String("path", name), zap.Error(err))
		return
	}
	s.prune(dir)
}

func (s *Store) prune(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn("backup prune failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	prefix := filepath.Base(s.path) + ".bak."
	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, entry.Name())
		}
	}
	if len(backups) <= BackupRetention {
		return
	}
	// Timestamp suffixes sort lexicographically, oldest first.
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-BackupRetention] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			s.logger.Warn("backup removal failed", zap.String("path", name), zap.Error(err))
		}
	}
}
