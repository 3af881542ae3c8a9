package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"flinkctl/internal/apperrors"
)

const recordFile = "deployment.json"

// Store persists records under a root directory:
//
//	<root>/<id>/deployment.json
type Store struct {
	root string
}

// NewStore creates a store rooted at root. The directory is created on first write.
func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

// DefaultRoot returns <UserConfigDir>/flinkctl/history.
func DefaultRoot() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "flinkctl", "history"), nil
}

// RootDir returns the store root.
func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.root, id, recordFile)
}

// Save writes rec atomically, stamping UpdatedAt.
func (s *Store) Save(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("deployment record is nil")
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return apperrors.Validation("id", "deployment record id is required")
	}
	if s.root == "" {
		return fmt.Errorf("history root dir is empty")
	}

	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}

	rec.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal deployment record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, recordFile+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp record file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record file: %w", err)
	}
	if err := os.Rename(tmpName, s.recordPath(id)); err != nil {
		return fmt.Errorf("rename record file: %w", err)
	}
	return nil
}

// Get loads one record.
func (s *Store) Get(id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.Validation("id", "deployment id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, apperrors.Validation("id", "invalid deployment id")
	}

	b, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("deployment", id, err)
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", recordFile, err)
	}
	return &rec, nil
}

// List returns every readable record, newest first.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history root: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// LatestSavepoint returns the most recent savepoint path recorded for jobID.
// It lets an operator resume after a resubmit failed.
func (s *Store) LatestSavepoint(jobID string) (string, error) {
	records, err := s.List()
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if r.PreviousJobID == jobID && r.SavepointPath != "" {
			return r.SavepointPath, nil
		}
	}
	return "", apperrors.NotFound("savepoint for job", jobID, nil)
}
