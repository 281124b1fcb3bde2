package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/monigenomi/openpgx/internal/domain"
)

// FileStore persists the guideline snapshot as a single JSON document on
// disk, keyed by source name at the top level. This is the default store
// and the interchange format the CLI consumes.
type FileStore struct {
	path string
	log  *logrus.Logger
}

// NewFileStore creates a file-backed snapshot store.
func NewFileStore(path string, logger *logrus.Logger) *FileStore {
	return &FileStore{path: path, log: logger}
}

// Load reads and decodes the snapshot file into a ready-to-query database.
func (s *FileStore) Load(ctx context.Context) (*domain.Database, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %s: %w", s.path, domain.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot map[domain.Source]*domain.SourceSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	for source := range snapshot {
		if !source.IsValid() {
			return nil, fmt.Errorf("snapshot source %q: %w", source, domain.ErrInvalidSource)
		}
	}

	db, err := domain.NewDatabase(snapshot)
	if err != nil {
		return nil, fmt.Errorf("building database: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"path":  s.path,
		"drugs": len(db.Drugs()),
	}).Info("Snapshot loaded from file")

	return db, nil
}

// Save writes the snapshot atomically: encode to a sibling temp file, then
// rename over the target.
func (s *FileStore) Save(ctx context.Context, snapshot map[domain.Source]*domain.SourceSnapshot) error {
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	s.log.WithField("path", s.path).Info("Snapshot saved")
	return nil
}
