// Package session implements per-image viewing state persistence to the filesystem.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Session captures the viewing state for one image so reopening it
// restores the same plane, channel selection, and querying toggle.
type Session struct {
	ImageID        int   `json:"image_id"`
	Z              int   `json:"z"`
	T              int   `json:"t"`
	ActiveChannels []int `json:"active_channels"`
	Querying       bool  `json:"querying"`
}

// FileStore persists sessions as JSON files under a base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore that saves sessions under baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Save writes the session to a JSON file named by its image ID.
func (s *FileStore) Save(sess Session) error {
	p, err := s.path(sess.ImageID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("session: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshaling: %w", err)
	}

	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("session: writing %s: %w", p, err)
	}
	return nil
}

// Load reads the session for the given image ID.
// Returns (session, true, nil) if found, (zero, false, nil) if not found.
func (s *FileStore) Load(imageID int) (Session, bool, error) {
	p, err := s.path(imageID)
	if err != nil {
		return Session{}, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("session: reading %s: %w", p, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, false, fmt.Errorf("session: parsing %s: %w", p, err)
	}
	return sess, true, nil
}

// Remove deletes the session file for the given image ID.
func (s *FileStore) Remove(imageID int) error {
	p, err := s.path(imageID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: removing %s: %w", p, err)
	}
	return nil
}

// ErrInvalidID indicates an image ID that cannot name a session file.
var ErrInvalidID = errors.New("session: invalid image ID")

// path returns the filesystem path for a session file.
func (s *FileStore) path(imageID int) (string, error) {
	if imageID < 1 {
		return "", fmt.Errorf("%w: %d", ErrInvalidID, imageID)
	}
	return filepath.Join(s.baseDir, fmt.Sprintf("image-%d.json", imageID)), nil
}
