package profile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/vault"
)

// FileStore keeps one JSON or YAML document per profile in a directory.
type FileStore struct {
	baseDir string
	format  string
	logger  *events.Logger

	mu sync.RWMutex
}

// NewFileStore creates a file-based profile store. format is "json" or "yaml".
func NewFileStore(baseDir, format string, logger *events.Logger) (*FileStore, error) {
	if format != "json" && format != "yaml" {
		return nil, fmt.Errorf("unsupported profile format: %s", format)
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}

	return &FileStore{
		baseDir: baseDir,
		format:  format,
		logger:  logger.WithField("component", "file_profile_store"),
	}, nil
}

// Get reads a profile, falling back to its backup if the file is corrupt.
func (s *FileStore) Get(name string) (*Profile, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.profilePath(name)

	s.logger.WithFields(map[string]interface{}{
		"profile": name,
		"path":    path,
	}).Debug("Loading profile")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}

	p, err := s.decode(data)
	if err != nil {
		s.logger.WithError(err).WithField("profile", name).Warn("Profile file unreadable, trying backup")
		if backup, backupErr := s.loadBackup(name); backupErr == nil {
			return backup, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrProfileCorrupt, err)
	}

	return p, nil
}

// Save writes a profile atomically, keeping the previous version as a backup.
func (s *FileStore) Save(p *Profile) error {
	if err := checkWritable(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	saved := *p
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = now
	}
	saved.UpdatedAt = now

	data, err := s.encode(&saved)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	path := s.profilePath(p.Name)

	s.logger.WithFields(map[string]interface{}{
		"profile": p.Name,
		"driver":  string(p.Driver),
	}).Debug("Saving profile")

	// Only a readable, non-plaintext version may become the backup.
	backedUp := false
	if s.backupable(path) {
		if err := copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		} else {
			backedUp = true
		}
	}

	tmp, err := os.CreateTemp(s.baseDir, "."+p.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename profile file: %w", err)
	}

	if !backedUp {
		if err := os.Remove(path + ".backup"); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to remove stale backup")
		}
	}

	*p = saved
	return nil
}

// Delete removes a profile and its backup.
func (s *FileStore) Delete(name string) error {
	if err := CheckName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.profilePath(name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("remove profile file: %w", err)
	}
	_ = os.Remove(path + ".backup")

	s.logger.WithField("profile", name).Info("Deleted profile")
	return nil
}

// List returns all stored profile names.
func (s *FileStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read profile directory: %w", err)
	}

	ext := s.ext()
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ext))
	}
	sort.Strings(names)

	return names, nil
}

// Close releases resources.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) ext() string {
	return "." + s.format
}

func (s *FileStore) profilePath(name string) string {
	return filepath.Join(s.baseDir, name+s.ext())
}

func (s *FileStore) encode(p *Profile) ([]byte, error) {
	if s.format == "yaml" {
		return yaml.Marshal(p)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (s *FileStore) decode(data []byte) (*Profile, error) {
	var p Profile
	var err error
	if s.format == "yaml" {
		err = yaml.Unmarshal(data, &p)
	} else {
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// loadBackup reads the backup of name. A backup holding a plaintext
// password is never returned.
func (s *FileStore) loadBackup(name string) (*Profile, error) {
	p, err := s.readFile(s.profilePath(name) + ".backup")
	if err != nil {
		return nil, err
	}
	if isPlainText(p) {
		return nil, fmt.Errorf("backup of %s: %w", name, vault.ErrPlainTextWrite)
	}
	return p, nil
}

// backupable reports whether the file at path decodes to a profile whose
// password is not plaintext.
func (s *FileStore) backupable(path string) bool {
	p, err := s.readFile(path)
	return err == nil && !isPlainText(p)
}

func (s *FileStore) readFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.decode(data)
}

func isPlainText(p *Profile) bool {
	return p.Password.Source != nil && p.Password.Source.Kind() == vault.KindPlainText
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
