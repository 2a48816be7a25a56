// Package store persists lecture session metadata.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrInvalidStatus = errors.New("invalid status")
)

// Status is the lifecycle state of a stored session.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRecording Status = "recording"
	StatusComplete  Status = "complete"
	StatusArchived  Status = "archived"
)

// ParseStatus accepts the lowercase status names only.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusRecording, StatusComplete, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("%w: %s. Must be one of: draft, recording, complete, archived", ErrInvalidStatus, s)
}

// UnmarshalYAML rejects unknown status values.
func (s *Status) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

type Session struct {
	ID             string    `yaml:"id" json:"id"`
	Title          string    `yaml:"title" json:"title"`
	Course         string    `yaml:"course" json:"course"`
	CreatedAt      time.Time `yaml:"created_at" json:"created_at"`
	DurationMs     int64     `yaml:"duration_ms" json:"duration_ms"`
	Status         Status    `yaml:"status" json:"status"`
	NotesPath      string    `yaml:"notes_path,omitempty" json:"notes_path,omitempty"`
	AudioPath      string    `yaml:"audio_path,omitempty" json:"audio_path,omitempty"`
	TranscriptPath string    `yaml:"transcript_path,omitempty" json:"transcript_path,omitempty"`
}

// Store is the session metadata repository.
type Store interface {
	Create(title, course string) (*Session, error)
	Get(id string) (*Session, error)
	List() ([]Session, error)
	UpdateStatus(id string, status Status) error
	Update(id string, fn func(*Session)) error
	Delete(id string) error
	SessionDir(id string) string
}

// FileStore keeps every session in one YAML file next to the session folders.
type FileStore struct {
	dir  string
	path string

	mutex    sync.Mutex
	sessions map[string]*Session
}

type fileFormat struct {
	Sessions []*Session `yaml:"sessions"`
}

// Open loads (or initializes) the store rooted at dir.
func Open(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "sessions"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &FileStore{
		dir:      dir,
		path:     filepath.Join(dir, "sessions.yaml"),
		sessions: make(map[string]*Session),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	for _, sess := range ff.Sessions {
		if sess == nil || sess.ID == "" {
			continue
		}
		s.sessions[sess.ID] = sess
	}

	slog.Debug("Session store loaded", "path", s.path, "sessions", len(s.sessions))
	return s, nil
}

// SessionDir returns the folder holding a session's artifacts.
func (s *FileStore) SessionDir(id string) string {
	return filepath.Join(s.dir, "sessions", id)
}

func (s *FileStore) Create(title, course string) (*Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("session title is required")
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Title:     title,
		Course:    strings.TrimSpace(course),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Status:    StatusDraft,
	}

	if err := os.MkdirAll(s.SessionDir(sess.ID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session folder: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sessions[sess.ID] = sess
	if err := s.flush(); err != nil {
		delete(s.sessions, sess.ID)
		return nil, err
	}

	out := *sess
	return &out, nil
}

func (s *FileStore) Get(id string) (*Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	out := *sess
	return &out, nil
}

// List returns sessions newest first.
func (s *FileStore) List() ([]Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileStore) UpdateStatus(id string, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	return s.Update(id, func(sess *Session) {
		sess.Status = status
	})
}

// Update applies fn to a copy of the session and persists it.
func (s *FileStore) Update(id string, fn func(*Session)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	updated := *current
	fn(&updated)
	updated.ID = id

	s.sessions[id] = &updated
	if err := s.flush(); err != nil {
		s.sessions[id] = current
		return err
	}
	return nil
}

// Delete removes the session record and its folder.
func (s *FileStore) Delete(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	delete(s.sessions, id)
	if err := s.flush(); err != nil {
		s.sessions[id] = current
		return err
	}

	if err := os.RemoveAll(s.SessionDir(id)); err != nil {
		return fmt.Errorf("failed to remove session folder: %w", err)
	}
	return nil
}

// flush writes the file through a temp file and rename. Caller holds mutex.
func (s *FileStore) flush() error {
	ff := fileFormat{Sessions: make([]*Session, 0, len(s.sessions))}
	for _, sess := range s.sessions {
		ff.Sessions = append(ff.Sessions, sess)
	}
	sort.Slice(ff.Sessions, func(i, j int) bool {
		return ff.Sessions[i].CreatedAt.Before(ff.Sessions[j].CreatedAt)
	})

	data, err := yaml.Marshal(&ff)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
