package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for ids the registry never issued.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidWorkingDir is returned when a session's directory is not absolute.
	ErrInvalidWorkingDir = errors.New("working directory must be an absolute path")
)

// Registry maps session ids to sessions. Sessions are never removed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a session rooted at workingDir under a fresh id.
func (r *Registry) Create(workingDir string) (*Session, error) {
	if workingDir == "" || !filepath.IsAbs(workingDir) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWorkingDir, workingDir)
	}

	s := &Session{
		ID:         uuid.NewString(),
		WorkingDir: filepath.Clean(workingDir),
		CreatedAt:  time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s, nil
}

// Get returns the session for id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns all sessions ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
