package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/zhubert/gemini-acp/gemini"
)

// ErrNotGenerating is returned by Cancel when no prompt is in flight.
var ErrNotGenerating = errors.New("session is not currently generating")

// Role tags a turn in the conversation log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation log.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// Session is the state of one ACP session.
type Session struct {
	ID         string
	WorkingDir string
	CreatedAt  time.Time

	mu sync.Mutex // Protects all fields below

	// cancel is present while a prompt is in flight and not yet cancelled.
	cancel context.CancelFunc
	// process is present only while cancel is.
	process gemini.Process
	// inflight is closed by the running prompt's End; nil when idle.
	inflight chan struct{}

	mode  gemini.PermissionMode
	turns []Turn
}

// Prompt is the handle of the prompt currently owning a session's handles.
type Prompt struct {
	session *Session
	done    chan struct{}
	once    sync.Once
}

// Begin installs cancel as the session's cancellation handle.
// If a prompt is already in flight it is cancelled, its process terminated,
// and Begin waits for its End before installing the new handle.
// preempted reports whether an earlier prompt had to be cancelled.
// Begin returns ctx.Err() if ctx ends while waiting.
func (s *Session) Begin(ctx context.Context, cancel context.CancelFunc) (p *Prompt, preempted bool, err error) {
	s.mu.Lock()
	for s.inflight != nil {
		preempted = true
		s.interruptLocked()
		wait := s.inflight
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, preempted, ctx.Err()
		}

		s.mu.Lock()
	}

	p = &Prompt{session: s, done: make(chan struct{})}
	s.inflight = p.done
	s.cancel = cancel
	s.mu.Unlock()
	return p, preempted, nil
}

// AttachProcess registers proc as the session's active process.
// It returns false, leaving the session untouched, if the prompt was
// cancelled in the meantime; the caller then owns terminating proc.
func (p *Prompt) AttachProcess(proc gemini.Process) bool {
	s := p.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight != p.done || s.cancel == nil {
		return false
	}
	s.process = proc
	return true
}

// End clears the cancellation and process handles and releases any
// prompt waiting in Begin. Safe to call more than once.
func (p *Prompt) End() {
	p.once.Do(func() {
		s := p.session
		s.mu.Lock()
		if s.inflight == p.done {
			s.cancel = nil
			s.process = nil
			s.inflight = nil
		}
		s.mu.Unlock()
		close(p.done)
	})
}

// Cancel triggers and clears the cancellation handle and terminates the
// active process, if any. It returns ErrNotGenerating when nothing is in flight.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return ErrNotGenerating
	}
	s.interruptLocked()
	return nil
}

// interruptLocked fires and clears both handles. Caller must hold mu.
func (s *Session) interruptLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.process != nil {
		_ = s.process.Terminate()
		s.process = nil
	}
}

// IsGenerating reports whether a cancellation handle is installed.
func (s *Session) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// ActiveProcess returns the registered process handle, or nil.
func (s *Session) ActiveProcess() gemini.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process
}

// AppendTurn adds a turn to the conversation log.
func (s *Session) AppendTurn(role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Text: text, At: time.Now()})
}

// Turns returns a copy of the conversation log.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.turns)
}

// PermissionMode returns the session's permission override, or "" when unset.
func (s *Session) PermissionMode() gemini.PermissionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetPermissionMode overrides the configured permission mode for later prompts.
func (s *Session) SetPermissionMode(mode gemini.PermissionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}
