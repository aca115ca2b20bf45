package manager

import (
	"sync"
	"time"
)

// SessionState holds the orchestrator's view of one session's prompt lifecycle.
// The cancellation and process handles live on session.Session; this tracks
// what the prompt is doing for logging, tracing and diagnostics.
//
// Thread Safety:
// SessionState has an internal mutex. Use the thread-safe accessors, or WithLock
// when several fields must be read or written together.
type SessionState struct {
	mu sync.Mutex // Protects all fields below

	State     PromptState
	WaitStart time.Time // When the current or last prompt started
	IsWaiting bool      // Whether a prompt is in flight

	// Streaming state of the current prompt
	ChunkCount    int
	StreamedBytes int

	LastError   string // Message surfaced for the last failed prompt
	Prompts     int    // Prompts started on this session
	Preemptions int    // Prompts cancelled because a newer one arrived
}

// StateSnapshot is a point-in-time copy of a SessionState.
type StateSnapshot struct {
	State         PromptState
	WaitStart     time.Time
	IsWaiting     bool
	ChunkCount    int
	StreamedBytes int
	LastError     string
	Prompts       int
	Preemptions   int
}

// WithLock executes fn while holding the session state lock.
func (s *SessionState) WithLock(fn func(*SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Snapshot copies the state.
// Thread-safe.
func (s *SessionState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SessionState) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:         s.State,
		WaitStart:     s.WaitStart,
		IsWaiting:     s.IsWaiting,
		ChunkCount:    s.ChunkCount,
		StreamedBytes: s.StreamedBytes,
		LastError:     s.LastError,
		Prompts:       s.Prompts,
		Preemptions:   s.Preemptions,
	}
}

// SessionStateManager owns the SessionState of every session.
// Its mutex protects the map; each SessionState protects its own fields.
type SessionStateManager struct {
	mu     sync.RWMutex
	states map[string]*SessionState
}

// NewSessionStateManager creates a new session state manager.
func NewSessionStateManager() *SessionStateManager {
	return &SessionStateManager{
		states: make(map[string]*SessionState),
	}
}

// GetOrCreate returns the state for a session, creating it if it doesn't exist.
func (m *SessionStateManager) GetOrCreate(sessionID string) *SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreate(sessionID)
}

// GetIfExists returns the state for a session if it exists, nil otherwise.
func (m *SessionStateManager) GetIfExists(sessionID string) *SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[sessionID]
}

// StartWaiting moves a session to PromptRunning and resets the streaming state.
func (m *SessionStateManager) StartWaiting(sessionID string) {
	state := m.GetOrCreate(sessionID)
	state.WithLock(func(s *SessionState) {
		s.State = PromptRunning
		s.WaitStart = time.Now()
		s.IsWaiting = true
		s.ChunkCount = 0
		s.StreamedBytes = 0
		s.LastError = ""
		s.Prompts++
	})
}

// RecordChunk counts a chunk streamed to the client.
func (m *SessionStateManager) RecordChunk(sessionID, chunk string) {
	state := m.GetOrCreate(sessionID)
	state.WithLock(func(s *SessionState) {
		s.ChunkCount++
		s.StreamedBytes += len(chunk)
	})
}

// RecordPreemption counts a prompt cancelled by a newer one.
func (m *SessionStateManager) RecordPreemption(sessionID string) {
	state := m.GetOrCreate(sessionID)
	state.WithLock(func(s *SessionState) {
		s.Preemptions++
	})
}

// StopWaiting moves a session to its terminal prompt state and returns the
// resulting snapshot. errMsg is kept only for PromptFailed.
func (m *SessionStateManager) StopWaiting(sessionID string, final PromptState, errMsg string) StateSnapshot {
	var snap StateSnapshot
	state := m.GetOrCreate(sessionID)
	state.WithLock(func(s *SessionState) {
		s.State = final
		s.IsWaiting = false
		if final == PromptFailed {
			s.LastError = errMsg
		}
		snap = s.snapshotLocked()
	})
	return snap
}

// GetWaitStart returns when the session's prompt started and whether one is in flight.
func (m *SessionStateManager) GetWaitStart(sessionID string) (time.Time, bool) {
	state := m.GetIfExists(sessionID)
	if state == nil {
		return time.Time{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.WaitStart, state.IsWaiting
}

func (m *SessionStateManager) getOrCreate(sessionID string) *SessionState {
	state, ok := m.states[sessionID]
	if !ok {
		state = &SessionState{}
		m.states[sessionID] = state
	}
	return state
}
