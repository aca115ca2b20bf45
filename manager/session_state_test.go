package manager

import (
	"sync"
	"testing"
)

func TestSessionStateManager_GetCreatesState(t *testing.T) {
	m := NewSessionStateManager()

	state := m.GetOrCreate("session-1")
	if state == nil {
		t.Fatal("expected non-nil state")
	}
	if state != m.GetOrCreate("session-1") {
		t.Error("expected same state object on second Get")
	}
}

func TestSessionStateManager_GetIfExistsDoesNotCreate(t *testing.T) {
	m := NewSessionStateManager()

	if m.GetIfExists("session-1") != nil {
		t.Error("expected nil for non-existent session")
	}
	m.GetOrCreate("session-1")
	if m.GetIfExists("session-1") == nil {
		t.Error("expected state after GetOrCreate")
	}
}

func TestSessionStateManager_PromptLifecycle(t *testing.T) {
	m := NewSessionStateManager()

	if _, waiting := m.GetWaitStart("s"); waiting {
		t.Error("unknown session should not be waiting")
	}

	m.StartWaiting("s")
	start, waiting := m.GetWaitStart("s")
	if !waiting || start.IsZero() {
		t.Fatal("StartWaiting should record the start time")
	}
	if got := m.GetOrCreate("s").Snapshot().State; got != PromptRunning {
		t.Errorf("state = %v, want running", got)
	}

	m.RecordChunk("s", "a\n")
	m.RecordChunk("s", "b\n")
	snap := m.StopWaiting("s", PromptFailed, "boom")
	if snap != m.GetOrCreate("s").Snapshot() {
		t.Error("StopWaiting should return the stored snapshot")
	}
	if snap.State != PromptFailed || snap.IsWaiting {
		t.Errorf("snapshot = %+v, want failed and not waiting", snap)
	}
	if snap.StreamedBytes != 4 || snap.ChunkCount != 2 {
		t.Errorf("streaming = %d bytes/%d chunks", snap.StreamedBytes, snap.ChunkCount)
	}
	if snap.LastError != "boom" {
		t.Errorf("LastError = %q", snap.LastError)
	}

	m.StartWaiting("s")
	snap = m.GetOrCreate("s").Snapshot()
	if snap.StreamedBytes != 0 || snap.ChunkCount != 0 || snap.LastError != "" {
		t.Error("StartWaiting should reset per-prompt fields")
	}
	if snap.Prompts != 2 {
		t.Errorf("Prompts = %d, want 2", snap.Prompts)
	}

	m.StopWaiting("s", PromptCompleted, "ignored")
	if m.GetOrCreate("s").Snapshot().LastError != "" {
		t.Error("LastError is only kept for failures")
	}
}

func TestSessionStateManager_ConcurrentAppends(t *testing.T) {
	m := NewSessionStateManager()
	m.StartWaiting("s")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordChunk("s", "x")
			m.RecordPreemption("s")
		}()
	}
	wg.Wait()

	snap := m.GetOrCreate("s").Snapshot()
	if snap.ChunkCount != 20 || snap.StreamedBytes != 20 || snap.Preemptions != 20 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestPromptState_String(t *testing.T) {
	tests := []struct {
		state PromptState
		want  string
	}{
		{PromptIdle, "idle"},
		{PromptRunning, "running"},
		{PromptCompleted, "completed"},
		{PromptCancelled, "cancelled"},
		{PromptFailed, "failed"},
		{PromptState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
