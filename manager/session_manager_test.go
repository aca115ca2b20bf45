package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhubert/gemini-acp/gemini"
	"github.com/zhubert/gemini-acp/session"
)

// recordingNotifier collects agent messages and optionally fails every delivery.
type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (n *recordingNotifier) AgentMessage(_ context.Context, _ string, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return n.err
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func newTestManager(t *testing.T, runner gemini.Runner, opts ...Option) (*SessionManager, *recordingNotifier, string) {
	t.Helper()
	n := &recordingNotifier{}
	opts = append([]Option{
		WithRunner(runner),
		WithNotifier(n),
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	sm := NewSessionManager(opts...)

	id, err := sm.NewSession(t.TempDir())
	require.NoError(t, err)
	return sm, n, id
}

func completed(text string) gemini.Result {
	return gemini.Result{Outcome: gemini.OutcomeCompleted, Text: text}
}

type promptResult struct {
	reason StopReason
	err    error
}

func promptAsync(sm *SessionManager, id string, blocks ...ContentBlock) <-chan promptResult {
	ch := make(chan promptResult, 1)
	go func() {
		reason, err := sm.Prompt(context.Background(), id, blocks)
		ch <- promptResult{reason, err}
	}()
	return ch
}

func waitStarted(t *testing.T, runner *gemini.MockRunner) *gemini.MockProcess {
	t.Helper()
	select {
	case proc := <-runner.Started():
		return proc
	case <-time.After(2 * time.Second):
		t.Fatal("invocation did not start")
		return nil
	}
}

func waitPrompt(t *testing.T, ch <-chan promptResult) promptResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("prompt did not finish")
		return promptResult{}
	}
}

func TestPrompt_UnknownSession(t *testing.T) {
	runner := gemini.NewMockRunner(completed("never"))
	sm, n, _ := newTestManager(t, runner)

	_, err := sm.Prompt(context.Background(), "missing", []ContentBlock{TextBlock("hi")})

	require.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Empty(t, runner.Invocations(), "no process may be spawned for an unknown session")
	assert.Empty(t, n.messages())
}

func TestCancel_NotGenerating(t *testing.T) {
	runner := gemini.NewMockRunner(completed("never"))
	sm, _, id := newTestManager(t, runner)

	require.ErrorIs(t, sm.Cancel(id), session.ErrNotGenerating)
	require.ErrorIs(t, sm.Cancel("missing"), session.ErrSessionNotFound)
	assert.Empty(t, runner.Invocations())
}

func TestPrompt_StreamsAndRecordsTurns(t *testing.T) {
	runner := gemini.NewMockRunner(completed("hello\nworld"))
	runner.Chunks = []string{"hello\n", "world\n"}
	sm, n, id := newTestManager(t, runner)

	reason, err := sm.Prompt(context.Background(), id, []ContentBlock{
		TextBlock("Fix bug"),
		ResourceBlock("file:///a.ts", "const x=1;"),
	})
	require.NoError(t, err)
	assert.Equal(t, StopReasonEndTurn, reason)
	assert.Equal(t, []string{"hello\n", "world\n"}, n.messages())

	invs := runner.Invocations()
	require.Len(t, invs, 1)
	sess, err := sm.Registry().Get(id)
	require.NoError(t, err)
	assert.Equal(t, DefaultExecutable, invs[0].Executable)
	assert.Equal(t, sess.WorkingDir, invs[0].WorkingDir)
	assert.Equal(t, []string{"--prompt", "Fix bug\n\nFile: file:///a.ts\n```\nconst x=1;\n```"}, invs[0].Args)

	turns, err := sm.Turns(id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, "hello\nworld", turns[1].Text)

	assert.False(t, sess.IsGenerating())
	assert.Nil(t, sess.ActiveProcess())

	snap := sm.StateManager().GetOrCreate(id).Snapshot()
	assert.Equal(t, PromptCompleted, snap.State)
	assert.Equal(t, 2, snap.ChunkCount)
	assert.Equal(t, len("hello\nworld\n"), snap.StreamedBytes)
	assert.False(t, snap.IsWaiting)
}

func TestPrompt_PermissionModes(t *testing.T) {
	runner := gemini.NewMockRunner(completed("ok"))
	sm, _, id := newTestManager(t, runner, WithExecutable("/opt/gemini"), WithPermissionMode(gemini.PermissionAutoEdit))

	_, err := sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("one")})
	require.NoError(t, err)

	require.NoError(t, sm.SetPermissionMode(id, gemini.PermissionYolo))
	_, err = sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("two")})
	require.NoError(t, err)

	_, err = sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("[[permission:default]]three")})
	require.NoError(t, err)

	_, err = sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("four")})
	require.NoError(t, err)

	invs := runner.Invocations()
	require.Len(t, invs, 4)
	assert.Equal(t, "/opt/gemini", invs[0].Executable)
	assert.Equal(t, []string{"--prompt", "one", "--approval-mode", "auto_edit"}, invs[0].Args)
	assert.Equal(t, []string{"--prompt", "two", "--yolo"}, invs[1].Args)
	assert.Equal(t, []string{"--prompt", "three"}, invs[2].Args, "marker applies to one prompt and is stripped")
	assert.Equal(t, []string{"--prompt", "four", "--yolo"}, invs[3].Args)

	mode, err := sm.PermissionMode(id)
	require.NoError(t, err)
	assert.Equal(t, gemini.PermissionYolo, mode)

	require.ErrorIs(t, sm.SetPermissionMode("missing", gemini.PermissionYolo), session.ErrSessionNotFound)
}

func TestPrompt_FailureBecomesMessage(t *testing.T) {
	runner := gemini.NewMockRunner(gemini.Result{
		Outcome:  gemini.OutcomeFailed,
		Err:      &gemini.ExitError{Code: 2, Stderr: "API key invalid"},
		ExitCode: 2,
	})
	sm, n, id := newTestManager(t, runner)

	reason, err := sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("hi")})

	require.NoError(t, err, "process failures are not protocol errors")
	assert.Equal(t, StopReasonEndTurn, reason)
	assert.Equal(t, []string{"Error: API key invalid"}, n.messages())

	turns, _ := sm.Turns(id)
	require.Len(t, turns, 1, "failed prompts append no assistant turn")

	snap := sm.StateManager().GetOrCreate(id).Snapshot()
	assert.Equal(t, PromptFailed, snap.State)
	assert.Equal(t, "API key invalid", snap.LastError)
}

func TestPrompt_TimeoutWithoutOutput(t *testing.T) {
	runner := gemini.NewMockRunner(gemini.Result{Outcome: gemini.OutcomeTimedOut, Err: gemini.ErrTimeout, ExitCode: -1})
	sm, n, id := newTestManager(t, runner)

	reason, err := sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("hi")})

	require.NoError(t, err)
	assert.Equal(t, StopReasonEndTurn, reason)
	assert.Equal(t, []string{"Error: " + gemini.ErrTimeout.Error()}, n.messages())
}

func TestPrompt_NotificationErrorsAreSwallowed(t *testing.T) {
	runner := gemini.NewMockRunner(completed("a\nb"))
	runner.Chunks = []string{"a\n", "b\n"}
	sm, n, id := newTestManager(t, runner)
	n.err = errors.New("client went away")

	reason, err := sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("hi")})

	require.NoError(t, err)
	assert.Equal(t, StopReasonEndTurn, reason)
	assert.Len(t, n.messages(), 2, "each chunk is attempted once, never retried")

	turns, _ := sm.Turns(id)
	require.Len(t, turns, 2)
	assert.Equal(t, "a\nb", turns[1].Text)
}

func TestPrompt_CancelMidStream(t *testing.T) {
	runner := gemini.NewMockRunner(completed("unused"))
	runner.Chunks = []string{"partial\n"}
	runner.BlockUntilCancel = true
	sm, n, id := newTestManager(t, runner)

	done := promptAsync(sm, id, TextBlock("long task"))
	proc := waitStarted(t, runner)

	sess, err := sm.Registry().Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.ActiveProcess() != nil }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sm.Cancel(id))

	r := waitPrompt(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, StopReasonCancelled, r.reason)
	assert.True(t, proc.Terminated(), "cancel terminates the active process")

	turns, _ := sm.Turns(id)
	require.Len(t, turns, 1, "cancelled prompts append no assistant turn")
	assert.False(t, sess.IsGenerating())
	assert.Nil(t, sess.ActiveProcess())
	assert.Equal(t, []string{"partial\n"}, n.messages())
	assert.Equal(t, PromptCancelled, sm.StateManager().GetOrCreate(id).Snapshot().State)

	require.ErrorIs(t, sm.Cancel(id), session.ErrNotGenerating)
}

func TestPrompt_NewPromptPreemptsOld(t *testing.T) {
	runner := gemini.NewMockRunner(completed("unused"))
	runner.BlockUntilCancel = true
	sm, _, id := newTestManager(t, runner)

	first := promptAsync(sm, id, TextBlock("first"))
	procA := waitStarted(t, runner)

	second := promptAsync(sm, id, TextBlock("second"))

	r := waitPrompt(t, first)
	require.NoError(t, r.err)
	assert.Equal(t, StopReasonCancelled, r.reason)
	assert.True(t, procA.Terminated(), "the preempted prompt's process is terminated")

	procB := waitStarted(t, runner)
	assert.NotSame(t, procA, procB)
	assert.Equal(t, 1, runner.MaxConcurrent(), "two invocations never overlap on one session")

	sess, err := sm.Registry().Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.ActiveProcess() == gemini.Process(procB) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sm.Cancel(id))
	r = waitPrompt(t, second)
	assert.Equal(t, StopReasonCancelled, r.reason)

	snap := sm.StateManager().GetOrCreate(id).Snapshot()
	assert.Equal(t, 2, snap.Prompts)
	assert.Equal(t, 1, snap.Preemptions)
}

func TestPrompt_SessionsRunIndependently(t *testing.T) {
	runner := gemini.NewMockRunner(completed("unused"))
	runner.BlockUntilCancel = true
	sm, _, idA := newTestManager(t, runner)
	idB, err := sm.NewSession(t.TempDir())
	require.NoError(t, err)

	doneA := promptAsync(sm, idA, TextBlock("a"))
	doneB := promptAsync(sm, idB, TextBlock("b"))
	waitStarted(t, runner)
	waitStarted(t, runner)

	assert.Equal(t, 2, runner.MaxConcurrent())

	require.Eventually(t, func() bool {
		a, _ := sm.Registry().Get(idA)
		b, _ := sm.Registry().Get(idB)
		return a.ActiveProcess() != nil && b.ActiveProcess() != nil
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sm.Cancel(idA))
	assert.Equal(t, StopReasonCancelled, waitPrompt(t, doneA).reason)

	b, _ := sm.Registry().Get(idB)
	assert.True(t, b.IsGenerating(), "cancelling one session leaves others running")

	require.NoError(t, sm.Cancel(idB))
	assert.Equal(t, StopReasonCancelled, waitPrompt(t, doneB).reason)
}

func TestShutdown_CancelsInflightPrompts(t *testing.T) {
	runner := gemini.NewMockRunner(completed("unused"))
	runner.BlockUntilCancel = true
	sm, _, id := newTestManager(t, runner)

	done := promptAsync(sm, id, TextBlock("work"))
	waitStarted(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sm.Shutdown(ctx))

	r := waitPrompt(t, done)
	assert.Equal(t, StopReasonCancelled, r.reason)

	_, err := sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("late")})
	require.ErrorIs(t, err, ErrShuttingDown)
}

// slowUnwindRunner blocks until cancelled and then holds the return until release is closed.
type slowUnwindRunner struct {
	mu        sync.Mutex
	runs      int
	started   chan struct{}
	cancelled chan struct{}
	release   chan struct{}
}

func (r *slowUnwindRunner) Run(ctx context.Context, _ gemini.Invocation, _ gemini.Callbacks) gemini.Result {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	r.started <- struct{}{}
	<-ctx.Done()
	r.cancelled <- struct{}{}
	<-r.release
	return gemini.Result{Outcome: gemini.OutcomeCancelled, ExitCode: -1}
}

func (r *slowUnwindRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestShutdown_DropsPromptWaitingOnPreemption(t *testing.T) {
	runner := &slowUnwindRunner{
		started:   make(chan struct{}, 4),
		cancelled: make(chan struct{}, 4),
		release:   make(chan struct{}),
	}
	sm, _, id := newTestManager(t, runner)

	first := promptAsync(sm, id, TextBlock("first"))
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first prompt did not start")
	}

	second := promptAsync(sm, id, TextBlock("second"))
	select {
	case <-runner.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("second prompt did not preempt the first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sm.Shutdown(ctx), context.DeadlineExceeded, "the first prompt is still unwinding")

	close(runner.release)

	assert.Equal(t, StopReasonCancelled, waitPrompt(t, first).reason)
	r := waitPrompt(t, second)
	require.ErrorIs(t, r.err, ErrShuttingDown)
	assert.Equal(t, 1, runner.count(), "no invocation starts after shutdown")

	sess, err := sm.Registry().Get(id)
	require.NoError(t, err)
	assert.False(t, sess.IsGenerating())
}

func TestPrompt_FinishedSnapshot(t *testing.T) {
	runner := gemini.NewMockRunner(completed("ok"))
	runner.Chunks = []string{"ok\n"}
	sm, _, id := newTestManager(t, runner)

	_, err := sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("a")})
	require.NoError(t, err)
	_, err = sm.Prompt(context.Background(), id, []ContentBlock{TextBlock("b")})
	require.NoError(t, err)

	start, waiting := sm.StateManager().GetWaitStart(id)
	assert.False(t, waiting)
	assert.False(t, start.IsZero())

	snap := sm.StateManager().GetOrCreate(id).Snapshot()
	assert.Equal(t, 2, snap.Prompts)
	assert.Equal(t, 1, snap.ChunkCount, "chunk counters reset per prompt")
	assert.Equal(t, 3, snap.StreamedBytes)
}

func TestNewSession_RejectsRelativeDir(t *testing.T) {
	sm := NewSessionManager(WithRunner(gemini.NewMockRunner(completed(""))), WithLogger(slog.New(slog.DiscardHandler)))

	_, err := sm.NewSession("relative")
	require.ErrorIs(t, err, session.ErrInvalidWorkingDir)
	assert.Equal(t, 0, sm.Registry().Len())
}
