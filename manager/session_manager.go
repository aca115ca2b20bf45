package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhubert/gemini-acp/gemini"
	"github.com/zhubert/gemini-acp/logger"
	"github.com/zhubert/gemini-acp/session"
	"github.com/zhubert/gemini-acp/tracing"
)

// DefaultExecutable is the CLI command used when none is configured.
const DefaultExecutable = "gemini"

// ErrShuttingDown is returned for prompts that arrive after Shutdown.
var ErrShuttingDown = errors.New("session manager is shutting down")

// Notifier delivers streamed agent output to the protocol client.
type Notifier interface {
	AgentMessage(ctx context.Context, sessionID, text string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, sessionID, text string) error

// AgentMessage calls f.
func (f NotifierFunc) AgentMessage(ctx context.Context, sessionID, text string) error {
	return f(ctx, sessionID, text)
}

// discardNotifier drops every message.
type discardNotifier struct{}

func (discardNotifier) AgentMessage(context.Context, string, string) error { return nil }

// SessionManager orchestrates prompts: it owns the session registry, runs one CLI
// invocation per prompt, streams its output through the Notifier and folds the
// result into the session's turn log.
type SessionManager struct {
	registry     *session.Registry
	stateManager *SessionStateManager
	runner       gemini.Runner
	executable   string
	mode         gemini.PermissionMode
	log          *slog.Logger
	tracer       trace.Tracer

	mu       sync.RWMutex // Protects notifier and closed
	notifier Notifier
	closed   bool

	inflight sync.WaitGroup
}

// NewSessionManager creates a session manager. Without options it runs the real
// CLI found as DefaultExecutable, with the default permission mode.
func NewSessionManager(opts ...Option) *SessionManager {
	sm := &SessionManager{
		registry:     session.NewRegistry(),
		stateManager: NewSessionStateManager(),
		executable:   DefaultExecutable,
		mode:         gemini.PermissionDefault,
		notifier:     discardNotifier{},
		tracer:       tracing.NoopTracer(),
	}
	for _, opt := range opts {
		opt(sm)
	}
	if sm.log == nil {
		sm.log = logger.WithComponent("manager")
	}
	if sm.runner == nil {
		sm.runner = gemini.NewProcessRunner(
			gemini.WithLogger(sm.log),
			gemini.WithTracer(sm.tracer),
		)
	}
	return sm
}

// SetNotifier replaces the notifier. The ACP connection is created after the
// manager, so the agent installs its notifier once the connection exists.
func (sm *SessionManager) SetNotifier(n Notifier) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if n == nil {
		n = discardNotifier{}
	}
	sm.notifier = n
}

// Registry returns the underlying session registry.
func (sm *SessionManager) Registry() *session.Registry {
	return sm.registry
}

// StateManager returns the per-session prompt state tracker.
func (sm *SessionManager) StateManager() *SessionStateManager {
	return sm.stateManager
}

// DefaultPermissionMode returns the configured permission mode for sessions without an override.
func (sm *SessionManager) DefaultPermissionMode() gemini.PermissionMode {
	return sm.mode
}

// NewSession registers a session rooted at cwd and returns its id.
func (sm *SessionManager) NewSession(cwd string) (string, error) {
	sess, err := sm.registry.Create(cwd)
	if err != nil {
		return "", err
	}
	sm.stateManager.GetOrCreate(sess.ID)
	sm.log.Info("session created", "sessionID", sess.ID, "cwd", sess.WorkingDir)
	return sess.ID, nil
}

// SetPermissionMode overrides the permission mode of one session for later prompts.
func (sm *SessionManager) SetPermissionMode(sessionID string, mode gemini.PermissionMode) error {
	sess, err := sm.registry.Get(sessionID)
	if err != nil {
		return err
	}
	sess.SetPermissionMode(mode)
	sm.log.Info("permission mode changed", "sessionID", sessionID, "mode", mode)
	return nil
}

// PermissionMode returns the mode prompts on the session run with.
func (sm *SessionManager) PermissionMode(sessionID string) (gemini.PermissionMode, error) {
	sess, err := sm.registry.Get(sessionID)
	if err != nil {
		return "", err
	}
	if mode := sess.PermissionMode(); mode != "" {
		return mode, nil
	}
	return sm.mode, nil
}

// Turns returns a copy of the session's conversation log.
func (sm *SessionManager) Turns(sessionID string) ([]session.Turn, error) {
	sess, err := sm.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Turns(), nil
}

// Prompt runs one prompt on a session and returns its stop reason.
//
// A prompt already in flight on the session is cancelled and fully unwound before
// this one starts. Process failures are reported to the client as a message and
// still end with StopReasonEndTurn; only errors that prevent the prompt from being
// accepted (unknown session, shutdown, ctx ending while waiting) are returned.
func (sm *SessionManager) Prompt(ctx context.Context, sessionID string, blocks []ContentBlock) (StopReason, error) {
	sess, err := sm.registry.Get(sessionID)
	if err != nil {
		return "", err
	}

	sm.mu.RLock()
	if sm.closed {
		sm.mu.RUnlock()
		return "", ErrShuttingDown
	}
	sm.inflight.Add(1)
	sm.mu.RUnlock()
	defer sm.inflight.Done()

	log := sm.log.With("sessionID", sessionID)

	ctx, span := sm.tracer.Start(ctx, tracing.SpanPrompt, trace.WithAttributes(
		attribute.String(tracing.AttrSessionID, sessionID),
		attribute.String(tracing.AttrWorkingDir, sess.WorkingDir),
		attribute.Int(tracing.AttrPromptBlocks, len(blocks)),
	))
	defer span.End()

	promptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, preempted, err := sess.Begin(ctx, cancel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("waiting for previous prompt: %w", err)
	}
	defer p.End()

	// Shutdown may have run while this prompt waited for a preempted one.
	sm.mu.RLock()
	closed := sm.closed
	sm.mu.RUnlock()
	if closed {
		log.Info("prompt dropped, shutting down")
		span.SetStatus(codes.Error, ErrShuttingDown.Error())
		return "", ErrShuttingDown
	}

	if preempted {
		log.Info("previous prompt preempted")
		span.AddEvent(tracing.EventPreempted)
		sm.stateManager.RecordPreemption(sessionID)
	}

	text, override := Flatten(blocks)
	mode := sess.PermissionMode()
	if mode == "" {
		mode = sm.mode
	}
	if override != "" {
		mode = override
	}
	span.SetAttributes(
		attribute.Int(tracing.AttrPromptLength, len(text)),
		attribute.String(tracing.AttrPermissionMode, string(mode)),
	)

	sess.AppendTurn(session.RoleUser, text)
	sm.stateManager.StartWaiting(sessionID)
	log.Info("prompt started", "length", len(text), "mode", mode)

	inv := gemini.Invocation{
		Executable: sm.executable,
		Args:       gemini.BuildArgs(text, mode),
		WorkingDir: sess.WorkingDir,
	}
	res := sm.runner.Run(promptCtx, inv, gemini.Callbacks{
		OnStart: func(proc gemini.Process) {
			if !p.AttachProcess(proc) {
				log.Debug("prompt cancelled before process registration, terminating", "pid", proc.Pid())
				_ = proc.Terminate()
			}
		},
		OnChunk: func(chunk string) {
			sm.stateManager.RecordChunk(sessionID, chunk)
			sm.notify(ctx, span, log, sessionID, chunk)
		},
	})

	var (
		reason StopReason
		snap   StateSnapshot
	)
	switch res.Outcome {
	case gemini.OutcomeCompleted:
		if res.Text != "" {
			sess.AppendTurn(session.RoleAssistant, res.Text)
		}
		if res.Partial {
			log.Warn("invocation timed out, returning partial output", "length", len(res.Text))
		}
		snap = sm.stateManager.StopWaiting(sessionID, PromptCompleted, "")
		reason = StopReasonEndTurn
	case gemini.OutcomeCancelled:
		snap = sm.stateManager.StopWaiting(sessionID, PromptCancelled, "")
		reason = StopReasonCancelled
	default:
		msg := errorMessage(res)
		log.Error("invocation failed", "outcome", res.Outcome, "exitCode", res.ExitCode, "error", msg)
		span.SetAttributes(attribute.String(tracing.AttrErrorMessage, msg))
		sm.notify(ctx, span, log, sessionID, "Error: "+msg)
		snap = sm.stateManager.StopWaiting(sessionID, PromptFailed, msg)
		reason = StopReasonEndTurn
	}

	duration := time.Since(snap.WaitStart)
	span.SetAttributes(
		attribute.String(tracing.AttrStopReason, string(reason)),
		attribute.String(tracing.AttrOutcome, res.Outcome.String()),
		attribute.Int(tracing.AttrChunkCount, snap.ChunkCount),
		attribute.Int64(tracing.AttrDurationMs, duration.Milliseconds()),
	)
	log.Info("prompt finished",
		"stopReason", reason,
		"outcome", res.Outcome,
		"duration", duration,
		"chunks", snap.ChunkCount,
		"bytes", snap.StreamedBytes,
		"prompts", snap.Prompts,
		"preemptions", snap.Preemptions,
	)
	return reason, nil
}

// Cancel cancels the session's in-flight prompt and terminates its process.
// It returns session.ErrNotGenerating when nothing is in flight.
func (sm *SessionManager) Cancel(sessionID string) error {
	sess, err := sm.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if err := sess.Cancel(); err != nil {
		return fmt.Errorf("cancel session %s: %w", sessionID, err)
	}
	sm.log.Info("prompt cancelled", "sessionID", sessionID)
	return nil
}

// Shutdown rejects new prompts, cancels every in-flight prompt and waits for
// them to unwind or for ctx to end.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	sm.closed = true
	sm.mu.Unlock()

	for _, sess := range sm.registry.List() {
		started, waiting := sm.stateManager.GetWaitStart(sess.ID)
		if err := sess.Cancel(); err == nil {
			attrs := []any{"sessionID", sess.ID}
			if waiting {
				attrs = append(attrs, "runningFor", time.Since(started))
			}
			sm.log.Info("cancelled prompt on shutdown", attrs...)
		}
	}

	done := make(chan struct{})
	go func() {
		sm.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify forwards one message to the client. Delivery failures are logged and dropped.
func (sm *SessionManager) notify(ctx context.Context, span trace.Span, log *slog.Logger, sessionID, text string) {
	sm.mu.RLock()
	n := sm.notifier
	sm.mu.RUnlock()

	if err := n.AgentMessage(ctx, sessionID, text); err != nil {
		log.Warn("failed to deliver agent message", "error", err)
		span.AddEvent(tracing.EventNotifyFailed, trace.WithAttributes(
			attribute.String(tracing.AttrErrorMessage, err.Error()),
		))
	}
}

// errorMessage returns the client-visible text for a failed invocation.
func errorMessage(res gemini.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return fmt.Sprintf("Gemini CLI exited with code %d", res.ExitCode)
}
