package manager

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/zhubert/gemini-acp/gemini"
)

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithRunner replaces the process runner (tests inject gemini.MockRunner).
func WithRunner(r gemini.Runner) Option {
	return func(sm *SessionManager) { sm.runner = r }
}

// WithExecutable sets the CLI command invoked for each prompt.
func WithExecutable(path string) Option {
	return func(sm *SessionManager) { sm.executable = path }
}

// WithPermissionMode sets the default permission mode for new sessions.
func WithPermissionMode(mode gemini.PermissionMode) Option {
	return func(sm *SessionManager) { sm.mode = mode }
}

// WithNotifier sets the sink for streamed agent messages.
func WithNotifier(n Notifier) Option {
	return func(sm *SessionManager) { sm.notifier = n }
}

// WithLogger sets the base logger.
func WithLogger(log *slog.Logger) Option {
	return func(sm *SessionManager) { sm.log = log }
}

// WithTracer sets the tracer used for prompt spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(sm *SessionManager) { sm.tracer = tracer }
}
