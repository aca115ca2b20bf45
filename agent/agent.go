// Package agent exposes the session manager over the Agent Client Protocol.
//
// Agent implements acp.Agent. Every ACP type stays inside this package; the
// manager and gemini packages never see the wire format.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	acp "github.com/coder/acp-go-sdk"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhubert/gemini-acp/exec"
	"github.com/zhubert/gemini-acp/gemini"
	"github.com/zhubert/gemini-acp/manager"
	"github.com/zhubert/gemini-acp/session"
	"github.com/zhubert/gemini-acp/tracing"
)

// errNoConnection is returned by AgentMessage before a connection is attached.
var errNoConnection = errors.New("no ACP connection")

// sessionUpdater is the part of *acp.AgentSideConnection the agent needs.
type sessionUpdater interface {
	SessionUpdate(ctx context.Context, n acp.SessionNotification) error
}

// Agent serves ACP requests from a SessionManager.
type Agent struct {
	manager    *manager.SessionManager
	executor   exec.CommandExecutor
	executable string
	log        *slog.Logger
	tracer     trace.Tracer

	mu      sync.RWMutex
	updater sessionUpdater
}

// Option configures an Agent.
type Option func(*Agent)

// WithExecutor sets the executor used for the authentication probe.
func WithExecutor(e exec.CommandExecutor) Option {
	return func(a *Agent) { a.executor = e }
}

// WithExecutable sets the CLI command probed by authenticate.
func WithExecutable(path string) Option {
	return func(a *Agent) { a.executable = path }
}

// WithLogger sets the agent's logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) { a.log = log }
}

// WithTracer sets the tracer used for authentication spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Agent) { a.tracer = tracer }
}

// New creates an agent over sm and registers itself as sm's notifier.
func New(sm *manager.SessionManager, opts ...Option) *Agent {
	a := &Agent{
		manager:    sm,
		executor:   exec.GetDefaultExecutor(),
		executable: manager.DefaultExecutable,
		log:        slog.Default(),
		tracer:     tracing.NoopTracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	sm.SetNotifier(a)
	return a
}

var (
	_ acp.Agent        = (*Agent)(nil)
	_ manager.Notifier = (*Agent)(nil)
)

// SetAgentConnection routes session updates through conn. Serve calls it once
// the connection exists.
func (a *Agent) SetAgentConnection(conn *acp.AgentSideConnection) {
	a.setUpdater(conn)
}

func (a *Agent) setUpdater(u sessionUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updater = u
}

// AgentMessage sends one agent_message_chunk notification. It implements manager.Notifier.
func (a *Agent) AgentMessage(ctx context.Context, sessionID, text string) error {
	a.mu.RLock()
	u := a.updater
	a.mu.RUnlock()
	if u == nil {
		return errNoConnection
	}
	return u.SessionUpdate(ctx, acp.SessionNotification{
		SessionId: acp.SessionId(sessionID),
		Update:    acp.UpdateAgentMessageText(text),
	})
}

// Initialize implements acp.Agent.
func (a *Agent) Initialize(ctx context.Context, params acp.InitializeRequest) (acp.InitializeResponse, error) {
	a.log.Info("client connected", "protocolVersion", params.ProtocolVersion)

	return acp.InitializeResponse{
		ProtocolVersion: acp.ProtocolVersionNumber,
		AgentCapabilities: acp.AgentCapabilities{
			LoadSession: false,
			PromptCapabilities: acp.PromptCapabilities{
				EmbeddedContext: true,
				Image:           false,
				Audio:           false,
			},
		},
		AuthMethods: []acp.AuthMethod{
			{
				Id:          acp.AuthMethodId(gemini.AuthMethodID),
				Name:        gemini.AuthMethodName,
				Description: acp.Ptr("Uses the credentials of an already logged-in Gemini CLI"),
			},
		},
	}, nil
}

// Authenticate implements acp.Agent. It succeeds when the CLI answers a version probe.
func (a *Agent) Authenticate(ctx context.Context, params acp.AuthenticateRequest) (acp.AuthenticateResponse, error) {
	if string(params.MethodId) != gemini.AuthMethodID {
		a.log.Warn("unknown auth method", "methodId", params.MethodId)
		return acp.AuthenticateResponse{}, acp.NewInvalidParams(map[string]any{
			"methodId": params.MethodId,
			"error":    "unsupported authentication method",
		})
	}

	ctx, span := a.tracer.Start(ctx, tracing.SpanAuthenticate)
	defer span.End()

	version, err := gemini.CheckAuth(ctx, a.executor, a.executable, a.log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return acp.AuthenticateResponse{}, acp.NewAuthRequired(map[string]any{
			"message": gemini.AuthRequiredMessage,
			"error":   err.Error(),
		})
	}

	span.SetAttributes(attribute.String("gemini.version", version))
	return acp.AuthenticateResponse{}, nil
}

// NewSession implements acp.Agent.
func (a *Agent) NewSession(ctx context.Context, params acp.NewSessionRequest) (acp.NewSessionResponse, error) {
	if len(params.McpServers) > 0 {
		a.log.Debug("ignoring MCP servers; the Gemini CLI reads its own settings", "count", len(params.McpServers))
	}

	id, err := a.manager.NewSession(params.Cwd)
	if err != nil {
		return acp.NewSessionResponse{}, toRequestError(err)
	}

	return acp.NewSessionResponse{
		SessionId: acp.SessionId(id),
		Modes:     sessionModes(a.manager.DefaultPermissionMode()),
	}, nil
}

// SetSessionMode implements acp.Agent by overriding the session's permission mode.
func (a *Agent) SetSessionMode(ctx context.Context, params acp.SetSessionModeRequest) (acp.SetSessionModeResponse, error) {
	mode, err := gemini.ParsePermissionMode(string(params.ModeId))
	if err != nil {
		return acp.SetSessionModeResponse{}, toRequestError(err)
	}
	if err := a.manager.SetPermissionMode(string(params.SessionId), mode); err != nil {
		return acp.SetSessionModeResponse{}, toRequestError(err)
	}
	return acp.SetSessionModeResponse{}, nil
}

// Prompt implements acp.Agent.
func (a *Agent) Prompt(ctx context.Context, params acp.PromptRequest) (acp.PromptResponse, error) {
	reason, err := a.manager.Prompt(ctx, string(params.SessionId), toContentBlocks(params.Prompt))
	if err != nil {
		a.log.Warn("prompt rejected", "sessionID", params.SessionId, "error", err)
		return acp.PromptResponse{}, toRequestError(err)
	}
	return acp.PromptResponse{StopReason: toStopReason(reason)}, nil
}

// Cancel implements acp.Agent.
func (a *Agent) Cancel(ctx context.Context, params acp.CancelNotification) error {
	if err := a.manager.Cancel(string(params.SessionId)); err != nil {
		a.log.Info("cancel ignored", "sessionID", params.SessionId, "error", err)
		return toRequestError(err)
	}
	return nil
}

// toRequestError maps manager and session errors onto protocol errors.
func toRequestError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrInvalidWorkingDir),
		errors.Is(err, session.ErrNotGenerating),
		errors.Is(err, gemini.ErrInvalidPermissionMode):
		return acp.NewInvalidParams(map[string]any{"error": err.Error()})
	default:
		return acp.NewInternalError(map[string]any{"error": fmt.Sprint(err)})
	}
}
