package tracing

// Span names.
const (
	SpanPrompt       = "session.prompt"
	SpanInvocation   = "gemini.invocation"
	SpanAuthenticate = "agent.authenticate"
)

// Span attribute keys.
const (
	// Session attributes
	AttrSessionID      = "session.id"
	AttrWorkingDir     = "session.working_dir"
	AttrPermissionMode = "session.permission_mode"

	// Prompt attributes
	AttrPromptLength = "prompt.length"
	AttrPromptBlocks = "prompt.blocks"
	AttrStopReason   = "prompt.stop_reason"
	AttrDurationMs   = "prompt.duration_ms"

	// Process attributes
	AttrProcessID  = "process.pid"
	AttrExitCode   = "process.exit_code"
	AttrOutcome    = "invocation.outcome"
	AttrPartial    = "invocation.partial"
	AttrChunkCount = "invocation.chunks"

	// Error attributes
	AttrErrorMessage = "error.message"
)

// Event names for span events.
const (
	EventPreempted       = "prompt.preempted"
	EventProcessStarted  = "process.started"
	EventTerminationSent = "process.termination_sent"
	EventNotifyFailed    = "notification.failed"
)
