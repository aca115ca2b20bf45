package gemini

import "context"

// Runner executes one Gemini CLI invocation per call.
// This allows the orchestrator to be tested with MockRunner while
// production uses ProcessRunner.
type Runner interface {
	// Run spawns the invocation and blocks until it resolves.
	// Callbacks fire from runner goroutines and never after Run returns.
	Run(ctx context.Context, inv Invocation, cb Callbacks) Result
}

// Process is a handle on a spawned child, registered on the session while it runs.
type Process interface {
	// Pid returns the OS process id.
	Pid() int

	// Terminate sends one graceful termination signal. Later calls are no-ops.
	Terminate() error
}

// Invocation describes a single external-tool execution.
type Invocation struct {
	Executable string
	Args       []string
	WorkingDir string
}

// Callbacks are invoked by a Runner while an invocation is in flight.
type Callbacks struct {
	// OnStart receives the process handle right after spawn.
	OnStart func(Process)

	// OnChunk receives filtered output fragments in stream order.
	OnChunk func(text string)
}

// Ensure ProcessRunner implements Runner at compile time.
var _ Runner = (*ProcessRunner)(nil)
