package gemini

import (
	"errors"
	"fmt"
)

// SuccessFallback is the reply reported when the CLI exits cleanly with no content.
const SuccessFallback = "Request completed successfully."

// InfoPrefix marks stderr lines forwarded to the client.
const InfoPrefix = "ℹ️ "

var (
	// ErrSpawn wraps failures to start the CLI process.
	ErrSpawn = errors.New("failed to start Gemini CLI")

	// ErrTimeout is reported when an invocation exceeds its deadline without output.
	ErrTimeout = errors.New("Gemini CLI timed out without producing output")
)

// ExitError reports a nonzero exit of the CLI.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("Gemini CLI exited with code %d", e.Code)
}

// Outcome is the terminal classification of an invocation.
type Outcome int

const (
	// OutcomeCompleted covers clean exits and timeouts that produced output (Result.Partial).
	OutcomeCompleted Outcome = iota

	// OutcomeCancelled means the caller's context ended the invocation.
	OutcomeCancelled

	// OutcomeFailed covers spawn errors and nonzero exits.
	OutcomeFailed

	// OutcomeTimedOut means the deadline passed before any content was produced.
	OutcomeTimedOut
)

// String returns a lowercase name for logs and span attributes.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is the resolution of one invocation.
type Result struct {
	Outcome Outcome

	// Text is the filtered, trimmed reply for OutcomeCompleted.
	Text string

	// Partial is set when the deadline passed but output had been produced.
	Partial bool

	// Err is set for OutcomeFailed and OutcomeTimedOut.
	Err error

	// ExitCode is the process exit status, or -1 when unknown.
	ExitCode int

	// Stdout and Stderr hold the raw accumulated streams.
	Stdout string
	Stderr string
}
