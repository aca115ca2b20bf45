package manager

// StopReason is the terminal classification returned for a prompt.
type StopReason string

const (
	// StopReasonEndTurn covers completed prompts and failures surfaced as content.
	StopReasonEndTurn StopReason = "end_turn"

	// StopReasonCancelled is returned when the prompt was cancelled or preempted.
	StopReasonCancelled StopReason = "cancelled"
)

// BlockKind identifies the type of a prompt content block.
type BlockKind int

const (
	// BlockText is plain text typed by the user.
	BlockText BlockKind = iota

	// BlockResource is an embedded resource, usually a file with inline text.
	BlockResource

	// BlockUnsupported stands in for content the CLI cannot take (images, audio).
	BlockUnsupported
)

// ContentBlock is one segment of a structured prompt, independent of the wire format.
type ContentBlock struct {
	Kind     BlockKind
	Text     string // Text for BlockText, inline resource contents for BlockResource
	URI      string // Resource location; empty for text blocks
	MimeType string
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

// ResourceBlock builds an embedded resource block carrying inline text.
func ResourceBlock(uri, text string) ContentBlock {
	return ContentBlock{Kind: BlockResource, URI: uri, Text: text}
}

// PromptState is the lifecycle state of a session's most recent prompt.
// Prompts move Idle -> Running -> {Completed, Cancelled, Failed}.
type PromptState int

const (
	// PromptIdle means no prompt has run on the session yet.
	PromptIdle PromptState = iota

	// PromptRunning means a prompt is in flight.
	PromptRunning

	// PromptCompleted means the last prompt produced a reply.
	PromptCompleted

	// PromptCancelled means the last prompt was cancelled or preempted.
	PromptCancelled

	// PromptFailed means the last prompt ended in a process failure or timeout.
	PromptFailed
)

// String returns a human-readable name for the prompt state.
func (s PromptState) String() string {
	switch s {
	case PromptIdle:
		return "idle"
	case PromptRunning:
		return "running"
	case PromptCompleted:
		return "completed"
	case PromptCancelled:
		return "cancelled"
	case PromptFailed:
		return "failed"
	default:
		return "unknown"
	}
}
