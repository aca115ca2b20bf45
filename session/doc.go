// Package session holds per-conversation state for the ACP agent.
//
// # Overview
//
// A Session is created by the ACP session/new request and lives until the
// agent process exits. It carries the working directory the Gemini CLI runs
// in, the turn history, and the handles of the prompt currently in flight.
//
// # Prompt Handles
//
// At most one prompt runs per session. Begin installs the cancellation
// handle for a new prompt; if another prompt is still in flight it is
// cancelled first and Begin waits until that prompt has fully unwound.
// The running prompt attaches its process with AttachProcess and releases
// both handles with End:
//
//	p, _, err := sess.Begin(ctx, cancel)
//	if err != nil {
//	    return err
//	}
//	defer p.End()
//	// ... run the CLI, calling p.AttachProcess(proc) once it has spawned
//
// A process handle is only ever present while a cancellation handle is.
//
// # Thread Safety
//
// Session fields are guarded by an internal mutex; Registry guards its map
// with a RWMutex. Callers never touch session internals directly.
package session
