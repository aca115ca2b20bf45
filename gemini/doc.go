// Package gemini runs the Gemini CLI as a single-shot child process.
//
// # Invocations
//
// Each prompt is one process: the CLI is started with --prompt and any
// permission flags, stdin is closed immediately, and output is streamed
// back as it arrives:
//
//	runner := gemini.NewProcessRunner(gemini.WithLogger(log))
//	res := runner.Run(ctx, gemini.Invocation{
//	    Executable: "gemini",
//	    Args:       gemini.BuildArgs(text, gemini.PermissionDefault),
//	    WorkingDir: dir,
//	}, gemini.Callbacks{
//	    OnChunk: func(s string) { fmt.Print(s) },
//	})
//
// # Output Filtering
//
// The CLI prints banners, progress and debug lines around its reply.
// IsNoise classifies single lines; stdout and stderr are filtered line by
// line before anything reaches OnChunk. Non-noise stderr lines are forwarded
// with InfoPrefix.
//
// # Termination
//
// Cancelling ctx or exceeding the timeout (DefaultTimeout) sends SIGTERM
// once. The runner waits TerminationGrace for the exit and then resolves;
// it never sends SIGKILL. A timed-out invocation that already produced
// content resolves as a partial success.
//
// # Authentication
//
// The CLI owns its login flow. CheckAuth only probes `--version` with a
// short timeout to decide whether the CLI is usable.
package gemini
