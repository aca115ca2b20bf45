// Package process finds Gemini CLI invocations left running by a previous
// gemini-acp instance.
//
// A prompt runs the CLI as a child of the adapter. If the adapter dies while a
// prompt is in flight, the child is reparented to init and keeps running.
// These orphans are what doctor reports and `doctor --clean` terminates.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/zhubert/gemini-acp/exec"
)

// ErrUnsupported is returned on platforms without ps(1).
var ErrUnsupported = errors.New("process listing not supported on " + runtime.GOOS)

// GeminiProcess represents a running Gemini CLI process found on the system.
type GeminiProcess struct {
	PID     int    // Process ID
	PPID    int    // Parent process ID
	Command string // Full command line
}

// Orphaned reports whether the process has lost the adapter that started it.
func (p GeminiProcess) Orphaned() bool {
	return p.PPID == 1
}

// FindGeminiProcesses lists single-shot Gemini CLI invocations, i.e. processes
// whose command is executable and which carry a --prompt argument.
func FindGeminiProcesses(ctx context.Context, executor exec.CommandExecutor, executable string) ([]GeminiProcess, error) {
	if runtime.GOOS == "windows" {
		return nil, ErrUnsupported
	}

	output, err := executor.Output(ctx, "", "ps", "-eo", "pid=,ppid=,args=")
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	return parsePS(string(output), executable), nil
}

// FindOrphanedGeminiProcesses returns the subset of FindGeminiProcesses whose
// parent has exited.
func FindOrphanedGeminiProcesses(ctx context.Context, executor exec.CommandExecutor, executable string, log *slog.Logger) ([]GeminiProcess, error) {
	all, err := FindGeminiProcesses(ctx, executor, executable)
	if err != nil {
		return nil, err
	}

	var orphans []GeminiProcess
	for _, proc := range all {
		if proc.Orphaned() {
			log.Info("found orphaned Gemini process", "pid", proc.PID)
			orphans = append(orphans, proc)
		}
	}
	log.Debug("scanned Gemini processes", "count", len(all), "orphans", len(orphans))
	return orphans, nil
}

// Terminate asks a process to exit with SIGTERM. It never escalates to SIGKILL.
func Terminate(ctx context.Context, executor exec.CommandExecutor, pid int) error {
	if runtime.GOOS == "windows" {
		return ErrUnsupported
	}
	if _, stderr, err := executor.Run(ctx, "", "kill", "-TERM", strconv.Itoa(pid)); err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return fmt.Errorf("kill %d: %s: %w", pid, msg, err)
		}
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}

// CleanupOrphanedProcesses terminates every orphaned Gemini process.
// Returns the number of processes signalled.
func CleanupOrphanedProcesses(ctx context.Context, executor exec.CommandExecutor, executable string, log *slog.Logger) (int, error) {
	orphans, err := FindOrphanedGeminiProcesses(ctx, executor, executable, log)
	if err != nil {
		return 0, err
	}

	signalled := 0
	for _, proc := range orphans {
		log.Info("terminating orphaned Gemini process", "pid", proc.PID)
		if err := Terminate(ctx, executor, proc.PID); err != nil {
			log.Error("failed to terminate process", "pid", proc.PID, "error", err)
			continue
		}
		signalled++
	}
	return signalled, nil
}

// parsePS extracts Gemini invocations from `ps -eo pid=,ppid=,args=` output.
func parsePS(output, executable string) []GeminiProcess {
	name := filepath.Base(executable)
	if name == "" || name == "." {
		name = "gemini"
	}

	var processes []GeminiProcess
	for line := range strings.SplitSeq(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		if !isGeminiInvocation(fields[2:], name) {
			continue
		}
		processes = append(processes, GeminiProcess{
			PID:     pid,
			PPID:    ppid,
			Command: strings.Join(fields[2:], " "),
		})
	}
	return processes
}

// isGeminiInvocation matches both a direct binary (`gemini --prompt ...`) and
// an npm shim run through node (`node /usr/lib/node_modules/.bin/gemini --prompt ...`).
func isGeminiInvocation(args []string, name string) bool {
	idx := -1
	for i, arg := range args {
		if i > 1 {
			break
		}
		if filepath.Base(arg) == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	for _, arg := range args[idx+1:] {
		if arg == "--prompt" || strings.HasPrefix(arg, "--prompt=") {
			return true
		}
	}
	return false
}
