package gemini

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhubert/gemini-acp/tracing"
)

const (
	// DefaultTimeout bounds the wall-clock time of one invocation.
	DefaultTimeout = 60 * time.Second

	// TerminationGrace is how long the runner waits for a signalled process to exit.
	TerminationGrace = 5 * time.Second

	// OutputDrainDelay is how long output is still read after the process exits
	// while a background child keeps its stdout or stderr open.
	OutputDrainDelay = 2 * time.Second
)

// ProcessRunner spawns the Gemini CLI once per invocation.
type ProcessRunner struct {
	timeout   time.Duration
	grace     time.Duration
	waitDelay time.Duration
	log       *slog.Logger
	tracer    trace.Tracer
}

// RunnerOption configures a ProcessRunner.
type RunnerOption func(*ProcessRunner)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *ProcessRunner) { r.timeout = d }
}

// WithTerminationGrace overrides TerminationGrace.
func WithTerminationGrace(d time.Duration) RunnerOption {
	return func(r *ProcessRunner) { r.grace = d }
}

// WithOutputDrainDelay overrides OutputDrainDelay.
func WithOutputDrainDelay(d time.Duration) RunnerOption {
	return func(r *ProcessRunner) { r.waitDelay = d }
}

// WithLogger sets the logger used for process lifecycle events.
func WithLogger(log *slog.Logger) RunnerOption {
	return func(r *ProcessRunner) { r.log = log }
}

// WithTracer sets the tracer used for invocation spans.
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *ProcessRunner) { r.tracer = tracer }
}

// NewProcessRunner creates a runner with the given options.
func NewProcessRunner(opts ...RunnerOption) *ProcessRunner {
	r := &ProcessRunner{
		timeout:   DefaultTimeout,
		grace:     TerminationGrace,
		waitDelay: OutputDrainDelay,
		log:       slog.Default(),
		tracer:    tracing.NoopTracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one invocation. See Runner.
func (r *ProcessRunner) Run(ctx context.Context, inv Invocation, cb Callbacks) Result {
	ctx, span := r.tracer.Start(ctx, tracing.SpanInvocation)
	defer span.End()

	res := r.run(ctx, inv, cb, span)

	span.SetAttributes(
		attribute.String(tracing.AttrOutcome, res.Outcome.String()),
		attribute.Bool(tracing.AttrPartial, res.Partial),
		attribute.Int(tracing.AttrExitCode, res.ExitCode),
	)
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (r *ProcessRunner) run(ctx context.Context, inv Invocation, cb Callbacks, span trace.Span) Result {
	log := r.log.With("executable", inv.Executable, "workDir", inv.WorkingDir)

	if ctx.Err() != nil {
		log.Debug("invocation cancelled before spawn")
		return Result{Outcome: OutcomeCancelled, ExitCode: -1}
	}

	cmd := exec.Command(inv.Executable, inv.Args...)
	cmd.Dir = inv.WorkingDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return spawnFailure(fmt.Errorf("stdin pipe: %w", err))
	}

	// Output is copied by os/exec into in-process pipes so that cmd.Wait can
	// return once the CLI exits even if a grandchild still holds its stdout.
	// WaitDelay bounds how long Wait keeps copying after the exit.
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.WaitDelay = r.waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.Error("failed to start process", "error", err)
		stdoutW.Close()
		stderrW.Close()
		return spawnFailure(err)
	}

	// Single-shot mode: the CLI reads nothing from stdin.
	stdin.Close()

	proc := &process{cmd: cmd, log: log}
	log = log.With("pid", proc.Pid())
	log.Info("process started", "args", len(inv.Args))
	span.AddEvent(tracing.EventProcessStarted, trace.WithAttributes(attribute.Int(tracing.AttrProcessID, proc.Pid())))

	if cb.OnStart != nil {
		cb.OnStart(proc)
	}

	st := &invocationState{onChunk: cb.OnChunk}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		st.readStdout(stdout, log)
	}()
	go func() {
		defer readers.Done()
		st.readStderr(stderr, log)
	}()

	// exitCh delivers the Wait result once the readers have drained what the
	// process wrote before it exited.
	exitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		readers.Wait()
		if errors.Is(err, exec.ErrWaitDelay) {
			log.Warn("output still held open after exit, detached", "waitDelay", r.waitDelay)
			err = nil
		}
		exitCh <- err
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-exitCh:
		st.close()
		log.Info("process exited", "error", err, "elapsed", time.Since(start))
		if ctx.Err() != nil {
			return st.result(OutcomeCancelled, -1)
		}
		return st.exitResult(err)

	case <-ctx.Done():
		log.Info("cancelling invocation")
		r.terminate(proc, exitCh, span, log)
		st.close()
		return st.result(OutcomeCancelled, -1)

	case <-timer.C:
		log.Warn("invocation timed out", "timeout", r.timeout)
		r.terminate(proc, exitCh, span, log)
		st.close()
		res := st.result(OutcomeTimedOut, -1)
		if text := strings.TrimSpace(FilterNoise(res.Stdout)); text != "" {
			res.Outcome = OutcomeCompleted
			res.Text = text
			res.Partial = true
			return res
		}
		res.Err = ErrTimeout
		return res
	}
}

// terminate signals proc once and waits up to the grace period for it to exit.
// The process is never force-killed.
func (r *ProcessRunner) terminate(proc *process, exitCh <-chan error, span trace.Span, log *slog.Logger) {
	if err := proc.Terminate(); err != nil {
		log.Warn("failed to signal process", "error", err)
	}
	span.AddEvent(tracing.EventTerminationSent)

	grace := time.NewTimer(r.grace)
	defer grace.Stop()
	select {
	case err := <-exitCh:
		log.Debug("process exited after termination", "error", err)
	case <-grace.C:
		log.Warn("process still running after termination signal", "grace", r.grace)
	}
}

func spawnFailure(err error) Result {
	return Result{
		Outcome:  OutcomeFailed,
		Err:      fmt.Errorf("%w: %w", ErrSpawn, err),
		ExitCode: -1,
	}
}

// process is the Process handle for a spawned exec.Cmd.
type process struct {
	cmd  *exec.Cmd
	log  *slog.Logger
	once sync.Once
	err  error
}

func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) Terminate() error {
	p.once.Do(func() {
		p.log.Info("sending SIGTERM")
		err := p.cmd.Process.Signal(syscall.SIGTERM)
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
		p.err = err
	})
	return p.err
}

// invocationState accumulates output and gates chunk delivery for one invocation.
type invocationState struct {
	mu     sync.Mutex
	stdout strings.Builder
	stderr strings.Builder

	// emitMu serializes delivery against close so no chunk escapes after resolution.
	emitMu  sync.Mutex
	closed  bool
	onChunk func(string)

	// Owned by the stdout reader goroutine.
	pendingBlank string
	emitted      bool
}

func (s *invocationState) emit(text string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed || s.onChunk == nil {
		return
	}
	s.onChunk(text)
}

func (s *invocationState) close() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.closed = true
}

func (s *invocationState) readStdout(r io.Reader, log *slog.Logger) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			s.handleStdout(line)
		}
		if err != nil {
			if err != io.EOF {
				log.Debug("error reading stdout", "error", err)
			}
			return
		}
	}
}

// handleStdout streams one stdout line. Blank lines are held until the next
// content line so they never lead or trail the streamed reply.
func (s *invocationState) handleStdout(line string) {
	s.mu.Lock()
	s.stdout.WriteString(line)
	s.mu.Unlock()

	content := strings.TrimRight(line, "\r\n")
	if IsNoise(content) {
		return
	}
	if strings.TrimSpace(content) == "" {
		if s.emitted {
			s.pendingBlank += "\n"
		}
		return
	}

	chunk := s.pendingBlank + line
	s.pendingBlank = ""
	s.emitted = true
	s.emit(chunk)
}

func (s *invocationState) readStderr(r io.Reader, log *slog.Logger) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			s.handleStderr(line, log)
		}
		if err != nil {
			if err != io.EOF {
				log.Debug("error reading stderr", "error", err)
			}
			return
		}
	}
}

func (s *invocationState) handleStderr(line string, log *slog.Logger) {
	s.mu.Lock()
	s.stderr.WriteString(line)
	s.mu.Unlock()

	trimmed := strings.TrimSpace(line)
	if trimmed == "" || IsNoise(trimmed) {
		return
	}
	log.Debug("stderr", "line", trimmed)
	s.emit(InfoPrefix + trimmed + "\n")
}

func (s *invocationState) result(outcome Outcome, exitCode int) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{
		Outcome:  outcome,
		ExitCode: exitCode,
		Stdout:   s.stdout.String(),
		Stderr:   s.stderr.String(),
	}
}

// exitResult classifies a process that exited on its own.
func (s *invocationState) exitResult(waitErr error) Result {
	if waitErr == nil {
		res := s.result(OutcomeCompleted, 0)
		res.Text = strings.TrimSpace(FilterNoise(res.Stdout))
		if res.Text == "" {
			res.Text = SuccessFallback
		}
		return res
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}

	res := s.result(OutcomeFailed, code)
	if exitErr == nil {
		res.Err = fmt.Errorf("waiting for Gemini CLI: %w", waitErr)
		return res
	}
	res.Err = &ExitError{Code: code, Stderr: strings.TrimSpace(FilterNoise(res.Stderr))}
	return res
}
