package agent

import (
	"context"
	"fmt"
	"io"
	"time"

	acp "github.com/coder/acp-go-sdk"

	"github.com/zhubert/gemini-acp/config"
	"github.com/zhubert/gemini-acp/exec"
	"github.com/zhubert/gemini-acp/gemini"
	"github.com/zhubert/gemini-acp/logger"
	"github.com/zhubert/gemini-acp/manager"
	"github.com/zhubert/gemini-acp/tracing"
)

// ShutdownTimeout bounds how long Serve waits for in-flight prompts to unwind.
const ShutdownTimeout = 10 * time.Second

// Serve speaks ACP over in and out until the client disconnects or ctx ends.
// out carries only protocol frames; all logging goes to the log file.
func Serve(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	log := logger.WithComponent("agent")

	tc, err := cfg.TracingConfig()
	if err != nil {
		return err
	}
	provider, err := tracing.NewProvider(tc)
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()
	tracer := provider.Tracer()

	runner := gemini.NewProcessRunner(
		gemini.WithLogger(logger.WithComponent("runner")),
		gemini.WithTracer(tracer),
	)
	sm := manager.NewSessionManager(
		manager.WithRunner(runner),
		manager.WithExecutable(cfg.Executable),
		manager.WithPermissionMode(cfg.Mode()),
		manager.WithLogger(logger.WithComponent("manager")),
		manager.WithTracer(tracer),
	)
	a := New(sm,
		WithExecutor(exec.GetDefaultExecutor()),
		WithExecutable(cfg.Executable),
		WithLogger(log),
		WithTracer(tracer),
	)

	conn := acp.NewAgentSideConnection(a, out, in)
	conn.SetLogger(logger.WithComponent("acp"))
	a.SetAgentConnection(conn)

	log.Info("serving ACP over stdio",
		"executable", cfg.Executable,
		"permissionMode", cfg.Mode(),
		"tracing", provider.Enabled(),
	)

	select {
	case <-conn.Done():
		log.Info("client disconnected")
	case <-ctx.Done():
		log.Info("shutting down", "reason", context.Cause(ctx))
	}

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := sm.Shutdown(sctx); err != nil {
		log.Warn("in-flight prompts did not finish before shutdown", "error", err)
	}
	return nil
}
