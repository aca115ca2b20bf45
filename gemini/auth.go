package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zhubert/gemini-acp/exec"
)

const (
	// AuthMethodID is the only authentication method advertised to clients.
	AuthMethodID = "gemini-cli-login"

	// AuthMethodName is the display name of AuthMethodID.
	AuthMethodName = "Log in with Gemini CLI"

	// AuthProbeTimeout bounds the --version probe.
	AuthProbeTimeout = 5 * time.Second

	// AuthRequiredMessage tells the user how to authenticate the CLI.
	AuthRequiredMessage = "Gemini CLI is not authenticated or not installed. Run `gemini` in a terminal, complete the login flow, then try again."
)

// ErrAuthRequired is returned when the CLI probe fails or times out.
var ErrAuthRequired = errors.New("authentication required")

// CheckAuth probes the CLI by running it with --version.
// It succeeds iff the probe exits with status 0 within AuthProbeTimeout.
// On success it returns the first line of the version output.
func CheckAuth(ctx context.Context, executor exec.CommandExecutor, executable string, log *slog.Logger) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, AuthProbeTimeout)
	defer cancel()

	stdout, stderr, err := executor.Run(ctx, "", executable, "--version")
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("auth probe timed out", "executable", executable, "timeout", AuthProbeTimeout)
			return "", fmt.Errorf("%w: probe timed out after %v", ErrAuthRequired, AuthProbeTimeout)
		}
		log.Warn("auth probe failed", "executable", executable, "error", err, "stderr", strings.TrimSpace(string(stderr)))
		return "", fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	version, _, _ := strings.Cut(strings.TrimSpace(string(stdout)), "\n")
	log.Info("auth probe succeeded", "executable", executable, "version", version)
	return version, nil
}
