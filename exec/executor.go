// Package exec provides an abstraction over short-lived command execution for testability.
// Production code uses RealExecutor; tests inject a MockExecutor that returns
// pre-recorded responses. Long-running, streamed invocations of the Gemini CLI
// do not go through this package (see the gemini package's Runner).
package exec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"slices"
	"sync"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)

	// Output executes a command and returns stdout.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// LookPath resolves an executable name against PATH.
	LookPath(name string) (string, error)
}

// ErrNotFound is returned by MockExecutor.LookPath for executables without a registered path.
var ErrNotFound = errors.New("executable file not found in $PATH")

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Run executes a command and returns stdout, stderr, and any error.
// The command is killed if ctx is done before it exits.
func (e *RealExecutor) Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		err = errors.Join(ctxErr, err)
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// Output executes a command and returns stdout.
func (e *RealExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	stdout, _, err := e.Run(ctx, dir, name, args...)
	return stdout, err
}

// LookPath resolves name against PATH.
func (e *RealExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// CommandMatcher is a function that determines if a command matches.
type CommandMatcher func(dir, name string, args []string) bool

// MockRule defines a matching rule and its response.
type MockRule struct {
	Match    CommandMatcher
	Response MockResponse
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Dir  string
	Name string
	Args []string
}

// MockExecutor returns pre-recorded responses for commands.
// Rules are matched in registration order; unmatched commands succeed with empty output.
type MockExecutor struct {
	mu    sync.RWMutex
	rules []MockRule
	paths map[string]string
	calls []MockCall

	// Block, when set, makes Run wait for ctx to be done before returning ctx.Err().
	Block bool
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{paths: make(map[string]string)}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, MockRule{Match: match, Response: response})
}

// AddExactMatch adds a rule that matches a specific command exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(func(dir, n string, a []string) bool {
		return n == name && slices.Equal(a, args)
	}, response)
}

// AddPrefixMatch adds a rule that matches commands starting with specific args.
func (e *MockExecutor) AddPrefixMatch(name string, prefixArgs []string, response MockResponse) {
	e.AddRule(func(dir, n string, a []string) bool {
		return n == name && len(a) >= len(prefixArgs) && slices.Equal(a[:len(prefixArgs)], prefixArgs)
	}, response)
}

// AddPath registers the resolved location LookPath reports for name.
func (e *MockExecutor) AddPath(name, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paths[name] = path
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []MockCall {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.calls)
}

func (e *MockExecutor) findMatch(dir, name string, args []string) *MockResponse {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.rules {
		if rule.Match(dir, name, args) {
			return &rule.Response
		}
	}
	return nil
}

func (e *MockExecutor) recordCall(dir, name string, args []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, MockCall{Dir: dir, Name: name, Args: args})
}

// Run executes a mocked command.
func (e *MockExecutor) Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error) {
	e.recordCall(dir, name, args)

	if e.Block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}

	if resp := e.findMatch(dir, name, args); resp != nil {
		return resp.Stdout, resp.Stderr, resp.Err
	}
	return nil, nil, nil
}

// Output executes a mocked command.
func (e *MockExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	stdout, _, err := e.Run(ctx, dir, name, args...)
	return stdout, err
}

// LookPath returns the path registered with AddPath, or ErrNotFound.
func (e *MockExecutor) LookPath(name string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: ErrNotFound}
}

// Ensure implementations satisfy the interface.
var _ CommandExecutor = (*RealExecutor)(nil)
var _ CommandExecutor = (*MockExecutor)(nil)

// defaultExecutorMu protects defaultExecutor for concurrent access.
var defaultExecutorMu sync.RWMutex

// defaultExecutor is the global default executor (can be swapped for testing).
var defaultExecutor CommandExecutor = NewRealExecutor()

// GetDefaultExecutor returns the global default executor.
func GetDefaultExecutor() CommandExecutor {
	defaultExecutorMu.RLock()
	defer defaultExecutorMu.RUnlock()
	return defaultExecutor
}

// SetDefaultExecutor sets the global default executor.
func SetDefaultExecutor(e CommandExecutor) {
	defaultExecutorMu.Lock()
	defer defaultExecutorMu.Unlock()
	defaultExecutor = e
}
