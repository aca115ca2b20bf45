package gemini

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// MockRunner is a test double for ProcessRunner that doesn't spawn real processes.
// Tests script the chunks and result, or hold invocations open until cancellation.
type MockRunner struct {
	mu          sync.Mutex
	invocations []Invocation
	processes   []*MockProcess

	// Chunks are delivered through OnChunk, in order, before Result is returned.
	Chunks []string

	// Result is returned when the invocation is not blocked.
	Result Result

	// BlockUntilCancel holds Run open until its context is done, then resolves cancelled.
	BlockUntilCancel bool

	// OnRun, if set, is called at the start of every Run with the invocation index.
	OnRun func(index int, inv Invocation)

	started chan *MockProcess
	active  atomic.Int32
	maxSeen atomic.Int32
}

// NewMockRunner creates a mock that resolves every invocation with result.
func NewMockRunner(result Result) *MockRunner {
	return &MockRunner{
		Result:  result,
		started: make(chan *MockProcess, 64),
	}
}

// Run records the invocation and replays the scripted behavior.
func (m *MockRunner) Run(ctx context.Context, inv Invocation, cb Callbacks) Result {
	m.mu.Lock()
	index := len(m.invocations)
	m.invocations = append(m.invocations, inv)
	proc := &MockProcess{pid: 1000 + index}
	m.processes = append(m.processes, proc)
	chunks := slices.Clone(m.Chunks)
	result := m.Result
	block := m.BlockUntilCancel
	onRun := m.OnRun
	m.mu.Unlock()

	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if onRun != nil {
		onRun(index, inv)
	}

	if ctx.Err() != nil {
		return Result{Outcome: OutcomeCancelled, ExitCode: -1}
	}

	if cb.OnStart != nil {
		cb.OnStart(proc)
	}
	m.started <- proc

	for _, c := range chunks {
		if cb.OnChunk != nil {
			cb.OnChunk(c)
		}
	}

	if block {
		<-ctx.Done()
		return Result{Outcome: OutcomeCancelled, ExitCode: -1}
	}
	return result
}

// Started delivers each MockProcess once its OnStart callback has run.
func (m *MockRunner) Started() <-chan *MockProcess {
	return m.started
}

// Invocations returns every invocation seen so far.
func (m *MockRunner) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.invocations)
}

// Processes returns the handles created for each invocation.
func (m *MockRunner) Processes() []*MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.processes)
}

// MaxConcurrent reports the highest number of simultaneously running invocations.
func (m *MockRunner) MaxConcurrent() int {
	return int(m.maxSeen.Load())
}

// MockProcess is the Process handle handed out by MockRunner.
type MockProcess struct {
	pid        int
	terminated atomic.Int32
}

// Pid returns the fake process id.
func (p *MockProcess) Pid() int { return p.pid }

// Terminate records the termination request.
func (p *MockProcess) Terminate() error {
	p.terminated.Add(1)
	return nil
}

// Terminated reports whether Terminate has been called.
func (p *MockProcess) Terminated() bool {
	return p.terminated.Load() > 0
}

// Ensure MockRunner implements Runner at compile time.
var _ Runner = (*MockRunner)(nil)
