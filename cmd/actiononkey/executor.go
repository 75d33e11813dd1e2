package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
)

// CommandExecutor runs action commands on behalf of the dispatcher.
// Submit must never block on the command itself and never report failures
// back to the caller.
type CommandExecutor interface {
	Submit(command string)
	Stats() ExecutorStats
}

// ExecutorStats is a point-in-time view used by the IPC status request.
type ExecutorStats struct {
	Kind      string `json:"kind"`
	Submitted uint64 `json:"submitted"`
	Failed    uint64 `json:"failed"`
	Pending   int    `json:"pending"`   // queued, not yet started (queued executor)
	InFlight  int64  `json:"in_flight"` // started, not yet finished
}

// commandRunner runs one command to completion.
type commandRunner interface {
	Run(command string) error
}

// shellRunner runs `<Shell> -c <command>` and waits for it.
// Output goes to the daemon's own stdout/stderr (the journal under systemd).
type shellRunner struct {
	Shell string
}

func (r shellRunner) Run(command string) error {
	cmd := exec.Command(r.Shell, "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	return nil
}

// ============================================================================
// Queued executor
// ============================================================================
// One long-lived worker drains an unbounded FIFO. Submit appends under the
// mutex and signals the condition variable once; it never waits for a command
// to run. A hung command stalls the commands queued behind it, never the
// dispatcher.
// ============================================================================

type QueuedExecutor struct {
	runner commandRunner
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	closed bool

	startOnce sync.Once
	done      chan struct{}

	submitted atomic.Uint64
	failed    atomic.Uint64
	running   atomic.Int64
}

func NewQueuedExecutor(runner commandRunner, logger *slog.Logger) *QueuedExecutor {
	if logger == nil {
		logger = discardLogger()
	}
	q := &QueuedExecutor{
		runner: runner,
		logger: logger,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker. Calling it more than once has no effect.
func (q *QueuedExecutor) Start() {
	q.startOnce.Do(func() {
		go q.work()
	})
}

// Submit enqueues command and returns immediately.
func (q *QueuedExecutor) Submit(command string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("executor closed, dropping command", "command", command)
		return
	}
	q.queue = append(q.queue, command)
	q.submitted.Add(1)
	q.cond.Signal()
	q.mu.Unlock()
}

// Close stops accepting commands. The worker still runs everything that was
// queued before Close and then exits.
func (q *QueuedExecutor) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Done is closed once the worker has exited.
func (q *QueuedExecutor) Done() <-chan struct{} {
	return q.done
}

func (q *QueuedExecutor) Stats() ExecutorStats {
	q.mu.Lock()
	pending := len(q.queue)
	q.mu.Unlock()
	return ExecutorStats{
		Kind:      ExecutorQueued,
		Submitted: q.submitted.Load(),
		Failed:    q.failed.Load(),
		Pending:   pending,
		InFlight:  q.running.Load(),
	}
}

// next blocks until a command is available. ok is false once the executor is
// closed and drained.
func (q *QueuedExecutor) next() (command string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.queue) == 0 {
		return "", false
	}

	command = q.queue[0]
	q.queue[0] = ""
	q.queue = q.queue[1:]
	if len(q.queue) == 0 {
		q.queue = nil
	}
	return command, true
}

func (q *QueuedExecutor) work() {
	defer close(q.done)

	for {
		command, ok := q.next()
		if !ok {
			q.logger.Debug("command worker stopped")
			return
		}

		q.running.Add(1)
		err := q.runner.Run(command)
		q.running.Add(-1)

		if err != nil {
			q.failed.Add(1)
			q.logger.Warn("action command failed", "command", command, "error", err)
			continue
		}
		q.logger.Debug("action command finished", "command", command)
	}
}

// ============================================================================
// Direct executor
// ============================================================================
// Every Submit starts its own child in a new session and returns as soon as
// the process exists. Children run concurrently with no ordering between
// them. Each child is reaped by a goroutine so it does not linger as a
// zombie; its exit status is only logged at debug level.
// ============================================================================

// DirectExecutor starts one detached child per command. The caller never
// observes a child's outcome: Wait is called only to release the process
// table entry, and the exit status it returns is discarded apart from a
// debug log line.
type DirectExecutor struct {
	shell  string
	logger *slog.Logger

	submitted atomic.Uint64
	failed    atomic.Uint64
	inFlight  atomic.Int64
}

func NewDirectExecutor(shell string, logger *slog.Logger) *DirectExecutor {
	if shell == "" {
		shell = defaultShell
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &DirectExecutor{shell: shell, logger: logger}
}

func (d *DirectExecutor) Submit(command string) {
	d.submitted.Add(1)

	cmd := exec.Command(d.shell, "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		d.failed.Add(1)
		d.logger.Warn("action command failed to start", "command", command, "error", err)
		return
	}
	d.inFlight.Add(1)

	go func() {
		err := cmd.Wait()
		d.inFlight.Add(-1)
		d.logger.Debug("detached command exited", "command", command, "pid", cmd.Process.Pid, "error", err)
	}()
}

func (d *DirectExecutor) Stats() ExecutorStats {
	return ExecutorStats{
		Kind:      ExecutorDirect,
		Submitted: d.submitted.Load(),
		Failed:    d.failed.Load(),
		InFlight:  d.inFlight.Load(),
	}
}
