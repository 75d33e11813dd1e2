package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// gatedRunner records commands in execution order. The first command blocks
// until gate is closed.
type gatedRunner struct {
	gate chan struct{}
	fail map[string]bool

	mu      sync.Mutex
	ran     []string
	started chan struct{}
	once    sync.Once
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{
		gate:    make(chan struct{}),
		fail:    map[string]bool{},
		started: make(chan struct{}),
	}
}

func (r *gatedRunner) Run(command string) error {
	r.once.Do(func() {
		close(r.started)
		<-r.gate
	})
	r.mu.Lock()
	r.ran = append(r.ran, command)
	r.mu.Unlock()
	if r.fail[command] {
		return ErrCommandFailed
	}
	return nil
}

func (r *gatedRunner) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func waitDone(t *testing.T, q *QueuedExecutor) {
	t.Helper()
	select {
	case <-q.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
}

// TestQueuedExecutor_FIFO submits c2..c10 while c1 is still running and checks
// they run one at a time in submission order.
func TestQueuedExecutor_FIFO(t *testing.T) {
	runner := newGatedRunner()
	q := NewQueuedExecutor(runner, nil)
	q.Start()

	want := []string{"cmd-a"}
	q.Submit("cmd-a")
	<-runner.started

	// cmd-a is executing; everything else queues behind it.
	for i := 1; i < 10; i++ {
		cmd := "cmd-" + string(rune('a'+i))
		want = append(want, cmd)
		q.Submit(cmd)
	}
	if st := q.Stats(); st.InFlight != 1 || st.Pending != 9 {
		t.Errorf("expected 1 running and 9 pending, got %+v", st)
	}

	close(runner.gate)
	q.Close()
	waitDone(t, q)

	if got := runner.order(); !slices.Equal(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	if st := q.Stats(); st.Submitted != 10 || st.Pending != 0 || st.Failed != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

// TestQueuedExecutor_SubmitWhileCommandHangs checks Submit returns promptly
// while the worker is stuck on a command.
func TestQueuedExecutor_SubmitWhileCommandHangs(t *testing.T) {
	runner := newGatedRunner()
	q := NewQueuedExecutor(runner, nil)
	q.Start()
	defer func() {
		close(runner.gate)
		q.Close()
		waitDone(t, q)
	}()

	q.Submit("hang")
	<-runner.started

	start := time.Now()
	for i := 0; i < 1000; i++ {
		q.Submit("echo queued")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Submit blocked behind a running command: %v", elapsed)
	}

	st := q.Stats()
	if st.Pending != 1000 {
		t.Errorf("expected 1000 pending, got %d", st.Pending)
	}
	if st.InFlight != 1 {
		t.Errorf("expected 1 in flight, got %d", st.InFlight)
	}
}

// TestQueuedExecutor_FailureDoesNotStopWorker checks a failing command is
// counted and the next one still runs.
func TestQueuedExecutor_FailureDoesNotStopWorker(t *testing.T) {
	runner := newGatedRunner()
	runner.fail["false"] = true
	close(runner.gate)

	q := NewQueuedExecutor(runner, nil)
	q.Start()
	q.Submit("false")
	q.Submit("true")
	q.Close()
	waitDone(t, q)

	if got := runner.order(); !slices.Equal(got, []string{"false", "true"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if st := q.Stats(); st.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", st.Failed)
	}
}

// TestQueuedExecutor_CloseDrains checks commands queued before Close still run
// and commands submitted after Close are dropped.
func TestQueuedExecutor_CloseDrains(t *testing.T) {
	runner := newGatedRunner()
	close(runner.gate)

	q := NewQueuedExecutor(runner, nil)
	q.Submit("one")
	q.Submit("two")
	q.Close()
	q.Submit("three")
	q.Start()
	waitDone(t, q)

	if got := runner.order(); !slices.Equal(got, []string{"one", "two"}) {
		t.Fatalf("expected [one two], got %v", got)
	}
}

// TestQueuedExecutor_Shell runs real commands through the shell and checks
// their side effects land in order.
func TestQueuedExecutor_Shell(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")

	q := NewQueuedExecutor(shellRunner{Shell: defaultShell}, nil)
	q.Start()
	q.Submit("echo 1 >> " + out)
	q.Submit("exit 3")
	q.Submit("echo 2 >> " + out)
	q.Submit("echo 3 >> " + out)
	q.Close()
	waitDone(t, q)

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if got := string(b); got != "1\n2\n3\n" {
		t.Errorf("unexpected output %q", got)
	}
	if st := q.Stats(); st.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", st.Failed)
	}
}

func TestShellRunner_NonZeroExit(t *testing.T) {
	err := shellRunner{Shell: defaultShell}.Run("exit 7")
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "7") {
		t.Errorf("expected exit status in error, got %v", err)
	}
}

// TestDirectExecutor_DoesNotWait checks Submit returns before the child exits.
func TestDirectExecutor_DoesNotWait(t *testing.T) {
	d := NewDirectExecutor(defaultShell, nil)

	start := time.Now()
	d.Submit("sleep 2")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Submit waited for the command: %v", elapsed)
	}
	if st := d.Stats(); st.Submitted != 1 || st.Failed != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

// TestDirectExecutor_FailureDoesNotBlockNext checks a failing child has no
// effect on the next one.
func TestDirectExecutor_FailureDoesNotBlockNext(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "marker")
	d := NewDirectExecutor(defaultShell, nil)

	d.Submit("exit 1")
	d.Submit("touch " + marker)

	waitFor(t, 5*time.Second, "marker file", func() bool {
		_, err := os.Stat(marker)
		return err == nil
	})
	waitFor(t, 5*time.Second, "children reaped", func() bool {
		return d.Stats().InFlight == 0
	})
}

// TestDirectExecutor_StartFailure checks a spawn failure is counted, not raised.
func TestDirectExecutor_StartFailure(t *testing.T) {
	d := NewDirectExecutor(filepath.Join(t.TempDir(), "no-such-shell"), nil)
	d.Submit("true")

	if st := d.Stats(); st.Failed != 1 || st.InFlight != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

// TestDirectExecutor_ExitStatusDiscarded checks a non-zero exit is reaped but
// never counted or reported.
func TestDirectExecutor_ExitStatusDiscarded(t *testing.T) {
	d := NewDirectExecutor(defaultShell, nil)
	d.Submit("exit 5")

	waitFor(t, 5*time.Second, "child reaped", func() bool {
		return d.Stats().InFlight == 0
	})
	if st := d.Stats(); st.Failed != 0 || st.Submitted != 1 {
		t.Errorf("expected exit status to be ignored, got %+v", st)
	}
}
