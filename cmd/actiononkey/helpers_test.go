package main

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"
	"time"
)

// fakeExecutor records submitted commands.
type fakeExecutor struct {
	mu       sync.Mutex
	commands []string
}

func (f *fakeExecutor) Submit(command string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
}

func (f *fakeExecutor) Stats() ExecutorStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ExecutorStats{Kind: "fake", Submitted: uint64(len(f.commands))}
}

func (f *fakeExecutor) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

type shown struct {
	title   string
	message string
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	shown []shown
}

func (f *fakeNotifier) Show(title, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, shown{title, message})
}

func (f *fakeNotifier) calls() []shown {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shown(nil), f.shown...)
}

// fakeSink records published triggers.
type fakeSink struct {
	mu   sync.Mutex
	recs []TriggerRecord
}

func (f *fakeSink) Publish(rec TriggerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
}

// scenarioTable is the two-key table used throughout the tests.
func scenarioTable(t *testing.T) *ActionTable {
	t.Helper()
	table, err := NewActionTable(map[uint16]Action{
		289: {Command: "echo muted", NotificationTitle: "Mic", NotificationMessage: "Muted"},
		113: {Command: "echo normal", NotificationTitle: "Sound", NotificationMessage: "Normal"},
	})
	if err != nil {
		t.Fatalf("NewActionTable: %v", err)
	}
	return table
}

func keyEvent(code uint16, value int32) inputEvent {
	return inputEvent{Type: EV_KEY, Code: code, Value: value}
}

// encodeEvents renders events the way the kernel writes them.
func encodeEvents(t *testing.T, evs ...inputEvent) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range evs {
		if err := binary.Write(&buf, binary.NativeEndian, ev); err != nil {
			t.Fatalf("encode event: %v", err)
		}
	}
	return buf.Bytes()
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
