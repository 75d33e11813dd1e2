package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestIPCService(t *testing.T) (*ipcService, *Dispatcher) {
	t.Helper()
	table := scenarioTable(t)
	exec := &fakeExecutor{}
	d := NewDispatcher(table, exec, &fakeNotifier{}, nil, nil)
	return &ipcService{
		name:       "tristate",
		device:     "/dev/input/event2",
		started:    time.Now(),
		table:      table,
		dispatcher: d,
		executor:   exec,
	}, d
}

func TestIPCService_Handle(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		status   string
		errorSub string
	}{
		{"trigger", `{"type":"trigger","data":{"key_code":289}}`, "ok", ""},
		{"list", `{"type":"list"}`, "ok", ""},
		{"status", `{"type":"status"}`, "ok", ""},
		{"unknown key", `{"type":"trigger","data":{"key_code":42}}`, "error", "no action configured"},
		{"out of range", `{"type":"trigger","data":{"key_code":70000}}`, "error", "out of range"},
		{"missing data", `{"type":"trigger"}`, "error", "missing data"},
		{"bad data", `{"type":"trigger","data":{"key_code":"mute"}}`, "error", "trigger"},
		{"unknown type", `{"type":"reload"}`, "error", "unknown request type"},
		{"not json", `trigger 289`, "error", "parse request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestIPCService(t)
			resp := svc.handle([]byte(tt.line))
			if resp.Status != tt.status {
				t.Fatalf("expected status %q, got %+v", tt.status, resp)
			}
			if tt.errorSub != "" && !strings.Contains(resp.Error, tt.errorSub) {
				t.Errorf("expected error containing %q, got %q", tt.errorSub, resp.Error)
			}
		})
	}
}

func TestIPCService_List(t *testing.T) {
	svc, _ := newTestIPCService(t)
	resp := svc.handle([]byte(`{"type":"list"}`))

	listing, ok := resp.Data.([]ActionListing)
	if !ok {
		t.Fatalf("unexpected data type %T", resp.Data)
	}
	if len(listing) != 2 || listing[0].KeyCode != 113 || listing[1].KeyCode != 289 {
		t.Fatalf("expected listing sorted by key code, got %+v", listing)
	}
	if listing[1].Command != "echo muted" || listing[1].NotificationTitle != "Mic" {
		t.Errorf("unexpected entry: %+v", listing[1])
	}
}

// TestIPCServer_RoundTrip talks to a real socket and checks a trigger reaches
// the dispatch loop.
func TestIPCServer_RoundTrip(t *testing.T) {
	svc, d := newTestIPCService(t)
	exec := svc.executor.(*fakeExecutor)
	socketPath := filepath.Join(t.TempDir(), "ipc.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Run(ctx, make(chan inputEvent), make(chan error))

	serverErr := make(chan error, 1)
	go func() { serverErr <- runIPCServer(ctx, socketPath, svc, discardLogger()) }()

	var conn net.Conn
	waitFor(t, 2*time.Second, "IPC socket", func() bool {
		c, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn = c
		return true
	})
	defer conn.Close()

	reader := bufio.NewReader(conn)
	roundTrip := func(req string) map[string]any {
		t.Helper()
		if _, err := conn.Write([]byte(req + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp map[string]any
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		return resp
	}

	if resp := roundTrip(`{"type":"trigger","data":{"key_code":113}}`); resp["status"] != "ok" {
		t.Fatalf("trigger failed: %v", resp)
	}
	waitFor(t, 2*time.Second, "injected command", func() bool {
		return len(exec.submitted()) == 1
	})

	resp := roundTrip(`{"type":"status"}`)
	data, _ := resp["data"].(map[string]any)
	if data["name"] != "tristate" {
		t.Errorf("unexpected status payload: %v", resp)
	}
	dispatcher, _ := data["dispatcher"].(map[string]any)
	if dispatcher["triggers"] != float64(1) {
		t.Errorf("expected 1 trigger in status, got %v", dispatcher)
	}

	cancel()
	select {
	case err := <-serverErr:
		if err != nil {
			t.Fatalf("server returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("IPC server did not stop")
	}
}
