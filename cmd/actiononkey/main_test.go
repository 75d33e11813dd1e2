package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// The test binary re-executes itself as the daemon when this is set; the
// daemon's arguments are passed in envDaemonArgs, one per line.
const (
	envRunDaemon  = "ACTIONONKEY_TEST_RUN_DAEMON"
	envDaemonArgs = "ACTIONONKEY_TEST_DAEMON_ARGS"
)

func runDaemonProcess(t *testing.T, args ...string) (exitCode int, stderr string) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestDaemonExitStatus$")
	cmd.Env = append(os.Environ(), envRunDaemon+"=1", envDaemonArgs+"="+strings.Join(args, "\n"))
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, errBuf.String()
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), errBuf.String()
	default:
		t.Fatalf("run daemon process: %v", err)
		return 0, ""
	}
}

func TestDaemonExitStatus(t *testing.T) {
	if os.Getenv(envRunDaemon) == "1" {
		os.Args = append([]string{"actiononkey"}, strings.Split(os.Getenv(envDaemonArgs), "\n")...)
		main()
		return
	}

	dir := t.TempDir()
	missingDevice := filepath.Join(dir, "keys.yaml")
	cfg := "device: " + filepath.Join(dir, "event99") + `
notifications:
  enabled: false
actions:
  - key_code: 289
    command: echo muted
    title: Mic
`
	if err := os.WriteFile(missingDevice, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	noActions := filepath.Join(dir, "empty.conf")
	if err := os.WriteFile(noActions, []byte("DEVICE_FILE=/dev/input/event0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"device missing", []string{"-config", missingDevice}, "error: cannot access input device"},
		{"config without actions", []string{"-config", noActions}, "error: config load failed"},
		{"config file missing", []string{"-config", filepath.Join(dir, "nope.conf")}, "error: config load failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stderr := runDaemonProcess(t, tt.args...)
			if code != 1 {
				t.Fatalf("expected exit status 1, got %d (stderr %q)", code, stderr)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("expected stderr to contain %q, got %q", tt.wantErr, stderr)
			}
		})
	}
}
