package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Lets local tools (actiononkey-ctl, scripts) talk to the running daemon.
//
// Protocol: line-delimited JSON
//   - Client sends: {"type": "trigger", "data": {"key_code": 289}}
//                   {"type": "list"}
//                   {"type": "status"}
//   - Server responds: {"status": "ok", "data": ...} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCRequest is one request line.
type IPCRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
	Data   any    `json:"data,omitempty"`
}

type triggerRequest struct {
	KeyCode int `json:"key_code"`
}

// ActionListing is one row of the "list" response.
type ActionListing struct {
	KeyCode uint16 `json:"key_code"`
	Action
}

// StatusReport is the "status" response payload.
type StatusReport struct {
	Name       string          `json:"name"`
	Device     string          `json:"device"`
	Uptime     string          `json:"uptime"`
	Dispatcher DispatcherStats `json:"dispatcher"`
	Executor   ExecutorStats   `json:"executor"`
}

// ipcService answers IPC requests from the shared, read-only daemon state.
type ipcService struct {
	name       string
	device     string
	started    time.Time
	table      *ActionTable
	dispatcher *Dispatcher
	executor   CommandExecutor
}

func (s *ipcService) handle(line []byte) IPCResponse {
	var req IPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(fmt.Errorf("parse request: %w", err))
	}

	switch req.Type {
	case "trigger":
		var tr triggerRequest
		if len(req.Data) == 0 {
			return errorResponse(errors.New("trigger: missing data"))
		}
		if err := json.Unmarshal(req.Data, &tr); err != nil {
			return errorResponse(fmt.Errorf("trigger: %w", err))
		}
		if tr.KeyCode <= 0 || tr.KeyCode > 0xffff {
			return errorResponse(fmt.Errorf("trigger: key_code %d out of range", tr.KeyCode))
		}
		if err := s.dispatcher.Inject(uint16(tr.KeyCode)); err != nil {
			return errorResponse(err)
		}
		return IPCResponse{Status: "ok"}

	case "list":
		return IPCResponse{Status: "ok", Data: s.list()}

	case "status":
		return IPCResponse{Status: "ok", Data: s.status()}

	default:
		return errorResponse(fmt.Errorf("unknown request type: %s", req.Type))
	}
}

func (s *ipcService) list() []ActionListing {
	codes := s.table.Codes()
	out := make([]ActionListing, 0, len(codes))
	for _, code := range codes {
		a, _ := s.table.Lookup(code)
		out = append(out, ActionListing{KeyCode: code, Action: a})
	}
	return out
}

func (s *ipcService) status() StatusReport {
	return StatusReport{
		Name:       s.name,
		Device:     s.device,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Dispatcher: s.dispatcher.Stats(),
		Executor:   s.executor.Stats(),
	}
}

func errorResponse(err error) IPCResponse {
	return IPCResponse{Status: "error", Error: err.Error()}
}

// runIPCServer serves the unix socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, svc *ipcService, logger *slog.Logger) error {
	// Remove a stale socket left by a previous run
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)
	defer listener.Close()

	// Owner and group only; "trigger" runs configured commands.
	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, svc, logger)
	}
}

// handleIPCConnection answers request lines until the client hangs up.
func handleIPCConnection(conn net.Conn, svc *ipcService, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		logger.Debug("IPC received", "line", string(line))

		resp := svc.handle(line)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}
}
