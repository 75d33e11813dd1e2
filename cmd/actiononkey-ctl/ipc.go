package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

type ipcRequest struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ipcResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

const ipcTimeout = 3 * time.Second

// request sends one request line and returns the response data.
func request(socketPath, typ string, data any) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", socketPath, ipcTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcTimeout))

	if err := json.NewEncoder(conn).Encode(ipcRequest{Type: typ, Data: data}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp ipcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp.Data, nil
}
