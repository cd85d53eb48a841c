package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dopectx/core/internal/logging"
)

// StdioTransport speaks MCP's newline-delimited JSON-RPC binding over a
// child process's stdin/stdout.
type StdioTransport struct {
	mu sync.RWMutex

	command string
	args    []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	connected bool

	pendingReqs map[int]chan *rpcResponse
	nextID      int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewStdioTransport parses endpoint as a shell-style "command arg arg..."
// string and builds a transport that will launch it on Connect.
func NewStdioTransport(endpoint string) *StdioTransport {
	parts := strings.Fields(endpoint)
	var command string
	var args []string
	if len(parts) > 0 {
		command, args = parts[0], parts[1:]
	}
	return &StdioTransport{
		command:     command,
		args:        args,
		pendingReqs: make(map[int]chan *rpcResponse),
		nextID:      1,
		done:        make(chan struct{}),
	}
}

func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if t.command == "" {
		t.mu.Unlock()
		return fmt.Errorf("empty command for stdio backend")
	}

	t.cmd = exec.Command(t.command, t.args...)

	var err error
	if t.stdin, err = t.cmd.StdinPipe(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if t.stdout, err = t.cmd.StdoutPipe(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if t.stderr, err = t.cmd.StderrPipe(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := t.cmd.Start(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("start command %s: %w", t.command, err)
	}
	t.connected = true
	t.mu.Unlock()

	t.wg.Add(2)
	go t.readStderr()
	go t.readStdout()

	if _, err := t.call(ctx, "initialize", clientInfo()); err != nil {
		_ = t.Disconnect()
		return fmt.Errorf("initialize backend process %s: %w", t.command, err)
	}
	t.notify("notifications/initialized")
	return nil
}

func (t *StdioTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false

	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	close(t.done)
	for id, ch := range t.pendingReqs {
		close(ch)
		delete(t.pendingReqs, id)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		logging.Get(logging.CategoryRegistry).Warn("timeout waiting for stdio backend goroutines to exit")
	}
	return nil
}

func (t *StdioTransport) readStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		logging.Get(logging.CategoryRegistry).Debugf("backend stderr: %s", scanner.Text())
	}
}

func (t *StdioTransport) readStdout() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			logging.Get(logging.CategoryRegistry).Warnf("malformed json from backend: %v", err)
			continue
		}
		idVal, ok := raw["id"]
		if !ok {
			logging.Get(logging.CategoryRegistry).Debugf("backend notification: %s", string(line))
			continue
		}

		var id int
		switch v := idVal.(type) {
		case float64:
			id = int(v)
		case int:
			id = v
		default:
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.Get(logging.CategoryRegistry).Warnf("unmarshal response: %v", err)
			continue
		}

		t.mu.Lock()
		if ch, exists := t.pendingReqs[id]; exists {
			delete(t.pendingReqs, id)
			ch <- &resp
		}
		t.mu.Unlock()
	}
}

func (t *StdioTransport) notify(method string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdin == nil {
		return
	}
	data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": method})
	_, _ = t.stdin.Write(append(data, '\n'))
}

func (t *StdioTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("not connected to backend")
	}
	id := t.nextID
	t.nextID++

	ch := make(chan *rpcResponse, 1)
	t.pendingReqs[id] = ch

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("write to stdin: %w", err)
	}
	t.mu.Unlock()

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("backend error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse tools/list response: %w", err)
	}
	return result.Tools, nil
}

func (t *StdioTransport) Invoke(ctx context.Context, tool string, args map[string]any) (*InvokeResult, error) {
	start := time.Now()
	params := map[string]any{"name": tool, "arguments": args}

	resp, err := t.call(ctx, "tools/call", params)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		return &InvokeResult{Success: false, Error: err.Error(), LatencyMs: latencyMs}, nil
	}
	return &InvokeResult{Success: true, Output: resp.Result, LatencyMs: latencyMs}, nil
}

// Probe sends a ping RPC; a stdio backend has no separate health port, so
// liveness is "the process is alive and answers JSON-RPC".
func (t *StdioTransport) Probe(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	return err
}

func (t *StdioTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

var _ Transporter = (*StdioTransport)(nil)
