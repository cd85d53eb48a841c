package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dopectx/core/internal/logging"
)

// HTTPTransport speaks MCP's HTTP/JSON-RPC binding.
type HTTPTransport struct {
	mu sync.RWMutex

	baseURL   string
	client    *http.Client
	connected bool
}

// NewHTTPTransport constructs an HTTP transport for baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.callLocked(ctx, "initialize", clientInfo()); err != nil {
		t.connected = false
		return fmt.Errorf("connect to backend at %s: %w", t.baseURL, err)
	}
	t.connected = true
	logging.Get(logging.CategoryRegistry).Infof("http transport connected to %s", t.baseURL)
	return nil
}

func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
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

func (t *HTTPTransport) Invoke(ctx context.Context, tool string, args map[string]any) (*InvokeResult, error) {
	start := time.Now()
	params := map[string]any{"name": tool, "arguments": args}

	resp, err := t.call(ctx, "tools/call", params)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		return &InvokeResult{Success: false, Error: err.Error(), LatencyMs: latencyMs}, nil
	}
	if resp.Error != nil {
		return &InvokeResult{Success: false, Error: resp.Error.Message, LatencyMs: latencyMs}, nil
	}
	return &InvokeResult{Success: true, Output: resp.Result, LatencyMs: latencyMs}, nil
}

// Probe performs a lightweight liveness check: GET {baseURL}/health,
// falling back to a ping RPC call when the endpoint lacks a health route.
func (t *HTTPTransport) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err == nil {
		resp, err2 := t.client.Do(req)
		if err2 == nil {
			defer resp.Body.Close()
			if resp.StatusCode < 400 {
				return nil
			}
		}
	}

	_, err = t.call(ctx, "ping", nil)
	return err
}

func (t *HTTPTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *HTTPTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.callLocked(ctx, method, params)
}

func (t *HTTPTransport) callLocked(ctx context.Context, method string, params any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		b, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("backend returned status %d: %s", httpResp.StatusCode, string(b))
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return &resp, fmt.Errorf("backend error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

var _ Transporter = (*HTTPTransport)(nil)
