// Package client calls the mixerd JSON-RPC API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/flight-control/mixerd/internal/commands"
	"github.com/flight-control/mixerd/internal/jsonrpc"
)

// Error is a JSON-RPC error returned by the daemon.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// Client is a JSON-RPC client for one daemon.
type Client struct {
	url    string
	token  string
	http   *http.Client
	nextID atomic.Int64
}

// New creates a client for baseURL, e.g. http://127.0.0.1:8080. token may
// be empty when the daemon runs without auth.
func New(baseURL, token string) *Client {
	return &Client{
		url:   strings.TrimRight(baseURL, "/") + jsonrpc.APIPath,
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

type request struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	Params  []string `json:"params,omitempty"`
	ID      int64    `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// Call invokes method and decodes the result into result, which may be nil.
func (c *Client) Call(ctx context.Context, method string, params []string, result interface{}) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("call %s: HTTP %d: %w", method, resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// OutputCount calls get_output_count.
func (c *Client) OutputCount(ctx context.Context) (int, error) {
	var n int
	err := c.Call(ctx, "get_output_count", nil, &n)
	return n, err
}

// LoadReport is the result of load_buffer.
type LoadReport struct {
	Loaded  int      `json:"loaded"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// LoadBuffer sends mixer definition text.
func (c *Client) LoadBuffer(ctx context.Context, text string) (LoadReport, error) {
	var rep LoadReport
	err := c.Call(ctx, "load_buffer", []string{text}, &rep)
	return rep, err
}

// Mix runs one mixing pass against the daemon's live controls.
func (c *Client) Mix(ctx context.Context) (commands.MixOutput, error) {
	var out commands.MixOutput
	err := c.Call(ctx, "mix", nil, &out)
	return out, err
}

// Dump returns the daemon's mixer group as text.
func (c *Client) Dump(ctx context.Context) (string, error) {
	var text string
	err := c.Call(ctx, "dump", nil, &text)
	return text, err
}
