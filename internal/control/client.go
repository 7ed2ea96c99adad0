package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"fusbsync/internal/app"
	"fusbsync/internal/mount"
)

const DefaultAddr = "127.0.0.1:7847"

type Client struct {
	BaseURL string
	HTTP    *http.Client

	id atomic.Int64
}

// NewClient accepts either host:port or a full http URL of the /rpc endpoint.
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base + "/rpc"
	}
	return &Client{
		BaseURL: base,
		// sync/run blocks until the copy is done
		HTTP: &http.Client{Timeout: 30 * time.Minute},
	}
}

// RPCError is a JSON-RPC error returned by the server.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Call invokes method and decodes the result into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	req := struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int64  `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: "2.0", ID: c.id.Add(1), Method: method, Params: params}

	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      any             `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *rpcErr         `json:"error"`
	}
	if err := c.call(ctx, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

func (c *Client) Drives(ctx context.Context) ([]mount.Drive, error) {
	var out struct {
		Drives []mount.Drive `json:"drives"`
	}
	err := c.Call(ctx, "drives/list", nil, &out)
	return out.Drives, err
}

func (c *Client) Sync(ctx context.Context, drive string) (*app.Report, error) {
	var rep app.Report
	if err := c.Call(ctx, "sync/run", map[string]string{"drive": drive}, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *Client) Quit(ctx context.Context) error {
	return c.Call(ctx, "quit", nil, nil)
}

func (c *Client) call(ctx context.Context, req any, out any) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("http %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
