package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Error is an RPC-level error payload returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// Client is a thin JSON-RPC 2.0 client against one network's node endpoint.
// It is read-only: the viewer never submits transactions.
type Client struct {
	endpoint   string
	passphrase string
	http       *http.Client
	limiter    *rate.Limiter
	metrics    *Metrics
	nextID     atomic.Int64
}

// Option customises client construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit bounds outbound request throughput against the node.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithMetrics attaches request counters and latency histograms.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client for a single network endpoint. The network
// passphrase rides along because deterministic token-contract derivation
// depends on it.
func NewClient(endpoint, passphrase string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		passphrase: passphrase,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Passphrase returns the network passphrase the client was built for.
func (c *Client) Passphrase() string { return c.passphrase }

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// GetLedgerEntries reads ledger entries for the supplied keys, requesting the
// structured JSON representation of key and value.
func (c *Client) GetLedgerEntries(ctx context.Context, keys []LedgerKey) (*GetLedgerEntriesResult, error) {
	params := map[string]interface{}{
		"keys":      keys,
		"xdrFormat": "json",
	}
	var result GetLedgerEntriesResult
	if err := c.call(ctx, "getLedgerEntries", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLatestLedger returns the node's latest closed ledger.
func (c *Client) GetLatestLedger(ctx context.Context) (*LatestLedgerResult, error) {
	var result LatestLedgerResult
	if err := c.call(ctx, "getLatestLedger", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SimulateTransaction runs a read-only contract invocation on the node and
// returns its (possibly redacted) return value.
func (c *Client) SimulateTransaction(ctx context.Context, req InvokeRequest) (*SimulateResult, error) {
	params := map[string]interface{}{
		"transaction": req,
		"xdrFormat":   "json",
	}
	var result SimulateResult
	if err := c.call(ctx, "simulateTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransactions pages through recent transaction history.
func (c *Client) GetTransactions(ctx context.Context, req TransactionsRequest) (*TransactionsResult, error) {
	params := map[string]interface{}{}
	if req.StartLedger > 0 {
		params["startLedger"] = req.StartLedger
	}
	pagination := map[string]interface{}{}
	if req.Cursor != "" {
		pagination["cursor"] = req.Cursor
	}
	if req.Limit > 0 {
		pagination["limit"] = req.Limit
	}
	if len(pagination) > 0 {
		params["pagination"] = pagination
	}
	var result TransactionsResult
	if err := c.call(ctx, "getTransactions", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEvents pages through contract events for the requested contract ids.
func (c *Client) GetEvents(ctx context.Context, req EventsRequest) (*EventsResult, error) {
	params := map[string]interface{}{
		"xdrFormat": "json",
	}
	if req.StartLedger > 0 {
		params["startLedger"] = req.StartLedger
	}
	if len(req.ContractIDs) > 0 {
		params["filters"] = []map[string]interface{}{
			{"type": "contract", "contractIds": req.ContractIDs},
		}
	}
	pagination := map[string]interface{}{}
	if req.Cursor != "" {
		pagination["cursor"] = req.Cursor
	}
	if req.Limit > 0 {
		pagination["limit"] = req.Limit
	}
	if len(pagination) > 0 {
		params["pagination"] = pagination
	}
	var result EventsResult
	if err := c.call(ctx, "getEvents", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	start := time.Now()
	err := c.doCall(ctx, method, params, out)
	if c.metrics != nil {
		c.metrics.observe(method, err, time.Since(start))
	}
	return err
}

func (c *Client) doCall(ctx context.Context, method string, params, out interface{}) error {
	id := c.nextID.Add(1)
	body := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("node rpc %s failed: status=%d body=%s", method, resp.StatusCode, string(payload))
	}
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("node rpc %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("node rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
