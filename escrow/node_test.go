package escrow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"escrowscan/rpc"
)

// fakeNode is an in-process JSON-RPC node. Tests register one handler per
// method; unregistered methods fail the test.
type fakeNode struct {
	t *testing.T

	mu       sync.Mutex
	handlers map[string]func(params json.RawMessage) (interface{}, *rpc.Error)
	calls    []string
}

func newFakeNode(t *testing.T) (*fakeNode, *rpc.Client) {
	t.Helper()
	node := &fakeNode{
		t:        t,
		handlers: make(map[string]func(params json.RawMessage) (interface{}, *rpc.Error)),
	}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	client := rpc.NewClient(srv.URL, "Test SDF Network ; September 2015", rpc.WithHTTPClient(srv.Client()))
	return node, client
}

func (n *fakeNode) handle(method string, fn func(params json.RawMessage) (interface{}, *rpc.Error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = fn
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, name := range n.calls {
		if name == method {
			count++
		}
	}
	return count
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      int64           `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		n.t.Errorf("fake node: decode request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls = append(n.calls, req.Method)
	handler := n.handlers[req.Method]
	n.mu.Unlock()
	if handler == nil {
		n.t.Errorf("fake node: unexpected method %q", req.Method)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	result, rpcErr := handler(req.Params)
	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
	}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		n.t.Errorf("fake node: encode response: %v", err)
	}
}

// instanceEntryJSON wraps escrow storage entries into the ledger entry shape
// returned by getLedgerEntries.
func instanceEntryJSON(t *testing.T, storage string) json.RawMessage {
	t.Helper()
	raw := `{"contractData":{"val":{"contractInstance":{"storage":` + storage + `}}}}`
	if !json.Valid([]byte(raw)) {
		t.Fatalf("invalid instance entry fixture: %s", raw)
	}
	return json.RawMessage(raw)
}
