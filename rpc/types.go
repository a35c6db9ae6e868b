package rpc

import "encoding/json"

// LedgerKey identifies one ledger entry to read. Only contract-data keys are
// used by the viewer; the instance key addresses a contract's persistent
// storage footprint.
type LedgerKey struct {
	ContractData *ContractDataKey `json:"contractData,omitempty"`
}

// ContractDataKey addresses a single contract-data ledger entry.
type ContractDataKey struct {
	Contract   string          `json:"contract"`
	Key        json.RawMessage `json:"key"`
	Durability string          `json:"durability"`
}

// LedgerEntry is one entry returned by getLedgerEntries. Key and data arrive
// as structured tagged-value JSON because every request asks for the JSON
// representation rather than raw XDR.
type LedgerEntry struct {
	KeyJSON            json.RawMessage `json:"keyJson"`
	DataJSON           json.RawMessage `json:"dataJson"`
	LastModifiedLedger uint32          `json:"lastModifiedLedgerSeq"`
	LiveUntilLedger    uint32          `json:"liveUntilLedgerSeq,omitempty"`
}

// GetLedgerEntriesResult is the getLedgerEntries response payload. An empty
// Entries slice means no matching ledger entry exists; that is a valid
// outcome, not an error.
type GetLedgerEntriesResult struct {
	Entries      []LedgerEntry `json:"entries"`
	LatestLedger uint32        `json:"latestLedger"`
}

// LatestLedgerResult is the getLatestLedger response payload.
type LatestLedgerResult struct {
	ID              string `json:"id"`
	Sequence        uint32 `json:"sequence"`
	ProtocolVersion uint32 `json:"protocolVersion"`
}

// InvokeRequest describes a read-only contract invocation to be simulated by
// the node. The source account never signs anything; simulation only needs a
// syntactically valid envelope.
type InvokeRequest struct {
	Contract       string            `json:"contract"`
	Function       string            `json:"function"`
	Args           []json.RawMessage `json:"args,omitempty"`
	Source         string            `json:"sourceAccount"`
	SequenceNumber uint32            `json:"seq"`
}

// SimulateResult is the simulateTransaction response payload.
type SimulateResult struct {
	Results      []SimulateCallResult `json:"results,omitempty"`
	Error        string               `json:"error,omitempty"`
	LatestLedger uint32               `json:"latestLedger"`
}

// SimulateCallResult carries the return value of one simulated host call. A
// missing return value means the host redacted it; callers treat that as a
// valid empty outcome.
type SimulateCallResult struct {
	ReturnValueJSON json.RawMessage `json:"returnValueJson,omitempty"`
}

// TransactionsRequest pages through the node's recent transaction history.
type TransactionsRequest struct {
	StartLedger uint32
	Cursor      string
	Limit       int
}

// TransactionInfo is one transaction returned by getTransactions.
type TransactionInfo struct {
	Status           string `json:"status"`
	Hash             string `json:"txHash"`
	Ledger           uint32 `json:"ledger"`
	CreatedAt        int64  `json:"createdAt,string"`
	ApplicationOrder int32  `json:"applicationOrder"`
	FeeBump          bool   `json:"feeBump"`
}

// TransactionsResult is the getTransactions response payload. OldestLedger is
// the node's retention watermark; requests below it have aged out.
type TransactionsResult struct {
	Transactions []TransactionInfo `json:"transactions"`
	LatestLedger uint32            `json:"latestLedger"`
	OldestLedger uint32            `json:"oldestLedger"`
	Cursor       string            `json:"cursor,omitempty"`
}

// EventsRequest pages through contract events, filtered by contract id.
type EventsRequest struct {
	StartLedger uint32
	ContractIDs []string
	Cursor      string
	Limit       int
}

// EventInfo is one contract event returned by getEvents. Topics and value
// arrive as tagged-value JSON.
type EventInfo struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Ledger         uint32            `json:"ledger"`
	LedgerClosedAt string            `json:"ledgerClosedAt"`
	ContractID     string            `json:"contractId"`
	TxHash         string            `json:"txHash"`
	TopicJSON      []json.RawMessage `json:"topicJson"`
	ValueJSON      json.RawMessage   `json:"valueJson"`
}

// EventsResult is the getEvents response payload.
type EventsResult struct {
	Events       []EventInfo `json:"events"`
	LatestLedger uint32      `json:"latestLedger"`
	OldestLedger uint32      `json:"oldestLedger"`
	Cursor       string      `json:"cursor,omitempty"`
}
