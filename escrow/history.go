package escrow

import (
	"context"
	"encoding/json"

	"escrowscan/rpc"
)

// Human-readable notices attached to empty history pages so the UI can
// distinguish a quiet contract from data that aged out of the node's
// retention window.
const (
	noticeNoActivity = "No activity recorded for this contract in the node's retention window."
	noticeRetention  = "The requested range is older than the node's retention window; earlier history has aged out."
)

// TransactionsPage is one page of transaction history.
type TransactionsPage struct {
	Items   []rpc.TransactionInfo `json:"items"`
	Cursor  string                `json:"cursor,omitempty"`
	HasMore bool                  `json:"hasMore"`
	Notice  string                `json:"notice,omitempty"`
}

// EventItem is one contract event flattened for display.
type EventItem struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Ledger    uint32   `json:"ledger"`
	CreatedAt string   `json:"createdAt"`
	TxHash    string   `json:"txHash"`
	Topics    []string `json:"topics"`
	Value     string   `json:"value"`
}

// EventsPage is one page of contract events.
type EventsPage struct {
	Items   []EventItem `json:"items"`
	Cursor  string      `json:"cursor,omitempty"`
	HasMore bool        `json:"hasMore"`
	Notice  string      `json:"notice,omitempty"`
}

// FetchTransactions pages through the node's transaction history. The
// contract id is validated before any network call; a malformed id is the
// only hard error. Transport and parse failures degrade to an empty page
// with an explanatory notice, matching the mapper's fail-soft policy.
func FetchTransactions(ctx context.Context, client *rpc.Client, contractID, cursor string, startLedger uint32, limit int) (TransactionsPage, error) {
	if err := ValidateContractID(contractID); err != nil {
		return TransactionsPage{}, err
	}
	res, err := client.GetTransactions(ctx, rpc.TransactionsRequest{
		StartLedger: startLedger,
		Cursor:      cursor,
		Limit:       limit,
	})
	if err != nil {
		return TransactionsPage{Items: []rpc.TransactionInfo{}, Notice: historyErrorNotice(err)}, nil
	}
	page := TransactionsPage{
		Items:  res.Transactions,
		Cursor: res.Cursor,
	}
	if page.Items == nil {
		page.Items = []rpc.TransactionInfo{}
	}
	page.HasMore = res.Cursor != "" && limit > 0 && len(page.Items) >= limit
	if len(page.Items) == 0 {
		page.Notice = emptyHistoryNotice(startLedger, res.OldestLedger)
	}
	return page, nil
}

// FetchEvents pages through contract events for one contract id. Same error
// policy as FetchTransactions.
func FetchEvents(ctx context.Context, client *rpc.Client, contractID, cursor string, startLedger uint32, limit int) (EventsPage, error) {
	if err := ValidateContractID(contractID); err != nil {
		return EventsPage{}, err
	}
	res, err := client.GetEvents(ctx, rpc.EventsRequest{
		StartLedger: startLedger,
		ContractIDs: []string{contractID},
		Cursor:      cursor,
		Limit:       limit,
	})
	if err != nil {
		return EventsPage{Items: []EventItem{}, Notice: historyErrorNotice(err)}, nil
	}
	page := EventsPage{
		Items:  make([]EventItem, 0, len(res.Events)),
		Cursor: res.Cursor,
	}
	for _, ev := range res.Events {
		page.Items = append(page.Items, flattenEvent(ev))
	}
	page.HasMore = res.Cursor != "" && limit > 0 && len(page.Items) >= limit
	if len(page.Items) == 0 {
		page.Notice = emptyHistoryNotice(startLedger, res.OldestLedger)
	}
	return page, nil
}

func flattenEvent(ev rpc.EventInfo) EventItem {
	item := EventItem{
		ID:        ev.ID,
		Type:      ev.Type,
		Ledger:    ev.Ledger,
		CreatedAt: ev.LedgerClosedAt,
		TxHash:    ev.TxHash,
		Topics:    make([]string, 0, len(ev.TopicJSON)),
	}
	for _, raw := range ev.TopicJSON {
		item.Topics = append(item.Topics, displayRaw(raw))
	}
	item.Value = displayRaw(ev.ValueJSON)
	return item
}

func displayRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return NotAvailable
	}
	var val ScVal
	if err := json.Unmarshal(raw, &val); err != nil {
		return NotAvailable
	}
	return val.Display()
}

func emptyHistoryNotice(startLedger, oldestLedger uint32) string {
	if startLedger > 0 && oldestLedger > 0 && startLedger < oldestLedger {
		return noticeRetention
	}
	return noticeNoActivity
}

func historyErrorNotice(err error) string {
	return "History is temporarily unavailable: " + err.Error()
}
