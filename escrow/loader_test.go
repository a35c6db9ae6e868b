package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"escrowscan/rpc"
)

func loaderWithNode(t *testing.T) (*fakeNode, *Loader) {
	t.Helper()
	node, client := newFakeNode(t)
	loader := NewLoader(map[string]*rpc.Client{"testnet": client})
	loader.nowFn = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return node, loader
}

func TestLoaderRejectsInvalidID(t *testing.T) {
	_, loader := loaderWithNode(t)
	_, err := loader.Load(context.Background(), "testnet", "Cabc", false)
	if !errors.Is(err, ErrInvalidContractID) {
		t.Fatalf("expected ErrInvalidContractID, got %v", err)
	}
}

func TestLoaderUnknownNetwork(t *testing.T) {
	_, loader := loaderWithNode(t)
	_, err := loader.Load(context.Background(), "devnet", testContractID, false)
	if !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
}

func TestLoaderNotFoundYieldsNilSnapshot(t *testing.T) {
	node, loader := loaderWithNode(t)
	node.handle("getLedgerEntries", func(json.RawMessage) (interface{}, *rpc.Error) {
		return rpc.GetLedgerEntriesResult{}, nil
	})

	snap, err := loader.Load(context.Background(), "testnet", testContractID, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot for a missing contract, got %+v", snap)
	}
}

func TestLoaderBuildsSnapshot(t *testing.T) {
	node, loader := loaderWithNode(t)
	storage := `[{"key":{"vec":[{"sym":"Escrow"}]},"val":{"map":[
		{"key":{"sym":"engagement_id"},"val":{"str":"eng-9"}},
		{"key":{"sym":"amount"},"val":{"i128":"500000000"}}
	]}}]`
	node.handle("getLedgerEntries", func(json.RawMessage) (interface{}, *rpc.Error) {
		return rpc.GetLedgerEntriesResult{Entries: []rpc.LedgerEntry{{DataJSON: instanceEntryJSON(t, storage)}}}, nil
	})

	snap, err := loader.Load(context.Background(), "testnet", testContractID, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap == nil || snap.Escrow == nil {
		t.Fatal("expected a populated snapshot")
	}
	if snap.ContractID != testContractID || snap.Network != "testnet" {
		t.Fatalf("unexpected snapshot identity: %+v", snap)
	}
	if snap.Escrow.Properties["engagement_id"] != "eng-9" {
		t.Fatalf("unexpected organized data: %+v", snap.Escrow.Properties)
	}
	if snap.FetchedAt != loader.nowFn() {
		t.Fatalf("snapshot must be stamped with the fetch time, got %v", snap.FetchedAt)
	}
	// No trustline: the live balance resolver stays a no-op.
	if snap.LiveBalance.LedgerBalance != nil || snap.LiveBalance.Decimals != nil {
		t.Fatalf("expected empty live balance, got %+v", snap.LiveBalance)
	}
}

func TestLoaderDiscardsSupersededFetch(t *testing.T) {
	node, loader := loaderWithNode(t)
	storage := `[{"key":{"vec":[{"sym":"Escrow"}]},"val":{"map":[
		{"key":{"sym":"engagement_id"},"val":{"str":"eng-9"}}
	]}}]`
	node.handle("getLedgerEntries", func(json.RawMessage) (interface{}, *rpc.Error) {
		// A newer request for the same contract starts while this fetch is
		// still in flight.
		loader.begin("testnet/" + testContractID)
		return rpc.GetLedgerEntriesResult{Entries: []rpc.LedgerEntry{{DataJSON: instanceEntryJSON(t, storage)}}}, nil
	})

	_, err := loader.Load(context.Background(), "testnet", testContractID, false)
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
}

func TestLoaderGenerationsAreScopedPerContract(t *testing.T) {
	node, loader := loaderWithNode(t)
	storage := `[{"key":{"vec":[{"sym":"Escrow"}]},"val":{"map":[
		{"key":{"sym":"engagement_id"},"val":{"str":"eng-9"}}
	]}}]`
	node.handle("getLedgerEntries", func(json.RawMessage) (interface{}, *rpc.Error) {
		// Activity on an unrelated contract must not invalidate this fetch.
		loader.begin("testnet/" + testTokenID)
		return rpc.GetLedgerEntriesResult{Entries: []rpc.LedgerEntry{{DataJSON: instanceEntryJSON(t, storage)}}}, nil
	})

	snap, err := loader.Load(context.Background(), "testnet", testContractID, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot")
	}
}
