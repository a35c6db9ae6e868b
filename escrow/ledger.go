package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"escrowscan/rpc"
)

// storageKeySymbol names the storage sub-tree holding the escrow state inside
// the contract instance.
const storageKeySymbol = "Escrow"

// ErrMalformedInstance signals a structurally invalid contract-instance entry.
// Unlike a missing entry this is an environment error, not a "not found".
var ErrMalformedInstance = errors.New("escrow: malformed contract instance entry")

// ErrMissingEscrowState signals a contract instance that carries no escrow
// storage sub-tree at all.
var ErrMissingEscrowState = errors.New("escrow: contract instance has no escrow state")

type instanceEntry struct {
	ContractData *struct {
		Val *struct {
			ContractInstance *struct {
				Storage []MapEntry `json:"storage"`
			} `json:"contractInstance"`
		} `json:"val"`
	} `json:"contractData"`
}

func instanceLedgerKey(contractID string) rpc.LedgerKey {
	return rpc.LedgerKey{
		ContractData: &rpc.ContractDataKey{
			Contract:   contractID,
			Key:        json.RawMessage(`{"ledgerKeyContractInstance":null}`),
			Durability: "persistent",
		},
	}
}

// FetchEscrowStorage reads the contract's instance storage and extracts the
// escrow state sub-tree. A nil map with a nil error means the contract has no
// ledger entry on this network -- a valid terminal state, distinct from
// transport failure. Callers validate the contract id format beforehand.
func FetchEscrowStorage(ctx context.Context, client *rpc.Client, contractID string) (EscrowMap, error) {
	res, err := client.GetLedgerEntries(ctx, []rpc.LedgerKey{instanceLedgerKey(contractID)})
	if err != nil {
		return nil, err
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}

	var entry instanceEntry
	if err := json.Unmarshal(res.Entries[0].DataJSON, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInstance, err)
	}
	if entry.ContractData == nil || entry.ContractData.Val == nil || entry.ContractData.Val.ContractInstance == nil {
		return nil, ErrMalformedInstance
	}

	for _, item := range entry.ContractData.Val.ContractInstance.Storage {
		if !isEscrowStorageKey(item.Key) {
			continue
		}
		if item.Val.Kind != KindMap {
			// Unexpected shape under a present key: degrade to an empty
			// state rather than failing the whole fetch.
			return EscrowMap{}, nil
		}
		return mapToEscrowMap(item.Val), nil
	}
	return nil, ErrMissingEscrowState
}

// isEscrowStorageKey matches the storage entry whose key vector starts with
// the escrow symbol.
func isEscrowStorageKey(key ScVal) bool {
	if key.Kind != KindVec || len(key.Vec) == 0 {
		return false
	}
	first := key.Vec[0]
	return first.Kind == KindStr && first.Str == storageKeySymbol
}
