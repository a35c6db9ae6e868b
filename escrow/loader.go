package escrow

import (
	"context"
	"errors"
	"sync"
	"time"

	"escrowscan/rpc"
)

// ErrSuperseded reports that a newer fetch for the same contract/network pair
// started while this one was in flight. The stale result is discarded instead
// of overwriting fresher state.
var ErrSuperseded = errors.New("escrow: fetch superseded by a newer request")

// ErrUnknownNetwork reports a network name with no configured client.
var ErrUnknownNetwork = errors.New("escrow: unknown network")

// Snapshot is one immutable view of an escrow contract, produced by a single
// fetch. A new fetch always builds a new snapshot; nothing is mutated in
// place.
type Snapshot struct {
	ContractID  string      `json:"contractId"`
	Network     string      `json:"network"`
	Escrow      *Organized  `json:"escrow"`
	LiveBalance LiveBalance `json:"liveBalance"`
	FetchedAt   time.Time   `json:"fetchedAt"`
}

// Loader coordinates escrow fetches across networks. Each contract/network
// pair carries a generation counter; starting a new fetch bumps the counter
// so that a slower, superseded fetch cannot resolve over fresher data.
type Loader struct {
	clients map[string]*rpc.Client

	mu          sync.Mutex
	generations map[string]uint64
	nowFn       func() time.Time
}

// NewLoader builds a loader over one RPC client per configured network,
// keyed by lower-case network name.
func NewLoader(clients map[string]*rpc.Client) *Loader {
	return &Loader{
		clients:     clients,
		generations: make(map[string]uint64),
		nowFn:       time.Now,
	}
}

// Client exposes the RPC client for a network, for callers that page history
// directly.
func (l *Loader) Client(network string) (*rpc.Client, bool) {
	client, ok := l.clients[network]
	return client, ok
}

// Load fetches and organizes one escrow contract. A nil snapshot with a nil
// error means the contract has no ledger entry on the requested network.
func (l *Loader) Load(ctx context.Context, network, contractID string, mobile bool) (*Snapshot, error) {
	if err := ValidateContractID(contractID); err != nil {
		return nil, err
	}
	client, ok := l.clients[network]
	if !ok {
		return nil, ErrUnknownNetwork
	}

	key := network + "/" + contractID
	generation := l.begin(key)

	data, err := FetchEscrowStorage(ctx, client, contractID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	organized := Organize(data, contractID, mobile)
	live := ResolveLiveBalance(ctx, client, contractID, data)

	if !l.current(key, generation) {
		return nil, ErrSuperseded
	}
	return &Snapshot{
		ContractID:  contractID,
		Network:     network,
		Escrow:      organized,
		LiveBalance: live,
		FetchedAt:   l.nowFn().UTC(),
	}, nil
}

func (l *Loader) begin(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generations[key]++
	return l.generations[key]
}

func (l *Loader) current(key string, generation uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generations[key] == generation
}
