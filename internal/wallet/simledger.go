package wallet

import (
	"context"
	"sync"

	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// SimulatedLedger extends on-chain shards with notes that will exist once
// earlier steps of a batch execute. Spending such a note in a later step
// needs the shard as it will look at that point.
type SimulatedLedger struct {
	ledger Ledger

	mu       sync.Mutex
	offChain []Note
}

// NewSimulatedLedger creates a simulated view over l with no off-chain notes.
func NewSimulatedLedger(l Ledger) *SimulatedLedger {
	return &SimulatedLedger{ledger: l}
}

// AddOffChain registers a note produced by an earlier batch step.
func (s *SimulatedLedger) AddOffChain(n Note) {
	s.mu.Lock()
	s.offChain = append(s.offChain, n)
	s.mu.Unlock()
}

// Shard returns the on-chain UTXOs of shard followed by the off-chain ones
// in registration order.
func (s *SimulatedLedger) Shard(ctx context.Context, shard uint8) ([]types.UTXO, error) {
	entries, err := s.ledger.LedgerShards(ctx, &shard)
	if err != nil {
		return nil, err
	}
	out := make([]types.UTXO, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.UTXO)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.offChain {
		if n.ShardIndex == shard {
			out = append(out, n.UTXO)
		}
	}
	return out, nil
}

// Reset drops every off-chain note.
func (s *SimulatedLedger) Reset() {
	s.mu.Lock()
	s.offChain = nil
	s.mu.Unlock()
}
