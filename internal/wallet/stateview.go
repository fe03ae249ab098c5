package wallet

import (
	"context"

	"github.com/Klingon-tech/shieldwallet/internal/ledger"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// Ledger is the read-only view of the shielded pool the wallet needs.
// *ledger.Client implements it.
type Ledger interface {
	VoidNumbers(ctx context.Context) ([]types.VoidNumber, error)
	LedgerShards(ctx context.Context, shardIndex *uint8) ([]ledger.ShardEntry, error)
}

// NewNotes is the part of the ledger not yet sent to the signer.
type NewNotes struct {
	UTXOs          []types.UTXO
	EncryptedNotes []types.Ciphertext

	// Processed is the input set plus the identifiers of the entries above.
	Processed ProcessedSet
}

// Empty reports whether nothing new was found.
func (n NewNotes) Empty() bool {
	return len(n.UTXOs) == 0 && len(n.EncryptedNotes) == 0
}

// BlockchainStateView finds ledger entries the wallet has not processed.
type BlockchainStateView struct {
	ledger Ledger
}

// NewBlockchainStateView creates a view over the given ledger.
func NewBlockchainStateView(l Ledger) *BlockchainStateView {
	return &BlockchainStateView{ledger: l}
}

// GetNewNotes returns every ledger entry whose identifier is absent from
// processed, together with an updated copy of processed that includes them.
// processed itself is not modified. Feeding the returned set back in against
// the same ledger state yields nothing new.
func (v *BlockchainStateView) GetNewNotes(ctx context.Context, processed ProcessedSet) (NewNotes, error) {
	entries, err := v.ledger.LedgerShards(ctx, nil)
	if err != nil {
		return NewNotes{}, err
	}
	out := NewNotes{Processed: processed.Clone()}
	for _, e := range entries {
		id := types.NoteIDFromUTXO(e.UTXO)
		if out.Processed.Has(id) {
			continue
		}
		out.Processed.Add(id)
		out.UTXOs = append(out.UTXOs, e.UTXO)
		out.EncryptedNotes = append(out.EncryptedNotes, e.EncryptedNote)
	}
	return out, nil
}
