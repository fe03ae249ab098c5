package wallet

import (
	"fmt"

	"github.com/Klingon-tech/shieldwallet/internal/signer"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// Note is a private asset known to the wallet.
//
// A note with a zero UTXO is a pending or external output that has not been
// posted to the ledger. Two notes are the same note when their UTXOs match.
type Note struct {
	AssetID    types.AssetID
	Value      types.Balance
	Keypath    string
	UTXO       types.UTXO
	VoidNumber types.VoidNumber
	ShardIndex uint8

	// Shard holds the UTXOs of the note's ledger shard. It is attached
	// lazily when the note is spent and never persisted.
	Shard []types.UTXO
}

// NewExternalOutput returns a pending note paid to someone else.
func NewExternalOutput(kind types.AssetID, value types.Balance) Note {
	return Note{AssetID: kind, Value: value}
}

// NoteFromAsset converts a signer asset record.
func NoteFromAsset(a signer.Asset) Note {
	return Note{
		AssetID:    a.AssetID,
		Value:      a.Value,
		Keypath:    a.Keypath,
		UTXO:       a.UTXO,
		VoidNumber: a.VoidNumber,
		ShardIndex: a.ShardIndex,
	}
}

// Asset converts the note to the signer's input-asset record.
func (n Note) Asset() signer.Asset {
	return signer.Asset{
		Keypath:    n.Keypath,
		AssetID:    n.AssetID,
		Value:      n.Value,
		UTXO:       n.UTXO,
		ShardIndex: n.ShardIndex,
		VoidNumber: n.VoidNumber,
	}
}

// IsPending reports whether the note has no on-chain identifier yet.
func (n Note) IsPending() bool {
	return n.UTXO.IsZero()
}

// Equal reports whether both notes refer to the same on-chain note.
// Pending notes are never equal to anything.
func (n Note) Equal(other Note) bool {
	return !n.IsPending() && n.UTXO == other.UTXO
}

// ID returns the note identifier derived from its UTXO.
func (n Note) ID() types.NoteID {
	return types.NoteIDFromUTXO(n.UTXO)
}

// WithShard returns a copy of the note carrying the given shard contents.
func (n Note) WithShard(shard []types.UTXO) Note {
	n.Shard = shard
	return n
}

// MarshalBinary encodes the note in the signer's fixed asset layout.
func (n Note) MarshalBinary() ([]byte, error) {
	return n.Asset().Encode(), nil
}

// UnmarshalBinary decodes the signer's fixed asset layout.
func (n *Note) UnmarshalBinary(data []byte) error {
	a, err := signer.DecodeAsset(data)
	if err != nil {
		return err
	}
	*n = NoteFromAsset(a)
	return nil
}

func (n Note) String() string {
	if n.IsPending() {
		return fmt.Sprintf("note{asset=%d value=%d pending}", n.AssetID, n.Value)
	}
	return fmt.Sprintf("note{asset=%d value=%d id=%s}", n.AssetID, n.Value, n.ID())
}
