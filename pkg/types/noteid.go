package types

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// NoteIDSize is the number of hash bytes kept in a NoteID.
const NoteIDSize = 16

// NoteID identifies a ledger entry for recovery bookkeeping.
// It is the BLAKE3-256 hash of the UTXO truncated to NoteIDSize bytes.
type NoteID string

// NoteIDFromUTXO computes the recovery identifier of a ledger UTXO.
func NoteIDFromUTXO(u UTXO) NoteID {
	sum := blake3.Sum256(u[:])
	return NoteID(hex.EncodeToString(sum[:NoteIDSize]))
}
