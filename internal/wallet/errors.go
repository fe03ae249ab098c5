package wallet

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// Wallet errors.
var (
	// ErrInsufficientFunds means the notes of the requested kind cannot
	// cover the target value.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrEmptySelection means a selection accessor was used on a selection
	// without enough notes. It indicates a caller bug.
	ErrEmptySelection = errors.New("selection has too few notes")

	// ErrCorruptState wraps every failure to decode a persisted blob.
	// The affected store stays unusable until it is explicitly reset.
	ErrCorruptState = errors.New("corrupt persisted state")

	// ErrStaleStagingWindow means an internal-address commit or rollback
	// found nothing staged, or a new transaction was started while another
	// one still holds staged addresses.
	ErrStaleStagingWindow = errors.New("stale staging window")

	// ErrFillerNotesRequired means a transfer needs zero-value notes
	// minted first. Returned wrapped in a *FillerNotesError.
	ErrFillerNotesRequired = errors.New("zero-value filler notes required")

	ErrUnknownTx      = errors.New("unknown pending transaction")
	ErrInvalidKeypath = errors.New("invalid keypath")
	ErrPendingNote    = errors.New("note has no on-chain identifier")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrValueOverflow  = errors.New("note values overflow 64 bits")
)

// FillerNotesError reports how many zero-value notes of an asset kind must
// be minted before a transfer can be built.
type FillerNotesError struct {
	AssetID  types.AssetID
	Required int
}

func (e *FillerNotesError) Error() string {
	return fmt.Sprintf("asset %d: %d zero-value filler note(s) required", e.AssetID, e.Required)
}

// Is makes errors.Is(err, ErrFillerNotesRequired) match.
func (e *FillerNotesError) Is(target error) bool {
	return target == ErrFillerNotesRequired
}
