package wallet

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// MinSelectedNotes is the input arity of every transfer step.
const MinSelectedNotes = 2

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	AssetID types.AssetID
	Notes   []Note        // Selected notes, in selection order.
	Total   types.Balance // Sum of selected note values.
	Target  types.Balance
	Change  types.Balance // Change = Total - Target.
}

// SelectCoins picks notes of the given kind to cover target.
//
// Notes are visited once in the given order. A note is taken while the
// running total is below target or fewer than two notes are selected, so
// the result carries at least two notes whenever two are available.
// A target of zero with no matching notes yields an empty selection.
func SelectCoins(target types.Balance, notes []Note, kind types.AssetID) (*CoinSelection, error) {
	var (
		selected []Note
		total    types.Balance
		have     types.Balance
	)
	for _, n := range notes {
		if n.AssetID != kind {
			continue
		}
		// have only feeds the error message, so it saturates.
		if sum, carry := bits.Add64(uint64(have), uint64(n.Value), 0); carry == 0 {
			have = types.Balance(sum)
		} else {
			have = math.MaxUint64
		}
		if total < target || len(selected) < MinSelectedNotes {
			sum, err := addValues(total, n.Value)
			if err != nil {
				return nil, fmt.Errorf("asset %d: %w", kind, err)
			}
			total = sum
			selected = append(selected, n)
		}
	}
	if total < target {
		return nil, fmt.Errorf("%w: asset %d: have %d, need %d", ErrInsufficientFunds, kind, have, target)
	}
	return &CoinSelection{
		AssetID: kind,
		Notes:   selected,
		Total:   total,
		Target:  target,
		Change:  total - target,
	}, nil
}

// Last returns the last selected note.
func (s *CoinSelection) Last() (Note, error) {
	if len(s.Notes) == 0 {
		return Note{}, ErrEmptySelection
	}
	return s.Notes[len(s.Notes)-1], nil
}

// SecondLast returns the note selected before the last one.
func (s *CoinSelection) SecondLast() (Note, error) {
	if len(s.Notes) < 2 {
		return Note{}, fmt.Errorf("%w: %d selected", ErrEmptySelection, len(s.Notes))
	}
	return s.Notes[len(s.Notes)-2], nil
}

// ZeroCoinsRequired returns how many zero-value notes must be added to
// reach the two-input floor.
func (s *CoinSelection) ZeroCoinsRequired() int {
	if n := MinSelectedNotes - len(s.Notes); n > 0 {
		return n
	}
	return 0
}

// addValues returns a+b, failing with ErrValueOverflow instead of wrapping.
func addValues(a, b types.Balance) (types.Balance, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrValueOverflow, a, b)
	}
	return types.Balance(sum), nil
}
