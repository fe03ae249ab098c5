package wallet

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/shieldwallet/internal/storage"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// AssetStore persists the notes owned by the wallet.
//
// The blob is a JSON list of hex strings, each the signer's fixed asset
// layout of one note, in insertion order. Any entry that fails to decode
// fails the whole load.
type AssetStore struct {
	mu     sync.Mutex
	db     storage.DB
	logger zerolog.Logger
}

// NewAssetStore creates an asset store backed by db.
func NewAssetStore(db storage.DB, logger zerolog.Logger) *AssetStore {
	return &AssetStore{db: db, logger: logger}
}

// Reset clears all persisted notes.
func (s *AssetStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(nil)
}

// LoadNotes returns every persisted note in insertion order.
func (s *AssetStore) LoadNotes() ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// AddNotes appends the notes not already stored and returns how many were
// added. Duplicates, by UTXO, within the batch or against the store are
// dropped. Pending notes cannot be stored and fail the call.
func (s *AssetStore) AddNotes(notes []Note) (int, error) {
	for _, n := range notes {
		if n.IsPending() {
			return 0, fmt.Errorf("add notes: %w: %s", ErrPendingNote, n)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load()
	if err != nil {
		return 0, err
	}
	seen := make(map[types.UTXO]struct{}, len(stored)+len(notes))
	for _, n := range stored {
		seen[n.UTXO] = struct{}{}
	}
	added := 0
	for _, n := range notes {
		if _, dup := seen[n.UTXO]; dup {
			continue
		}
		seen[n.UTXO] = struct{}{}
		n.Shard = nil
		stored = append(stored, n)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.save(stored); err != nil {
		return 0, err
	}
	s.logger.Debug().Int("added", added).Int("total", len(stored)).Msg("Stored notes")
	return added, nil
}

func (s *AssetStore) load() ([]Note, error) {
	var raw []string
	if _, err := loadBlob(s.db, assetsKey, &raw); err != nil {
		return nil, err
	}
	notes := make([]Note, 0, len(raw))
	for i, h := range raw {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, corruptf("assets: entry %d: %v", i, err)
		}
		var n Note
		if err := n.UnmarshalBinary(b); err != nil {
			return nil, corruptf("assets: entry %d: %v", i, err)
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func (s *AssetStore) save(notes []Note) error {
	raw := make([]string, 0, len(notes))
	for _, n := range notes {
		b, err := n.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode note: %w", err)
		}
		raw = append(raw, hex.EncodeToString(b))
	}
	if err := storage.SaveJSON(s.db, assetsKey, raw); err != nil {
		return fmt.Errorf("save assets: %w", err)
	}
	return nil
}
