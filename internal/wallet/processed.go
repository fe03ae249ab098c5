package wallet

import (
	"sort"
	"sync"

	"github.com/Klingon-tech/shieldwallet/internal/storage"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// ProcessedSet holds the identifiers of ledger entries already sent to the
// signer for recovery.
type ProcessedSet map[types.NoteID]struct{}

// Has reports whether id is in the set.
func (p ProcessedSet) Has(id types.NoteID) bool {
	_, ok := p[id]
	return ok
}

// Add inserts id.
func (p ProcessedSet) Add(id types.NoteID) {
	p[id] = struct{}{}
}

// Clone returns an independent copy.
func (p ProcessedSet) Clone() ProcessedSet {
	out := make(ProcessedSet, len(p))
	for id := range p {
		out[id] = struct{}{}
	}
	return out
}

// ProcessedStore persists the ProcessedSet. The set only grows, except on
// Reset.
type ProcessedStore struct {
	mu sync.Mutex
	db storage.DB
}

// NewProcessedStore creates a processed-set store backed by db.
func NewProcessedStore(db storage.DB) *ProcessedStore {
	return &ProcessedStore{db: db}
}

// Load returns the persisted set. A missing blob is an empty set.
func (s *ProcessedStore) Load() (ProcessedSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []types.NoteID
	if _, err := loadBlob(s.db, processedKey, &ids); err != nil {
		return nil, err
	}
	set := make(ProcessedSet, len(ids))
	for _, id := range ids {
		if len(id) != 2*types.NoteIDSize {
			return nil, corruptf("processed: bad identifier %q", id)
		}
		set.Add(id)
	}
	return set, nil
}

// Save replaces the persisted set.
func (s *ProcessedStore) Save(set ProcessedSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]types.NoteID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return storage.SaveJSON(s.db, processedKey, ids)
}

// Reset clears the persisted set.
func (s *ProcessedStore) Reset() error {
	return s.Save(ProcessedSet{})
}
