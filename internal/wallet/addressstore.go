package wallet

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/shieldwallet/internal/storage"
)

// AddressEntry is one allocated derivation path. Address is the base58
// receiving address for external entries and empty for internal ones.
type AddressEntry struct {
	Keypath string `json:"keypath"`
	Address string `json:"address,omitempty"`
}

// AddressBook is the persisted address state.
type AddressBook struct {
	Internal []AddressEntry `json:"internal_addresses"`
	External []AddressEntry `json:"external_addresses"`

	// UncommittedOffset counts internal entries saved since the last
	// commit. It never exceeds len(Internal).
	UncommittedOffset int `json:"uncommitted_offset"`
}

// AddressStore manages internal and external derivation paths.
//
// Internal (change) paths are staged: each save extends the open staging
// window, and the window is either committed (the paths become permanent)
// or rolled back (the paths are released for reuse). External paths are
// receiving addresses and are kept as soon as they are saved.
//
// The book is read and written as a whole on every operation.
type AddressStore struct {
	mu     sync.Mutex
	db     storage.DB
	prefix string
	strict bool
	logger zerolog.Logger
}

// NewAddressStore creates an address store for the given coin type.
// In strict mode committing or rolling back with nothing staged returns
// ErrStaleStagingWindow; otherwise it logs a warning and does nothing.
func NewAddressStore(db storage.DB, coinType uint32, strict bool, logger zerolog.Logger) *AddressStore {
	return &AddressStore{
		db:     db,
		prefix: BasePrefix(coinType),
		strict: strict,
		logger: logger,
	}
}

// Prefix returns the account-level derivation prefix.
func (s *AddressStore) Prefix() string {
	return s.prefix
}

func (s *AddressStore) load() (AddressBook, error) {
	var book AddressBook
	if _, err := loadBlob(s.db, addressBookKey, &book); err != nil {
		return AddressBook{}, err
	}
	if book.UncommittedOffset < 0 || book.UncommittedOffset > len(book.Internal) {
		return AddressBook{}, corruptf("address book: uncommitted offset %d with %d internal addresses",
			book.UncommittedOffset, len(book.Internal))
	}
	return book, nil
}

func (s *AddressStore) save(book AddressBook) error {
	if err := storage.SaveJSON(s.db, addressBookKey, book); err != nil {
		return fmt.Errorf("save address book: %w", err)
	}
	return nil
}

func (s *AddressStore) keypath(chain, index int) string {
	return fmt.Sprintf("%s/%d/%d", s.prefix, chain, index)
}

// Reset clears both address lists and the uncommitted offset. It does not
// read the existing book, so it also recovers from a corrupt one.
func (s *AddressStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(AddressBook{Internal: []AddressEntry{}, External: []AddressEntry{}})
}

// Book returns a snapshot of the persisted address book.
func (s *AddressStore) Book() (AddressBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// NextInternalKeypath returns the path the next internal save would use.
func (s *AddressStore) NextInternalKeypath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return "", err
	}
	return s.keypath(ChainInternal, len(book.Internal)), nil
}

// CurrentInternalKeypath returns the path of the most recent internal save.
func (s *AddressStore) CurrentInternalKeypath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return "", err
	}
	if len(book.Internal) == 0 {
		return "", fmt.Errorf("%w: no internal address allocated", ErrInvalidKeypath)
	}
	return s.keypath(ChainInternal, len(book.Internal)-1), nil
}

// NextExternalKeypath returns the path the next external save would use.
func (s *AddressStore) NextExternalKeypath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return "", err
	}
	return s.keypath(ChainExternal, len(book.External)), nil
}

// SaveInternalAddress appends keypath to the internal list and extends the
// staging window by one.
func (s *AddressStore) SaveInternalAddress(keypath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return err
	}
	return s.saveInternal(book, keypath)
}

func (s *AddressStore) saveInternal(book AddressBook, keypath string) error {
	kp, err := ParseKeypath(keypath)
	if err != nil {
		return err
	}
	if kp.Chain != ChainInternal {
		return fmt.Errorf("%w: %s is not on the internal chain", ErrInvalidKeypath, keypath)
	}
	book.Internal = append(book.Internal, AddressEntry{Keypath: keypath})
	book.UncommittedOffset++
	return s.save(book)
}

// StageInternalKeypath allocates the next internal path and saves it in one
// step, so concurrent callers never receive the same path.
func (s *AddressStore) StageInternalKeypath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return "", err
	}
	kp := s.keypath(ChainInternal, len(book.Internal))
	if err := s.saveInternal(book, kp); err != nil {
		return "", err
	}
	return kp, nil
}

// SaveExternalAddress appends a receiving address. External entries are
// never staged.
func (s *AddressStore) SaveExternalAddress(entry AddressEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return err
	}
	kp, err := ParseKeypath(entry.Keypath)
	if err != nil {
		return err
	}
	if kp.Chain != ChainExternal {
		return fmt.Errorf("%w: %s is not on the external chain", ErrInvalidKeypath, entry.Keypath)
	}
	book.External = append(book.External, entry)
	return s.save(book)
}

// Staged returns the number of internal entries in the open staging window.
func (s *AddressStore) Staged() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return 0, err
	}
	return book.UncommittedOffset, nil
}

// RollBackInternalAddresses removes every staged internal entry.
func (s *AddressStore) RollBackInternalAddresses() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return err
	}
	if book.UncommittedOffset == 0 {
		return s.nothingStaged("rollback")
	}
	n := book.UncommittedOffset
	book.Internal = book.Internal[:len(book.Internal)-n]
	book.UncommittedOffset = 0
	if err := s.save(book); err != nil {
		return err
	}
	s.logger.Debug().Int("released", n).Msg("Rolled back internal addresses")
	return nil
}

// CommitInternalAddresses makes every staged internal entry permanent.
func (s *AddressStore) CommitInternalAddresses() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, err := s.load()
	if err != nil {
		return err
	}
	if book.UncommittedOffset == 0 {
		return s.nothingStaged("commit")
	}
	n := book.UncommittedOffset
	book.UncommittedOffset = 0
	if err := s.save(book); err != nil {
		return err
	}
	s.logger.Debug().Int("committed", n).Msg("Committed internal addresses")
	return nil
}

func (s *AddressStore) nothingStaged(op string) error {
	if s.strict {
		return fmt.Errorf("%w: %s with nothing staged", ErrStaleStagingWindow, op)
	}
	s.logger.Warn().Str("op", op).Msg("No staged internal addresses")
	return nil
}
