package wallet

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/shieldwallet/internal/storage"
)

// Persisted blob keys. Each blob is read and written as a whole.
var (
	addressBookKey = []byte("addressbook")
	assetsKey      = []byte("assets")
	processedKey   = []byte("processed")
)

// loadBlob reads a JSON blob, reporting decode failures as ErrCorruptState.
func loadBlob(db storage.DB, key []byte, v any) (bool, error) {
	found, err := storage.LoadJSON(db, key, v)
	if errors.Is(err, storage.ErrCorruptBlob) {
		return found, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	return found, err
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptState, fmt.Sprintf(format, args...))
}
