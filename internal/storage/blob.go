package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// LoadJSON reads the blob stored under key into v.
// A missing blob returns (false, nil) and leaves v untouched.
// A blob that fails to decode is reported wrapped in ErrCorruptBlob.
func LoadJSON(db DB, key []byte, v any) (bool, error) {
	data, err := db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorruptBlob, key, err)
	}
	return true, nil
}

// SaveJSON replaces the blob stored under key with the JSON encoding of v.
func SaveJSON(db DB, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := db.Put(key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// ErrCorruptBlob marks a persisted blob that exists but cannot be decoded.
var ErrCorruptBlob = errors.New("corrupt persisted blob")
