// Package types defines the primitive values exchanged with the signer and the ledger.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// RandomValueSize is the length of every 32-byte protocol value.
const RandomValueSize = 32

// RandomValue is an opaque 32-byte protocol value.
type RandomValue [RandomValueSize]byte

// UTXO is the on-chain identifier of a note commitment.
type UTXO = RandomValue

// VoidNumber is the nullifier published when a note is spent.
type VoidNumber = RandomValue

// IsZero returns true if the value is all zeros.
func (v RandomValue) IsZero() bool {
	return v == RandomValue{}
}

// String returns the hex-encoded value.
func (v RandomValue) String() string {
	return hex.EncodeToString(v[:])
}

// Bytes returns a copy of the value as a byte slice.
func (v RandomValue) Bytes() []byte {
	b := make([]byte, RandomValueSize)
	copy(b, v[:])
	return b
}

// MarshalJSON encodes the value as a hex string.
func (v RandomValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a hex string into the value.
func (v *RandomValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*v = RandomValue{}
		return nil
	}
	parsed, err := HexToRandomValue(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// HexToRandomValue converts a hex string (optionally 0x-prefixed) to a RandomValue.
func HexToRandomValue(s string) (RandomValue, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return RandomValue{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != RandomValueSize {
		return RandomValue{}, fmt.Errorf("value must be %d bytes, got %d", RandomValueSize, len(b))
	}
	var v RandomValue
	copy(v[:], b)
	return v, nil
}
