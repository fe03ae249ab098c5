package types

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// ShieldedAddressSize is the length of an encoded shielded address in bytes.
const ShieldedAddressSize = 3 * RandomValueSize

// ShieldedAddress is a receiving address for private assets.
// Wire layout: k(32) | s(32) | ecpk(32).
type ShieldedAddress struct {
	K    RandomValue
	S    RandomValue
	ECPK RandomValue
}

// IsZero returns true if every component is zero.
func (a ShieldedAddress) IsZero() bool {
	return a == ShieldedAddress{}
}

// Bytes returns the fixed 96-byte encoding.
func (a ShieldedAddress) Bytes() []byte {
	b := make([]byte, 0, ShieldedAddressSize)
	b = append(b, a.K[:]...)
	b = append(b, a.S[:]...)
	b = append(b, a.ECPK[:]...)
	return b
}

// String returns the base58 form shown to users.
func (a ShieldedAddress) String() string {
	return base58.Encode(a.Bytes())
}

// MarshalJSON encodes the address as its base58 string.
func (a ShieldedAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a base58 string into the address.
func (a *ShieldedAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseShieldedAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ShieldedAddressFromBytes decodes the fixed 96-byte layout.
func ShieldedAddressFromBytes(b []byte) (ShieldedAddress, error) {
	if len(b) != ShieldedAddressSize {
		return ShieldedAddress{}, fmt.Errorf("shielded address must be %d bytes, got %d", ShieldedAddressSize, len(b))
	}
	var a ShieldedAddress
	copy(a.K[:], b[:32])
	copy(a.S[:], b[32:64])
	copy(a.ECPK[:], b[64:])
	return a, nil
}

// ParseShieldedAddress decodes a base58 shielded address.
func ParseShieldedAddress(s string) (ShieldedAddress, error) {
	if s == "" {
		return ShieldedAddress{}, fmt.Errorf("empty shielded address")
	}
	b, err := base58.Decode(s)
	if err != nil {
		return ShieldedAddress{}, fmt.Errorf("invalid base58: %w", err)
	}
	return ShieldedAddressFromBytes(b)
}
