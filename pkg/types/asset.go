package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// AssetID identifies the kind of a private asset (u32 on the wire).
type AssetID uint32

// Balance is an amount in atomic units. The wire form is a u128; values above
// 64 bits are rejected on decode.
type Balance uint64

// Sizes of the fixed protocol blobs.
const (
	EncryptedMsgSize = 36
	EphemeralPKSize  = 32
	ProofSize        = 192
)

// Ciphertext is an ECIES-encrypted note attached to every ledger entry.
type Ciphertext struct {
	EncryptedMsg [EncryptedMsgSize]byte
	EphemeralPK  [EphemeralPKSize]byte
}

type ciphertextJSON struct {
	EncryptedMsg string `json:"encrypted_msg"`
	EphemeralPK  string `json:"ephemeral_pk"`
}

// MarshalJSON encodes both fields as hex strings.
func (c Ciphertext) MarshalJSON() ([]byte, error) {
	return json.Marshal(ciphertextJSON{
		EncryptedMsg: hex.EncodeToString(c.EncryptedMsg[:]),
		EphemeralPK:  hex.EncodeToString(c.EphemeralPK[:]),
	})
}

// UnmarshalJSON decodes the hex form produced by MarshalJSON.
func (c *Ciphertext) UnmarshalJSON(data []byte) error {
	var raw ciphertextJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := decodeFixedHex(raw.EncryptedMsg, c.EncryptedMsg[:]); err != nil {
		return fmt.Errorf("encrypted_msg: %w", err)
	}
	if err := decodeFixedHex(raw.EphemeralPK, c.EphemeralPK[:]); err != nil {
		return fmt.Errorf("ephemeral_pk: %w", err)
	}
	return nil
}

// Proof is an opaque zero-knowledge proof blob.
type Proof [ProofSize]byte

// String returns the hex-encoded proof.
func (p Proof) String() string {
	return hex.EncodeToString(p[:])
}

func decodeFixedHex(s string, dst []byte) error {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("must be %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
