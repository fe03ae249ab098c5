package wallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tyler-smith/go-bip32"
)

// BIP-44 derivation path constants.
// Full path: m/44'/coinType'/account'/chain/index
const (
	// PurposeBIP44 is the BIP-44 purpose field.
	PurposeBIP44 = 44

	// DefaultAccount is the only account the wallet derives.
	DefaultAccount = 0

	// ChainExternal is for receiving addresses.
	ChainExternal = 0

	// ChainInternal is for change and intermediate outputs.
	ChainInternal = 1
)

// Registered coin types.
const (
	CoinTypeMainnet = 611
	CoinTypeTestnet = 612
)

// Keypath is a BIP-44 derivation path understood by the signer.
type Keypath struct {
	CoinType uint32
	Account  uint32
	Chain    uint32
	Index    uint32
}

// BasePrefix returns the account-level prefix m/44'/coinType'/0'.
func BasePrefix(coinType uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'", PurposeBIP44, coinType, DefaultAccount)
}

// String renders the path, e.g. m/44'/611'/0'/1/7.
func (k Keypath) String() string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", PurposeBIP44, k.CoinType, k.Account, k.Chain, k.Index)
}

// ChildIndices returns the BIP-32 child numbers of the path, hardened
// components offset by bip32.FirstHardenedChild.
func (k Keypath) ChildIndices() []uint32 {
	return []uint32{
		bip32.FirstHardenedChild + PurposeBIP44,
		bip32.FirstHardenedChild + k.CoinType,
		bip32.FirstHardenedChild + k.Account,
		k.Chain,
		k.Index,
	}
}

// ParseKeypath parses a path of the form m/44'/coinType'/account'/chain/index.
func ParseKeypath(s string) (Keypath, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 6 || parts[0] != "m" {
		return Keypath{}, fmt.Errorf("%w: %q", ErrInvalidKeypath, s)
	}
	var nums [5]uint32
	for i, p := range parts[1:] {
		hardened := strings.HasSuffix(p, "'")
		if hardened != (i < 3) {
			return Keypath{}, fmt.Errorf("%w: %q: component %d hardening", ErrInvalidKeypath, s, i+1)
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(p, "'"), 10, 32)
		if err != nil || uint32(v) >= bip32.FirstHardenedChild {
			return Keypath{}, fmt.Errorf("%w: %q: component %d", ErrInvalidKeypath, s, i+1)
		}
		nums[i] = uint32(v)
	}
	if nums[0] != PurposeBIP44 {
		return Keypath{}, fmt.Errorf("%w: %q: purpose %d", ErrInvalidKeypath, s, nums[0])
	}
	if nums[3] != ChainExternal && nums[3] != ChainInternal {
		return Keypath{}, fmt.Errorf("%w: %q: chain %d", ErrInvalidKeypath, s, nums[3])
	}
	return Keypath{CoinType: nums[1], Account: nums[2], Chain: nums[3], Index: nums[4]}, nil
}
