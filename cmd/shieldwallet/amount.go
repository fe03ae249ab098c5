package main

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// parseAmount converts a decimal string to atomic units with the given
// number of decimal places.
func parseAmount(s string, decimals int32) (types.Balance, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount")
	}
	units := d.Shift(decimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("too many decimal places (max %d)", decimals)
	}
	b := units.BigInt()
	if !b.IsUint64() {
		return 0, fmt.Errorf("amount too large")
	}
	return types.Balance(b.Uint64()), nil
}

// formatAmount converts atomic units to a fixed-point decimal string.
func formatAmount(v types.Balance, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), -decimals).StringFixed(decimals)
}

// parseAssetID parses a numeric asset identifier.
func parseAssetID(s string) (types.AssetID, error) {
	if s == "" {
		return 0, fmt.Errorf("missing asset id")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid asset id %q", s)
	}
	return types.AssetID(n), nil
}
