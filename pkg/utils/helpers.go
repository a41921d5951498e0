package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// HexToSelector converts a hex string (with or without 0x prefix) to a 4-byte function selector.
// Unlike a padded conversion, the input must encode exactly 4 bytes.
func HexToSelector(hexStr string) ([4]byte, error) {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	if len(hexStr) != 8 {
		return [4]byte{}, fmt.Errorf("selector %q must be 4 bytes", hexStr)
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return [4]byte{}, fmt.Errorf("invalid selector %q: %w", hexStr, err)
	}
	var result [4]byte
	copy(result[:], b)
	return result, nil
}

// HexToSlot converts a hex string (with or without 0x prefix) to a 32-byte storage slot.
// Short inputs are left padded with zeros, so "0x1" is slot 1.
func HexToSlot(hexStr string) (common.Hash, error) {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	if len(hexStr) > 64 {
		return common.Hash{}, fmt.Errorf("slot %q longer than 32 bytes", hexStr)
	}
	if len(hexStr)%2 == 1 {
		hexStr = "0" + hexStr
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid slot %q: %w", hexStr, err)
	}
	return common.BytesToHash(b), nil
}

// HexToAddress converts a hex string to an address, rejecting anything that is not 20 bytes of hex.
func HexToAddress(hexStr string) (common.Address, error) {
	if !common.IsHexAddress(hexStr) {
		return common.Address{}, fmt.Errorf("invalid address %q", hexStr)
	}
	return common.HexToAddress(hexStr), nil
}
