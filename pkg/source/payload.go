package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/ava-labs/backrunner/pkg/types"
)

// maxDecompressedSize bounds a single decompressed payload.
const maxDecompressedSize = 32 << 20

type payload struct {
	Index    *uint64  `json:"index"`
	Diff     diff     `json:"diff"`
	Metadata metadata `json:"metadata"`
}

type diff struct {
	Transactions []hexutil.Bytes `json:"transactions"`
}

type metadata struct {
	BlockNumber        *uint64           `json:"block_number"`
	NewAccountBalances map[string]string `json:"new_account_balances"`
}

// Decode parses one websocket frame. Frames that do not start with '{' after
// leading whitespace are treated as brotli compressed JSON.
func Decode(data []byte, receivedAt time.Time) (types.UpdateEvent, error) {
	raw, err := decompress(data)
	if err != nil {
		return types.UpdateEvent{}, err
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.UpdateEvent{}, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.Index == nil {
		return types.UpdateEvent{}, errors.New("invalid payload: missing index")
	}
	if p.Metadata.BlockNumber == nil {
		return types.UpdateEvent{}, errors.New("invalid payload: missing metadata.block_number")
	}

	ev := types.UpdateEvent{
		BlockNumber:  *p.Metadata.BlockNumber,
		Index:        *p.Index,
		Timestamp:    receivedAt,
		Transactions: make([][]byte, 0, len(p.Diff.Transactions)),
	}
	for _, tx := range p.Diff.Transactions {
		ev.Transactions = append(ev.Transactions, tx)
	}

	if len(p.Metadata.NewAccountBalances) > 0 {
		ev.NewAccountBalances = make(map[common.Address]*uint256.Int, len(p.Metadata.NewAccountBalances))
		for addr, bal := range p.Metadata.NewAccountBalances {
			if !common.IsHexAddress(addr) {
				return types.UpdateEvent{}, fmt.Errorf("invalid balance address %q", addr)
			}
			v, err := parseQuantity(bal)
			if err != nil {
				return types.UpdateEvent{}, fmt.Errorf("invalid balance for %s: %w", addr, err)
			}
			ev.NewAccountBalances[common.HexToAddress(addr)] = v
		}
	}
	return ev, nil
}

func decompress(data []byte) ([]byte, error) {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		return data, nil
	}
	out, err := io.ReadAll(io.LimitReader(brotli.NewReader(bytes.NewReader(data)), maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	if len(out) > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds %d bytes", maxDecompressedSize)
	}
	return out, nil
}

// parseQuantity accepts 0x-prefixed hex (leading zeros allowed) or decimal.
func parseQuantity(s string) (*uint256.Int, error) {
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("quantity %q overflows 256 bits", s)
	}
	return v, nil
}
