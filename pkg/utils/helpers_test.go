package utils

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexToSelector(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    [4]byte
		wantErr bool
	}{
		{
			name:  "with 0x prefix",
			input: "0xa9059cbb",
			want:  [4]byte{0xa9, 0x05, 0x9c, 0xbb},
		},
		{
			name:  "without 0x prefix",
			input: "38ed1739",
			want:  [4]byte{0x38, 0xed, 0x17, 0x39},
		},
		{
			name:    "too short",
			input:   "0x1234",
			wantErr: true,
		},
		{
			name:    "too long",
			input:   "0xa9059cbb00",
			wantErr: true,
		},
		{
			name:    "invalid hex string",
			input:   "0xzzzzzzzz",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToSelector(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexToSlot(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    common.Hash
		wantErr bool
	}{
		{
			name:  "short value is left padded",
			input: "0x1",
			want:  common.BigToHash(common.Big1),
		},
		{
			name:  "empty string is slot zero",
			input: "",
			want:  common.Hash{},
		},
		{
			name:  "full width",
			input: "0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20",
			want:  common.HexToHash("0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"),
		},
		{
			name:    "too long",
			input:   "0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f2021",
			wantErr: true,
		},
		{
			name:    "invalid hex string",
			input:   "0xghij",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToSlot(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexToAddress(t *testing.T) {
	addr, err := HexToAddress("0x3a3f76931108c79658a90f340b4cbec860346b2b")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x3a3f76931108c79658a90f340b4cbec860346b2b"), addr)

	_, err = HexToAddress("0x1234")
	require.Error(t, err)
}
