package geth

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/ava-labs/backrunner/internal/engine"
	"github.com/ava-labs/backrunner/pkg/metrics"
	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

const traceCallMethod = "debug_traceCall"

// Client simulates against a node exposing the debug namespace.
// Every request is a debug_traceCall on the base block with the snapshot as state overrides.
type Client struct {
	rpc      *rpc.Client
	blockTag string
	metrics  *metrics.Metrics // nil if metrics disabled
}

var _ engine.Executor = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBlockTag sets the base block simulations run on. Defaults to "latest".
func WithBlockTag(tag string) Option {
	return func(c *Client) {
		c.blockTag = tag
	}
}

// New dials url and creates a new Client.
func New(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial execution rpc: %w", err)
	}
	return NewWithRPC(c, opts...), nil
}

// NewWithRPC creates a Client on top of an existing rpc connection.
func NewWithRPC(c *rpc.Client, opts ...Option) *Client {
	client := &Client{rpc: c, blockTag: "latest"}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	c.rpc.Close()
}

type callArgs struct {
	From       common.Address    `json:"from"`
	To         *common.Address   `json:"to,omitempty"`
	Gas        hexutil.Uint64    `json:"gas"`
	Value      *hexutil.Big      `json:"value,omitempty"`
	Input      hexutil.Bytes     `json:"input"`
	AccessList *types.AccessList `json:"accessList,omitempty"`
}

type traceConfig struct {
	Tracer         string                                        `json:"tracer"`
	TracerConfig   any                                           `json:"tracerConfig,omitempty"`
	StateOverrides map[common.Address]gethclient.OverrideAccount `json:"stateOverrides,omitempty"`
}

type callFrame struct {
	GasUsed hexutil.Uint64 `json:"gasUsed"`
	Output  hexutil.Bytes  `json:"output"`
	Error   string         `json:"error,omitempty"`
}

type prestateAccount struct {
	Balance *hexutil.Big                `json:"balance,omitempty"`
	Nonce   *uint64                     `json:"nonce,omitempty"`
	Code    hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
}

type prestateDiff struct {
	Pre  map[common.Address]prestateAccount `json:"pre"`
	Post map[common.Address]prestateAccount `json:"post"`
}

type muxResult struct {
	Call     callFrame    `json:"callTracer"`
	Prestate prestateDiff `json:"prestateTracer"`
}

// ExecuteTx simulates tx with a mux of the call tracer (status, gas) and the
// prestate tracer in diff mode (post-state).
func (c *Client) ExecuteTx(
	ctx context.Context,
	snap *snapshot.Snapshot,
	tx *types.Transaction,
	from common.Address,
) (engine.TxResult, error) {
	args := callArgs{
		From:  from,
		To:    tx.To(),
		Gas:   hexutil.Uint64(tx.Gas()),
		Value: (*hexutil.Big)(tx.Value()),
		Input: tx.Data(),
	}
	if al := tx.AccessList(); len(al) > 0 {
		args.AccessList = &al
	}
	cfg := traceConfig{
		Tracer: "muxTracer",
		TracerConfig: map[string]any{
			"callTracer":     map[string]any{},
			"prestateTracer": map[string]any{"diffMode": true},
		},
		StateOverrides: snap.Overrides(),
	}

	var res muxResult
	if err := c.traceCall(ctx, &res, args, cfg); err != nil {
		return engine.TxResult{}, fmt.Errorf("execute tx %s: %w", tx.Hash(), err)
	}
	if res.Call.Error != "" {
		return engine.TxResult{GasUsed: uint64(res.Call.GasUsed), Reverted: true}, nil
	}
	return engine.TxResult{
		Diff:    postState(res.Prestate),
		GasUsed: uint64(res.Call.GasUsed),
	}, nil
}

// Call simulates msg with the call tracer so revert data is returned rather
// than surfaced as an RPC error.
func (c *Client) Call(ctx context.Context, snap *snapshot.Snapshot, msg engine.CallMsg) (engine.CallResult, error) {
	to := msg.To
	args := callArgs{
		From:  msg.From,
		To:    &to,
		Gas:   hexutil.Uint64(msg.Gas),
		Input: msg.Data,
	}
	if msg.Value != nil {
		args.Value = (*hexutil.Big)(msg.Value)
	}
	cfg := traceConfig{
		Tracer:         "callTracer",
		StateOverrides: mergeOverrides(snap.Overrides(), msg.Overrides),
	}

	var frame callFrame
	if err := c.traceCall(ctx, &frame, args, cfg); err != nil {
		return engine.CallResult{}, fmt.Errorf("call %s: %w", msg.To, err)
	}
	return engine.CallResult{
		Reverted:   frame.Error != "",
		ReturnData: frame.Output,
		GasUsed:    uint64(frame.GasUsed),
	}, nil
}

func (c *Client) traceCall(ctx context.Context, result any, args callArgs, cfg traceConfig) error {
	start := time.Now()
	c.metrics.IncRPCInFlight()
	defer c.metrics.DecRPCInFlight()

	err := c.rpc.CallContext(ctx, result, traceCallMethod, args, c.blockTag, cfg)
	c.metrics.RecordRPCCall(traceCallMethod, err, time.Since(start).Seconds())
	return err
}

// mergeOverrides layers extra on top of base. Storage diffs are merged per slot.
func mergeOverrides(
	base, extra map[common.Address]gethclient.OverrideAccount,
) map[common.Address]gethclient.OverrideAccount {
	if len(extra) == 0 {
		return base
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[common.Address]gethclient.OverrideAccount, len(extra))
	}
	for addr, e := range extra {
		o, ok := out[addr]
		if !ok {
			out[addr] = e
			continue
		}
		if e.Balance != nil {
			o.Balance = e.Balance
		}
		if e.Nonce != 0 {
			o.Nonce = e.Nonce
		}
		if e.Code != nil {
			o.Code = e.Code
		}
		if len(e.StateDiff) > 0 {
			diff := maps.Clone(o.StateDiff)
			if diff == nil {
				diff = make(map[common.Hash]common.Hash, len(e.StateDiff))
			}
			maps.Copy(diff, e.StateDiff)
			o.StateDiff = diff
		}
		out[addr] = o
	}
	return out
}

// postState converts a prestate diff into a StateDiff. Slots present in pre
// but missing from post were cleared.
func postState(d prestateDiff) snapshot.StateDiff {
	out := make(snapshot.StateDiff, len(d.Post))
	for addr, post := range d.Post {
		var ad snapshot.AccountDiff
		if post.Balance != nil {
			ad.Balance = uint256.MustFromBig(post.Balance.ToInt())
		}
		if post.Nonce != nil {
			n := *post.Nonce
			ad.Nonce = &n
		}
		if post.Code != nil {
			ad.Code = post.Code
		}
		if len(post.Storage) > 0 {
			ad.Storage = maps.Clone(post.Storage)
		}
		out[addr] = ad
	}
	for addr, pre := range d.Pre {
		post := d.Post[addr]
		for slot := range pre.Storage {
			if _, ok := post.Storage[slot]; ok {
				continue
			}
			ad := out[addr]
			if ad.Storage == nil {
				ad.Storage = make(map[common.Hash]common.Hash)
			}
			ad.Storage[slot] = common.Hash{}
			out[addr] = ad
		}
	}
	return out
}
