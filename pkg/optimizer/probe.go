package optimizer

import (
	"context"
	"errors"
	"math/big"

	"github.com/ava-labs/backrunner/internal/engine"
	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	// SearcherAddress is the synthetic caller used for every probe.
	SearcherAddress = common.HexToAddress("0x3a3f76931108c79658a90f340b4cbec860346b2b")
	// searcherFunding is the balance given to SearcherAddress by override (1 ether).
	searcherFunding = big.NewInt(1_000_000_000_000_000_000)
)

const (
	// MaxQuantity is the largest quantity the 3 byte calldata encoding can carry.
	MaxQuantity = 1<<24 - 1
	// DefaultProbeGas is the gas limit of a single probe call.
	DefaultProbeGas = 4_000_000
)

// ProbeResult is the profit and simulated gas of one probe.
type ProbeResult struct {
	Profit  *big.Int
	GasUsed uint64
}

// Prober evaluates the profit of a single quantity. Implementations must not
// return errors; every failure reduces to zero profit.
type Prober interface {
	Probe(ctx context.Context, q uint64) ProbeResult
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, q uint64) ProbeResult

// Probe calls f(ctx, q).
func (f ProberFunc) Probe(ctx context.Context, q uint64) ProbeResult { return f(ctx, q) }

// Calldata encodes q as the 4 byte probe payload: 0x00 followed by the low
// 3 bytes of q, big endian.
func Calldata(q uint64) []byte {
	return []byte{0x00, byte(q >> 16), byte(q >> 8), byte(q)}
}

// DecodeProfit extracts the profit from a probe call outcome. A successful call
// has no profit. A revert carrying at least 32 bytes reports the profit as a
// two's complement int256 in the first word. Anything else is zero.
func DecodeProfit(res engine.CallResult) *big.Int {
	if !res.Reverted || len(res.ReturnData) < 32 {
		return new(big.Int)
	}
	word := new(uint256.Int).SetBytes32(res.ReturnData[:32])
	if word.Sign() >= 0 {
		return word.ToBig()
	}
	return new(big.Int).Neg(new(uint256.Int).Neg(word).ToBig())
}

// EngineProber probes a target contract through an engine.Executor on top of
// one snapshot.
type EngineProber struct {
	log    *zap.SugaredLogger
	exec   engine.Executor
	snap   *snapshot.Snapshot
	target common.Address
	gas    uint64
}

// NewEngineProber creates an EngineProber. gas is the per probe gas limit;
// 0 means DefaultProbeGas.
func NewEngineProber(
	log *zap.SugaredLogger,
	exec engine.Executor,
	snap *snapshot.Snapshot,
	target common.Address,
	gas uint64,
) (*EngineProber, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if exec == nil {
		return nil, errors.New("invalid executor: must not be nil")
	}
	if snap == nil {
		return nil, errors.New("invalid snapshot: must not be nil")
	}
	if gas == 0 {
		gas = DefaultProbeGas
	}
	return &EngineProber{log: log, exec: exec, snap: snap, target: target, gas: gas}, nil
}

// Probe simulates the target call for q. Simulation errors are logged and
// reported as zero profit.
func (p *EngineProber) Probe(ctx context.Context, q uint64) ProbeResult {
	res, err := p.exec.Call(ctx, p.snap, engine.CallMsg{
		From: SearcherAddress,
		To:   p.target,
		Data: Calldata(q),
		Gas:  p.gas,
		Overrides: map[common.Address]gethclient.OverrideAccount{
			SearcherAddress: {Balance: searcherFunding},
		},
	})
	if err != nil {
		p.log.Debugw("probe failed",
			"target", p.target,
			"quantity", q,
			"error", err,
		)
		return ProbeResult{Profit: new(big.Int)}
	}
	return ProbeResult{Profit: DecodeProfit(res), GasUsed: res.GasUsed}
}
