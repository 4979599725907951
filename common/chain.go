package common

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// Address is the 20-byte account/contract address type used throughout the
// pipeline, aliased from go-ethereum so callers never need to import it
// directly just to name a ChainConfig field.
type Address = ethCommon.Address

// ChainConfig is the set of per-chain constants an orchestrator needs to
// build, verify and pack matches, analogous to the teacher's
// RollupConstants for its own contract deployment.
type ChainConfig struct {
	ChainID              *big.Int
	ExchangeAddress      Address
	WrappedNativeAddress Address

	// MaxGasLimit bounds any single bundle transaction's gas limit
	// (spec.md §6 MAX_GAS_LIMIT).
	MaxGasLimit uint64
	// GasHeadroomNum/GasHeadroomDen scale an estimateGas result up
	// before it becomes a transaction's gas limit. Default 12/10 (1.2x).
	GasHeadroomNum uint64
	GasHeadroomDen uint64
	// PriceHeadroomNum/PriceHeadroomDen scale currentPrice up to get a
	// buyer's expectedCost. Default 11/10 (1.1x).
	PriceHeadroomNum uint64
	PriceHeadroomDen uint64
	// MinBundleSize is the minimum number of valid items required before
	// the packer will build a transaction at all.
	MinBundleSize int
}

// ApplyGasHeadroom scales an estimateGas result by GasHeadroomNum/Den,
// rounding down, per spec.md §4.5.
func (cc ChainConfig) ApplyGasHeadroom(estimate uint64) uint64 {
	num, den := cc.GasHeadroomNum, cc.GasHeadroomDen
	if den == 0 {
		num, den = 12, 10
	}
	return estimate * num / den
}

// ExpectedCost scales currentPrice by PriceHeadroomNum/Den, truncating, per
// spec.md §4.4/§6's integer formula currentPrice * 11 / 10: the buyer's
// allowance/balance must cover this, not just the bare currentPrice, to
// tolerate price drift between verification and on-chain execution.
func (cc ChainConfig) ExpectedCost(currentPrice *big.Int) *big.Int {
	num, den := cc.PriceHeadroomNum, cc.PriceHeadroomDen
	if den == 0 {
		num, den = 11, 10
	}
	cost := new(big.Int).Mul(currentPrice, big.NewInt(int64(num)))
	return cost.Quo(cost, big.NewInt(int64(den)))
}
