package price

import (
	"math"
	"math/big"
)

// DefaultFeeRate is the AMM v4 trade fee (25 bps).
const DefaultFeeRate = 0.0025

const feeDenominator = 10_000

// GetOutAmount is the constant-product output for amountIn after the trade fee:
//
//	after = amountIn * (10000 - fee*10000) / 10000
//	out   = outPool * after / (inPool + after)
//
// Intermediate products use big integers so large reserves cannot overflow.
func GetOutAmount(inPool, outPool, amountIn uint64, feeRate float64) uint64 {
	feeBps := int64(math.Round(feeRate * feeDenominator))
	if feeBps < 0 {
		feeBps = 0
	}
	if feeBps > feeDenominator {
		feeBps = feeDenominator
	}

	after := new(big.Int).SetUint64(amountIn)
	after.Mul(after, big.NewInt(feeDenominator-feeBps))
	after.Quo(after, big.NewInt(feeDenominator))

	den := new(big.Int).SetUint64(inPool)
	den.Add(den, after)
	if den.Sign() == 0 {
		return 0
	}

	out := new(big.Int).SetUint64(outPool)
	out.Mul(out, after)
	out.Quo(out, den)
	if !out.IsUint64() {
		return math.MaxUint64
	}
	return out.Uint64()
}

// MinimumOut applies a slippage tolerance in basis points to an expected output.
func MinimumOut(expected uint64, slippageBps uint64) uint64 {
	if slippageBps >= feeDenominator {
		return 0
	}
	v := new(big.Int).SetUint64(expected)
	v.Mul(v, new(big.Int).SetUint64(feeDenominator-slippageBps))
	v.Quo(v, big.NewInt(feeDenominator))
	return v.Uint64()
}
