package uniswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
)

// GetAmountOut calculates the output amount for a given input amount
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, feeDenominator), amountInWithFee)

	return new(big.Int).Div(numerator, denominator)
}

// GetAmountIn calculates the input amount for a given output amount. It
// returns nil when amountOut cannot be taken from the pool.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) *big.Int {
	if amountOut.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil
	}

	numerator := new(big.Int).Mul(new(big.Int).Mul(reserveIn, amountOut), feeDenominator)
	denominator := new(big.Int).Mul(new(big.Int).Sub(reserveOut, amountOut), feeNumerator)

	amountIn := new(big.Int).Div(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1))
}

// RoundTrip quotes swapping amount of A into B and straight back on the same
// pair, with reserves updated by the first leg. The result is always below
// amount because each leg pays the 0.3% fee.
func RoundTrip(amount, reserveA, reserveB *big.Int) *big.Int {
	out := GetAmountOut(amount, reserveA, reserveB)
	if out.Sign() == 0 {
		return out
	}
	newReserveA := new(big.Int).Add(reserveA, amount)
	newReserveB := new(big.Int).Sub(reserveB, out)
	return GetAmountOut(out, newReserveB, newReserveA)
}

// ReservesFor orders the pair's reserves as (in, out) for tokenIn.
func ReservesFor(tokenIn, token0 common.Address, reserve0, reserve1 *big.Int) (*big.Int, *big.Int) {
	if tokenIn == token0 {
		return reserve0, reserve1
	}
	return reserve1, reserve0
}
