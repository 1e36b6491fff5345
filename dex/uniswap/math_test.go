package uniswap

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestGetAmountOut(t *testing.T) {
	amountOut := GetAmountOut(big.NewInt(1_000_000), big.NewInt(10_000_000), big.NewInt(5_000_000_000))

	// 997e6*5e9 / (1e10 + 997e6), rounded down
	assert.Equal(t, int64(453305446), amountOut.Int64())
}

func TestGetAmountOutZeroInputs(t *testing.T) {
	assert.Equal(t, 0, GetAmountOut(big.NewInt(0), ether(1), ether(1)).Sign())
	assert.Equal(t, 0, GetAmountOut(ether(1), big.NewInt(0), ether(1)).Sign())
	assert.Equal(t, 0, GetAmountOut(ether(1), ether(1), big.NewInt(-1)).Sign())
}

func TestGetAmountInInvertsGetAmountOut(t *testing.T) {
	reserveIn, reserveOut := ether(9200), ether(21_500_000)
	want := ether(10)

	in := GetAmountIn(GetAmountOut(want, reserveIn, reserveOut), reserveIn, reserveOut)
	require.NotNil(t, in)

	// GetAmountIn returns the smallest input yielding the quoted output.
	assert.True(t, in.Cmp(want) <= 0, "in %s want %s", in, want)
	diff := new(big.Int).Sub(want, in)
	assert.True(t, diff.Cmp(big.NewInt(1e6)) < 0, "diff %s", diff)
}

func TestGetAmountInExceedsReserve(t *testing.T) {
	assert.Nil(t, GetAmountIn(ether(10), ether(10), ether(10)))
}

func TestRoundTripLosesFees(t *testing.T) {
	reserveWETH, reserveDAI := ether(9200), ether(21_500_000)
	borrow := ether(10)

	back := RoundTrip(borrow, reserveWETH, reserveDAI)
	assert.True(t, back.Sign() > 0)
	assert.True(t, back.Cmp(borrow) < 0, "round trip returned %s for %s", back, borrow)

	// Two 0.3% fees cost at least 0.59%.
	minLoss := new(big.Int).Div(new(big.Int).Mul(borrow, big.NewInt(59)), big.NewInt(10000))
	assert.True(t, new(big.Int).Sub(borrow, back).Cmp(minLoss) >= 0)
}

func TestReservesFor(t *testing.T) {
	r0, r1 := big.NewInt(1), big.NewInt(2)

	in, out := ReservesFor(DAIAddress, DAIAddress, r0, r1)
	assert.Equal(t, r0, in)
	assert.Equal(t, r1, out)

	in, out = ReservesFor(WETHAddress, DAIAddress, r0, r1)
	assert.Equal(t, r1, in)
	assert.Equal(t, r0, out)
}
