package uniswap

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairCaller answers pair view calls from fixed state.
type pairCaller struct {
	abi      abi.ABI
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
	blocks   []*big.Int
	err      error
}

func newPairCaller(t *testing.T) *pairCaller {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(pairABIJson))
	require.NoError(t, err)

	reserve0, _ := new(big.Int).SetString("21500000000000000000000000", 10) // DAI
	reserve1, _ := new(big.Int).SetString("9200000000000000000000", 10)     // WETH
	return &pairCaller{
		abi:      parsed,
		token0:   DAIAddress,
		token1:   WETHAddress,
		reserve0: reserve0,
		reserve1: reserve1,
	}
}

func (c *pairCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (c *pairCaller) CallContract(_ context.Context, call ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.blocks = append(c.blocks, block)

	method, err := c.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "token0":
		return method.Outputs.Pack(c.token0)
	case "token1":
		return method.Outputs.Pack(c.token1)
	case "getReserves":
		return method.Outputs.Pack(c.reserve0, c.reserve1, uint32(1707000000))
	}
	return nil, errors.New("unexpected method " + method.Name)
}

func TestPairSnapshot(t *testing.T) {
	caller := newPairCaller(t)
	pair, err := NewPair(WETHDAIPair, caller)
	require.NoError(t, err)

	block := big.NewInt(19200000)
	snap, err := pair.Snapshot(context.Background(), block)
	require.NoError(t, err)

	assert.Equal(t, WETHDAIPair, snap.Pair)
	assert.Equal(t, DAIAddress, snap.Token0)
	assert.Equal(t, WETHAddress, snap.Token1)
	assert.Equal(t, 0, caller.reserve0.Cmp(snap.Reserves.Reserve0))
	assert.Equal(t, 0, caller.reserve1.Cmp(snap.Reserves.Reserve1))
	assert.Equal(t, uint32(1707000000), snap.Reserves.BlockTimestampLast)

	// Every read is pinned to the requested block.
	require.Len(t, caller.blocks, 3)
	for _, b := range caller.blocks {
		assert.Equal(t, block, b)
	}
}

func TestPairSnapshotError(t *testing.T) {
	caller := newPairCaller(t)
	caller.err = errors.New("missing trie node")

	pair, err := NewPair(WETHDAIPair, caller)
	require.NoError(t, err)

	_, err = pair.Snapshot(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token0")
}
