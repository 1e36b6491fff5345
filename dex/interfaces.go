package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PairReader reads the state of a liquidity pair.
type PairReader interface {
	// Address returns the pair contract address
	Address() common.Address

	// Snapshot reads tokens and reserves at block (nil for latest)
	Snapshot(ctx context.Context, block *big.Int) (*PairSnapshot, error)
}

// Reserves represents token pair reserves
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// PairSnapshot is the state of a pair at one block.
type PairSnapshot struct {
	Pair     common.Address
	Token0   common.Address
	Token1   common.Address
	Reserves Reserves
	Block    *big.Int
}
