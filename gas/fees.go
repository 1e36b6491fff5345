package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// FeeReader is the part of a node client fee quoting needs.
type FeeReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Fees is the fee market at the head of the chain.
type Fees struct {
	BaseFee     *big.Int
	PriorityFee *big.Int
}

// Quote reads the head base fee and the suggested priority fee.
func Quote(ctx context.Context, client FeeReader) (*Fees, error) {
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		// Pre-London chain.
		baseFee = new(big.Int)
	}

	priorityFee, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority fee: %w", err)
	}

	return &Fees{
		BaseFee:     new(big.Int).Set(baseFee),
		PriorityFee: priorityFee,
	}, nil
}

// GasPrice is the effective price per gas unit.
func (f *Fees) GasPrice() *big.Int {
	return new(big.Int).Add(f.BaseFee, f.PriorityFee)
}

// Cost calculates the wei cost of gasUsed at the quoted price.
func (f *Fees) Cost(gasUsed uint64) *big.Int {
	return new(big.Int).Mul(f.GasPrice(), new(big.Int).SetUint64(gasUsed))
}
