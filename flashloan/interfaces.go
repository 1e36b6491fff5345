package flashloan

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TradeExecutor invokes executeTrade on a deployed arbitrage contract.
type TradeExecutor interface {
	Address() common.Address
	PackExecuteTrade(params TradeParams) ([]byte, error)
	UnpackExecuteTrade(data []byte) (TradeParams, error)
	CallExecuteTrade(ctx context.Context, from common.Address, params TradeParams) error
	ExecuteTrade(opts *bind.TransactOpts, params TradeParams) (*types.Transaction, error)
}
