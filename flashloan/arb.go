package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Arb is an ABI-bound handle to a deployed FlashLoanArb.
type Arb struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

var _ TradeExecutor = (*Arb)(nil)

// NewArb binds the contract at address. The ABI must contain executeTrade.
func NewArb(address common.Address, contractABI abi.ABI, backend bind.ContractBackend) (*Arb, error) {
	if _, ok := contractABI.Methods[methodExecuteTrade]; !ok {
		return nil, fmt.Errorf("abi has no %s method", methodExecuteTrade)
	}
	return &Arb{
		address:  address,
		abi:      contractABI,
		contract: bind.NewBoundContract(address, contractABI, backend, backend, backend),
	}, nil
}

// NewArbWithDefaultABI binds address using FlashLoanArbABI.
func NewArbWithDefaultABI(address common.Address, backend bind.ContractBackend) (*Arb, error) {
	parsedABI, err := abi.JSON(strings.NewReader(FlashLoanArbABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse FlashLoanArb ABI: %w", err)
	}
	return NewArb(address, parsedABI, backend)
}

func (a *Arb) Address() common.Address { return a.address }

// PackExecuteTrade returns the calldata of executeTrade(pair, amount).
func (a *Arb) PackExecuteTrade(params TradeParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	data, err := a.abi.Pack(methodExecuteTrade, params.Pair, params.BorrowAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", methodExecuteTrade, err)
	}
	return data, nil
}

// CallExecuteTrade runs executeTrade through eth_call. The returned error is
// the node's error untouched so revert data stays reachable.
func (a *Arb) CallExecuteTrade(ctx context.Context, from common.Address, params TradeParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	var out []interface{}
	return a.contract.Call(&bind.CallOpts{Context: ctx, From: from}, &out, methodExecuteTrade, params.Pair, params.BorrowAmount)
}

// ExecuteTrade sends executeTrade as a transaction. A revert during gas
// estimation is returned as the error.
func (a *Arb) ExecuteTrade(opts *bind.TransactOpts, params TradeParams) (*types.Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return a.contract.Transact(opts, methodExecuteTrade, params.Pair, params.BorrowAmount)
}

// UnpackExecuteTrade decodes executeTrade calldata back into its arguments.
func (a *Arb) UnpackExecuteTrade(data []byte) (TradeParams, error) {
	if len(data) < 4 {
		return TradeParams{}, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := a.abi.MethodById(data[:4])
	if err != nil {
		return TradeParams{}, err
	}
	if method.Name != methodExecuteTrade {
		return TradeParams{}, fmt.Errorf("calldata is for %s, not %s", method.Name, methodExecuteTrade)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return TradeParams{}, fmt.Errorf("failed to unpack %s: %w", methodExecuteTrade, err)
	}
	if len(args) != 2 {
		return TradeParams{}, fmt.Errorf("unexpected %s argument count %d", methodExecuteTrade, len(args))
	}

	pair, ok := args[0].(common.Address)
	if !ok {
		return TradeParams{}, fmt.Errorf("failed to parse pair address")
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return TradeParams{}, fmt.Errorf("failed to parse borrow amount")
	}
	return TradeParams{Pair: pair, BorrowAmount: amount}, nil
}
