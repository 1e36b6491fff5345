package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/forkarb/dex"
)

// Well-known mainnet addresses.
var (
	WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	DAIAddress  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	WETHDAIPair = common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")
)

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token1",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// Pair is a read-only Uniswap V2 pair binding.
type Pair struct {
	contract *bind.BoundContract
	address  common.Address
}

var _ dex.PairReader = (*Pair)(nil)

// NewPair binds the pair at address.
func NewPair(address common.Address, caller bind.ContractCaller) (*Pair, error) {
	parsedABI, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}

	return &Pair{
		contract: bind.NewBoundContract(address, parsedABI, caller, nil, nil),
		address:  address,
	}, nil
}

func (p *Pair) Address() common.Address { return p.address }

// GetReserves returns the reserves of the pair at block
func (p *Pair) GetReserves(ctx context.Context, block *big.Int) (*dex.Reserves, error) {
	var out []interface{}
	err := p.contract.Call(&bind.CallOpts{Context: ctx, BlockNumber: block}, &out, "getReserves")
	if err != nil {
		return nil, fmt.Errorf("failed to get reserves: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("unexpected getReserves output length %d", len(out))
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok := out[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse reserve1")
	}
	timestamp, ok := out[2].(uint32)
	if !ok {
		return nil, fmt.Errorf("failed to parse blockTimestampLast")
	}

	return &dex.Reserves{
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: timestamp,
	}, nil
}

// Token0 returns the address of token0
func (p *Pair) Token0(ctx context.Context, block *big.Int) (common.Address, error) {
	return p.token(ctx, block, "token0")
}

// Token1 returns the address of token1
func (p *Pair) Token1(ctx context.Context, block *big.Int) (common.Address, error) {
	return p.token(ctx, block, "token1")
}

func (p *Pair) token(ctx context.Context, block *big.Int, method string) (common.Address, error) {
	var out []interface{}
	err := p.contract.Call(&bind.CallOpts{Context: ctx, BlockNumber: block}, &out, method)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get %s: %w", method, err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("unexpected %s output length %d", method, len(out))
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse %s address", method)
	}

	return addr, nil
}

// Snapshot reads tokens and reserves at block.
func (p *Pair) Snapshot(ctx context.Context, block *big.Int) (*dex.PairSnapshot, error) {
	token0, err := p.Token0(ctx, block)
	if err != nil {
		return nil, err
	}
	token1, err := p.Token1(ctx, block)
	if err != nil {
		return nil, err
	}
	reserves, err := p.GetReserves(ctx, block)
	if err != nil {
		return nil, err
	}

	return &dex.PairSnapshot{
		Pair:     p.address,
		Token0:   token0,
		Token1:   token1,
		Reserves: *reserves,
		Block:    block,
	}, nil
}
