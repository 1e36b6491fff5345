package flashloan

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FlashLoanArbABI is the external surface of the FlashLoanArb contract that
// the harness exercises.
const FlashLoanArbABI = `[{"inputs":[{"internalType":"address","name":"pairAddress","type":"address"},{"internalType":"uint256","name":"borrowAmount","type":"uint256"}],"name":"executeTrade","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const methodExecuteTrade = "executeTrade"

// TradeParams are the arguments of executeTrade.
type TradeParams struct {
	Pair         common.Address // Uniswap V2 pair the loan is borrowed from
	BorrowAmount *big.Int       // amount in the borrowed token's smallest unit
}

func (p TradeParams) Validate() error {
	if p.Pair == (common.Address{}) {
		return errors.New("pair address is required")
	}
	if p.BorrowAmount == nil {
		return errors.New("borrow amount is required")
	}
	if p.BorrowAmount.Sign() < 0 {
		return fmt.Errorf("borrow amount %s is negative", p.BorrowAmount)
	}
	return nil
}
