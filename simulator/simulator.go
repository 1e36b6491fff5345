package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/forkarb/revert"
)

// Backend is the subset of a node client the simulator needs.
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
}

// CallRequest describes a call to dry-run.
type CallRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
	// BlockNumber runs the call against historical state. Gas estimation is
	// skipped since nodes only estimate against the latest state.
	BlockNumber *big.Int
}

// SimulationResult represents the result of a call simulation
type SimulationResult struct {
	Success      bool
	GasUsed      uint64
	ReturnData   []byte
	RevertReason string
	// Err is the node error of a reverted call, kept intact for revert.Expect.
	Err error
}

// Simulator handles call simulation
type Simulator struct {
	client Backend
}

// NewSimulator creates a new call simulator
func NewSimulator(client Backend) *Simulator {
	return &Simulator{
		client: client,
	}
}

// Simulate estimates gas for and executes req without changing state. A
// revert is reported in the result; any other failure is returned as error.
func (s *Simulator) Simulate(ctx context.Context, req CallRequest) (*SimulationResult, error) {
	to := req.To
	msg := ethereum.CallMsg{
		From:  req.From,
		To:    &to,
		Gas:   req.Gas,
		Value: req.Value,
		Data:  req.Data,
	}

	var gasUsed uint64
	if req.BlockNumber == nil {
		estimate, err := s.client.EstimateGas(ctx, msg)
		if err != nil {
			return reverted(err)
		}
		gasUsed = estimate
	}

	output, err := s.client.CallContract(ctx, msg, req.BlockNumber)
	if err != nil {
		res, rerr := reverted(err)
		if res != nil {
			res.GasUsed = gasUsed
		}
		return res, rerr
	}

	return &SimulationResult{
		Success:    true,
		GasUsed:    gasUsed,
		ReturnData: output,
	}, nil
}

func reverted(err error) (*SimulationResult, error) {
	reason, ok := revert.Reason(err)
	if !ok {
		return nil, fmt.Errorf("failed to simulate call: %w", err)
	}
	return &SimulationResult{
		Success:      false,
		RevertReason: reason,
		Err:          err,
	}, nil
}
