package fork

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/michaelpento.lv/forkarb/config"
)

const codeMethodNotFound = -32601

// ForkingOptions is the "forking" object of anvil_reset and hardhat_reset.
type ForkingOptions struct {
	JSONRPCURL  string `json:"jsonRpcUrl"`
	BlockNumber uint64 `json:"blockNumber"`
}

type ResetOptions struct {
	Forking *ForkingOptions `json:"forking,omitempty"`
}

// Reset returns the node to the fork block of fork, discarding local state.
// Nodes without anvil_reset are reset with hardhat_reset.
func Reset(ctx context.Context, client *rpc.Client, fork config.ForkConfig) error {
	var opts ResetOptions
	if fork.Enabled {
		opts.Forking = &ForkingOptions{
			JSONRPCURL:  fork.URL,
			BlockNumber: fork.BlockNumber,
		}
	}

	err := client.CallContext(ctx, nil, "anvil_reset", opts)
	if isMethodNotFound(err) {
		err = client.CallContext(ctx, nil, "hardhat_reset", opts)
	}
	if err != nil {
		return fmt.Errorf("failed to reset fork node: %w", err)
	}
	return nil
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeMethodNotFound
}
