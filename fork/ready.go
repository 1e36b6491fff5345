package fork

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/michaelpento.lv/forkarb/config"
	"golang.org/x/time/rate"
)

// ReadyPollInterval is the spacing between readiness probes.
const ReadyPollInterval = 250 * time.Millisecond

// ErrChainIDMismatch means the node serves a different chain than configured.
var ErrChainIDMismatch = errors.New("chain id mismatch")

// WaitReady polls url until it answers eth_chainId with chainID and its head
// is at least minBlock. Only ctx bounds the wait. Errors carry url with its
// credentials masked.
func WaitReady(ctx context.Context, url string, chainID, minBlock uint64) error {
	safe := config.RedactURL(url)
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %s", safe, strings.ReplaceAll(err.Error(), url, safe))
	}
	defer client.Close()

	limiter := rate.NewLimiter(rate.Every(ReadyPollInterval), 1)
	var lastErr error
	for {
		if err := limiter.Wait(ctx); err != nil {
			// The limiter gives up early when the next probe would land past
			// the deadline.
			<-ctx.Done()
			if lastErr != nil {
				return fmt.Errorf("node at %s not ready: %w (last error: %s)", safe, context.Cause(ctx),
					strings.ReplaceAll(lastErr.Error(), url, safe))
			}
			return fmt.Errorf("node at %s not ready: %w", safe, context.Cause(ctx))
		}

		ready, err := probe(ctx, client, chainID, minBlock)
		if errors.Is(err, ErrChainIDMismatch) {
			return err
		}
		if ready {
			return nil
		}
		lastErr = err
	}
}

func probe(ctx context.Context, client *rpc.Client, chainID, minBlock uint64) (bool, error) {
	var id hexutil.Big
	if err := client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return false, err
	}
	if got := id.ToInt(); !got.IsUint64() || got.Uint64() != chainID {
		return false, fmt.Errorf("%w: node serves %s, want %d", ErrChainIDMismatch, got, chainID)
	}
	if minBlock == 0 {
		return true, nil
	}

	var head hexutil.Uint64
	if err := client.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return false, err
	}
	if uint64(head) < minBlock {
		return false, fmt.Errorf("head %d below fork block %d", uint64(head), minBlock)
	}
	return true, nil
}
