package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/forkarb/contracts"
	"github.com/michaelpento.lv/forkarb/dex"
	"github.com/michaelpento.lv/forkarb/dex/uniswap"
	"github.com/michaelpento.lv/forkarb/flashloan"
	"github.com/michaelpento.lv/forkarb/gas"
	"github.com/michaelpento.lv/forkarb/revert"
	"github.com/michaelpento.lv/forkarb/simulator"
	"github.com/michaelpento.lv/forkarb/utils/math"
	"github.com/michaelpento.lv/forkarb/utils/metrics"
	"go.uber.org/zap"
)

// Deployer creates contracts and signs transactions on the fork.
type Deployer interface {
	Deploy(ctx context.Context, art *contracts.Artifact, args ...interface{}) (*contracts.Deployment, error)
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
	From() common.Address
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario string
	Contract common.Address
	// Reason is the revert reason observed, if the invocation reverted.
	Reason   string
	Reverted bool
	Passed   bool
	GasUsed  uint64
	// GasCost is GasUsed priced at the fork's current fees, in wei.
	GasCost *big.Int
	// Err explains a failed or aborted scenario.
	Err      error
	Duration time.Duration
}

// Outcome maps the result onto the metrics outcome label.
func (r *Result) Outcome() string {
	switch {
	case r.Passed:
		return metrics.OutcomePassed
	case errors.Is(r.Err, revert.ErrNotReverted), errors.Is(r.Err, errSetup):
		return metrics.OutcomeError
	default:
		return metrics.OutcomeFailed
	}
}

var errSetup = errors.New("scenario setup failed")

// Runner deploys the artifact once and runs scenarios against it in order.
type Runner struct {
	backend  contracts.Backend
	deployer Deployer
	artifact *contracts.Artifact
	sim      *simulator.Simulator
	logger   *zap.Logger
	metrics  *metrics.HarnessMetrics

	deployment *contracts.Deployment
	arb        *flashloan.Arb
}

func NewRunner(backend contracts.Backend, deployer Deployer, artifact *contracts.Artifact, logger *zap.Logger) *Runner {
	return &Runner{
		backend:  backend,
		deployer: deployer,
		artifact: artifact,
		sim:      simulator.NewSimulator(backend),
		logger:   logger,
	}
}

// WithMetrics records scenario outcomes on m.
func (r *Runner) WithMetrics(m *metrics.HarnessMetrics) *Runner {
	r.metrics = m
	return r
}

// Deployment returns the contract scenarios run against, nil before the
// first Run.
func (r *Runner) Deployment() *contracts.Deployment { return r.deployment }

// Run executes sc and asserts its expected outcome.
func (r *Runner) Run(ctx context.Context, sc Scenario) *Result {
	start := time.Now()
	res := &Result{Scenario: sc.Name}

	r.run(ctx, sc, res)

	res.Duration = time.Since(start)
	r.record(res)
	return res
}

func (r *Runner) run(ctx context.Context, sc Scenario, res *Result) {
	params, err := sc.Params()
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", errSetup, err)
		return
	}
	if sc.Contract != "" && sc.Contract != r.artifact.ContractName {
		res.Err = fmt.Errorf("%w: scenario targets %s but the artifact is %s", errSetup, sc.Contract, r.artifact.ContractName)
		return
	}

	if err := r.ensureDeployed(ctx); err != nil {
		res.Err = fmt.Errorf("%w: %w", errSetup, err)
		return
	}
	res.Contract = r.arb.Address()

	r.logPair(ctx, params, sc.decimals())

	var inv invocation
	switch sc.Mode {
	case ModeSend:
		inv, err = r.send(ctx, sc, params)
	default:
		inv, err = r.call(ctx, params)
	}
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", errSetup, err)
		return
	}
	res.GasUsed = inv.gasUsed
	res.GasCost = r.gasCost(ctx, inv.gasUsed)
	callErr := inv.err

	if reason, ok := revert.Reason(callErr); ok {
		res.Reason = reason
		res.Reverted = true
		if r.metrics != nil {
			r.metrics.RevertsObserved.WithLabelValues(reason).Inc()
		}
	}

	if sc.ExpectRevert == "" {
		if callErr != nil && !res.Reverted {
			res.Err = fmt.Errorf("%w: %w", revert.ErrNotReverted, callErr)
			return
		}
		if callErr != nil {
			res.Err = fmt.Errorf("expected success: %w", callErr)
			return
		}
		res.Passed = true
		return
	}

	if err := revert.Expect(callErr, sc.ExpectRevert); err != nil {
		res.Err = err
		return
	}
	res.Passed = true
}

func (r *Runner) ensureDeployed(ctx context.Context) error {
	if r.arb != nil {
		return nil
	}

	deployment, err := r.deployer.Deploy(ctx, r.artifact)
	if err != nil {
		return err
	}
	arb, err := flashloan.NewArb(deployment.Address, r.artifact.ABI, r.backend)
	if err != nil {
		return err
	}

	r.deployment = deployment
	r.arb = arb
	return nil
}

// invocation is what the node reported for executeTrade.
type invocation struct {
	err     error
	gasUsed uint64
}

// call dry-runs executeTrade.
func (r *Runner) call(ctx context.Context, params flashloan.TradeParams) (invocation, error) {
	data, err := r.arb.PackExecuteTrade(params)
	if err != nil {
		return invocation{}, err
	}

	result, err := r.sim.Simulate(ctx, simulator.CallRequest{
		From: r.deployer.From(),
		To:   r.arb.Address(),
		Data: data,
	})
	if err != nil {
		// Not a revert; revert.Expect reports it as such.
		return invocation{err: err}, nil
	}
	if !result.Success {
		return invocation{err: result.Err, gasUsed: result.GasUsed}, nil
	}
	return invocation{gasUsed: result.GasUsed}, nil
}

// send submits executeTrade as a transaction. A transaction that is mined
// with a failed status is replayed on the parent block to recover its revert
// reason.
func (r *Runner) send(ctx context.Context, sc Scenario, params flashloan.TradeParams) (invocation, error) {
	opts, err := r.deployer.TransactOpts(ctx)
	if err != nil {
		return invocation{}, err
	}
	opts.GasLimit = sc.GasLimit

	tx, err := r.arb.ExecuteTrade(opts, params)
	if err != nil {
		return invocation{err: err}, nil
	}

	receipt, err := bind.WaitMined(ctx, r.backend, tx)
	if err != nil {
		return invocation{}, fmt.Errorf("failed to wait for executeTrade: %w", err)
	}
	r.logger.Info("executeTrade mined",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("status", receipt.Status),
		zap.Uint64("gas_used", receipt.GasUsed))

	if receipt.Status == types.ReceiptStatusSuccessful {
		return invocation{gasUsed: receipt.GasUsed}, nil
	}
	replayErr, err := r.replay(ctx, tx, receipt)
	if err != nil {
		return invocation{}, err
	}
	return invocation{err: replayErr, gasUsed: receipt.GasUsed}, nil
}

// replay re-executes a failed transaction with eth_call on the state it ran
// against and returns the revert it produces.
func (r *Runner) replay(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) (revertErr error, err error) {
	parent := new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	result, err := r.sim.Simulate(ctx, simulator.CallRequest{
		From:        r.deployer.From(),
		To:          *tx.To(),
		Data:        tx.Data(),
		Value:       tx.Value(),
		Gas:         tx.Gas(),
		BlockNumber: parent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replay %s: %w", tx.Hash().Hex(), err)
	}
	if params, err := r.arb.UnpackExecuteTrade(tx.Data()); err == nil {
		r.logger.Debug("Replayed executeTrade",
			zap.String("tx_hash", tx.Hash().Hex()),
			zap.String("pair", params.Pair.Hex()),
			zap.String("borrow_amount", params.BorrowAmount.String()),
			zap.Bool("reverted", !result.Success))
	}
	if result.Success {
		return fmt.Errorf("execution reverted (tx %s did not revert on replay)", tx.Hash().Hex()), nil
	}
	return result.Err, nil
}

// logPair records the pair state the trade runs against. Failures are only
// logged.
func (r *Runner) logPair(ctx context.Context, params flashloan.TradeParams, decimals uint8) {
	pair, err := uniswap.NewPair(params.Pair, r.backend)
	if err != nil {
		r.logger.Warn("Failed to bind pair", zap.Error(err))
		return
	}
	snap, err := pair.Snapshot(ctx, nil)
	if err != nil {
		r.logger.Warn("Failed to read pair state",
			zap.String("pair", params.Pair.Hex()),
			zap.Error(err))
		return
	}
	r.logger.Info("Pair state", pairFields(snap, params.BorrowAmount, decimals)...)
}

// pairFields describes snap and the round trip of borrow through it. The
// borrowed token is taken to be WETH when the pair holds it, token0 otherwise;
// borrow and round_trip are scaled by decimals.
func pairFields(snap *dex.PairSnapshot, borrow *big.Int, decimals uint8) []zap.Field {
	borrowed := snap.Token0
	if snap.Token1 == uniswap.WETHAddress {
		borrowed = snap.Token1
	}
	reserveIn, reserveOut := uniswap.ReservesFor(borrowed, snap.Token0, snap.Reserves.Reserve0, snap.Reserves.Reserve1)
	roundTrip := uniswap.RoundTrip(borrow, reserveIn, reserveOut)

	return []zap.Field{
		zap.String("pair", snap.Pair.Hex()),
		zap.String("token0", snap.Token0.Hex()),
		zap.String("token1", snap.Token1.Hex()),
		zap.String("reserve0", snap.Reserves.Reserve0.String()),
		zap.String("reserve1", snap.Reserves.Reserve1.String()),
		zap.String("borrow_token", borrowed.Hex()),
		zap.String("borrow", math.FormatUnits(borrow, decimals)),
		zap.String("round_trip", math.FormatUnits(roundTrip, decimals)),
	}
}

func (r *Runner) gasCost(ctx context.Context, gasUsed uint64) *big.Int {
	if gasUsed == 0 {
		return nil
	}
	fees, err := gas.Quote(ctx, r.backend)
	if err != nil {
		r.logger.Warn("Failed to quote fees", zap.Error(err))
		return nil
	}
	return fees.Cost(gasUsed)
}

func (r *Runner) record(res *Result) {
	fields := []zap.Field{
		zap.String("scenario", res.Scenario),
		zap.String("contract", res.Contract.Hex()),
		zap.Duration("duration", res.Duration),
	}
	if res.Reverted {
		fields = append(fields, zap.String("revert_reason", res.Reason))
	}
	if res.GasCost != nil {
		fields = append(fields,
			zap.Uint64("gas_used", res.GasUsed),
			zap.String("gas_cost_eth", math.FormatUnits(res.GasCost, math.EtherDecimals)))
	}

	if res.Passed {
		r.logger.Info("Scenario passed", fields...)
	} else {
		r.logger.Error("Scenario failed", append(fields, zap.Error(res.Err))...)
	}

	if r.metrics != nil {
		r.metrics.ScenarioRuns.WithLabelValues(res.Outcome()).Inc()
		r.metrics.ScenarioDuration.Observe(res.Duration.Seconds())
	}
}
