// Package harness runs scenarios against a freshly forked chain: it owns the
// node, the client connection and the deployer for one test session.
package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/forkarb/config"
	"github.com/michaelpento.lv/forkarb/contracts"
	"github.com/michaelpento.lv/forkarb/fork"
	"github.com/michaelpento.lv/forkarb/scenario"
	"github.com/michaelpento.lv/forkarb/utils/metrics"
	"go.uber.org/zap"
)

const artifactCacheSize = 16

var (
	// ErrTimeout is returned when the session exceeds the configured test
	// timeout.
	ErrTimeout = errors.New("test timeout exceeded")
	// ErrNotSetUp is returned by Run before Setup succeeded.
	ErrNotSetUp = errors.New("harness is not set up")
)

// Harness is one test session against a forked chain.
type Harness struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.HarnessMetrics
	cache   *contracts.Cache

	node   *fork.Node
	client *ethclient.Client
	runner *scenario.Runner
}

// New creates a harness for cfg. Nothing is started until Setup.
func New(cfg *config.Config, logger *zap.Logger) (*Harness, error) {
	cache, err := contracts.NewCache(artifactCacheSize)
	if err != nil {
		return nil, err
	}
	return &Harness{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewHarnessMetrics("forkarb"),
		cache:   cache,
	}, nil
}

func (h *Harness) Metrics() *metrics.HarnessMetrics { return h.metrics }

// Node returns the fork node, nil before Setup.
func (h *Harness) Node() *fork.Node { return h.node }

// Setup loads the contract artifact, brings up the forked node and prepares
// the deployer. The artifact is checked first so a missing build fails
// before any process is spawned.
func (h *Harness) Setup(ctx context.Context) error {
	if h.runner != nil {
		return nil
	}

	art, err := h.cache.Load(h.cfg.ArtifactPath)
	if err != nil {
		return fmt.Errorf("failed to load contract artifact: %w", err)
	}
	if err := art.CheckCompiler(h.cfg.Solidity.Version); err != nil {
		return err
	}
	key, err := contracts.ParseKey(h.cfg.Deployer.PrivateKey)
	if err != nil {
		return err
	}

	h.logger.Info("Setting up fork",
		zap.String("fork", h.cfg.Fork.Fingerprint()),
		zap.Uint64("block", h.cfg.Fork.BlockNumber),
		zap.Uint64("chain_id", h.cfg.Fork.ChainID),
		zap.Bool("attached", h.cfg.Node.ExternalURL != ""))
	if h.cfg.Fork.Enabled && h.cfg.Fork.URL == "" {
		h.logger.Warn("Fork URL is empty, the node will fail to fetch mainnet state",
			zap.String("env", config.EnvMainnetRPCURL))
	}

	node := fork.NewNode(h.cfg.Fork, h.cfg.Node, h.logger).WithMetrics(h.metrics)
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to start fork node: %w", err)
	}

	client, _, err := node.Dial(ctx)
	if err != nil {
		_ = node.Stop()
		return err
	}

	deployer, err := contracts.NewDeployer(ctx, client, key, h.logger)
	if err != nil {
		client.Close()
		_ = node.Stop()
		return err
	}
	deployer.WithMetrics(h.metrics)
	h.logger.Info("Deployer ready",
		zap.String("from", deployer.From().Hex()),
		zap.String("chain_id", deployer.ChainID().String()))

	h.node = node
	h.client = client

	h.runner = scenario.NewRunner(client, deployer, art, h.logger).WithMetrics(h.metrics)
	return nil
}

// Run executes scenarios in order. A cancelled ctx stops the run between
// scenarios and is returned with the results gathered so far.
func (h *Harness) Run(ctx context.Context, scenarios ...scenario.Scenario) ([]*scenario.Result, error) {
	if h.runner == nil {
		return nil, ErrNotSetUp
	}

	results := make([]*scenario.Result, 0, len(scenarios))
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("run aborted: %w", err)
		}
		results = append(results, h.runner.Run(ctx, sc))
	}
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("run aborted: %w", err)
	}
	return results, nil
}

// RunWithTimeout sets up the session and runs scenarios, all bounded by the
// configured test timeout.
func (h *Harness) RunWithTimeout(ctx context.Context, scenarios ...scenario.Scenario) ([]*scenario.Result, error) {
	timeout := h.cfg.Test.Timeout.Std()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := h.runSession(ctx, scenarios)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return results, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
	}
	return results, err
}

func (h *Harness) runSession(ctx context.Context, scenarios []scenario.Scenario) ([]*scenario.Result, error) {
	if err := h.Setup(ctx); err != nil {
		return nil, err
	}
	return h.Run(ctx, scenarios...)
}

// Close disconnects and stops the node. The forked state is discarded.
func (h *Harness) Close() error {
	if h.client != nil {
		h.client.Close()
		h.client = nil
	}
	h.runner = nil
	if h.node == nil {
		return nil
	}
	err := h.node.Stop()
	h.node = nil
	return err
}

// Passed reports whether every result passed.
func Passed(results []*scenario.Result) bool {
	for _, res := range results {
		if !res.Passed {
			return false
		}
	}
	return true
}
