package contracts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/forkarb/utils/metrics"
	"go.uber.org/zap"
)

// Backend is what deployment needs from a node connection. Both
// *ethclient.Client and the simulated backend client satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Deployment is a contract created on the fork.
type Deployment struct {
	Name     string
	Address  common.Address
	TxHash   common.Hash
	GasUsed  uint64
	Contract *bind.BoundContract
}

// Deployer signs creation transactions with a single key.
type Deployer struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *zap.Logger
	metrics *metrics.HarnessMetrics
}

// NewDeployer binds key to the chain the backend is connected to.
func NewDeployer(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, logger *zap.Logger) (*Deployer, error) {
	if key == nil {
		return nil, errors.New("deployer key is required")
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return &Deployer{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  logger,
	}, nil
}

// ParseKey decodes a hex private key with or without 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// WithMetrics records deployments on m.
func (d *Deployer) WithMetrics(m *metrics.HarnessMetrics) *Deployer {
	d.metrics = m
	return d
}

func (d *Deployer) From() common.Address { return d.from }

func (d *Deployer) ChainID() *big.Int { return new(big.Int).Set(d.chainID) }

// TransactOpts returns fresh signing options bound to ctx.
func (d *Deployer) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(d.key, d.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Deploy sends the creation transaction for art and waits until the code is
// on chain.
func (d *Deployer) Deploy(ctx context.Context, art *Artifact, args ...interface{}) (*Deployment, error) {
	opts, err := d.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}

	address, tx, contract, err := bind.DeployContract(opts, art.ABI, art.Bytecode, d.backend, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", art.ContractName, err)
	}

	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for %s deployment: %w", art.ContractName, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("deployment of %s reverted in tx %s", art.ContractName, tx.Hash().Hex())
	}

	code, err := d.backend.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployed code: %w", err)
	}
	if len(code) == 0 {
		return nil, bind.ErrNoCodeAfterDeploy
	}

	if d.metrics != nil {
		d.metrics.Deployments.Inc()
		d.metrics.DeployGasUsed.Observe(float64(receipt.GasUsed))
	}
	d.logger.Info("Contract deployed",
		zap.String("contract", art.ContractName),
		zap.String("address", address.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("gas_used", receipt.GasUsed))

	return &Deployment{
		Name:     art.ContractName,
		Address:  address,
		TxHash:   tx.Hash(),
		GasUsed:  receipt.GasUsed,
		Contract: contract,
	}, nil
}
