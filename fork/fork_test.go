package fork

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/michaelpento.lv/forkarb/config"
	"github.com/michaelpento.lv/forkarb/utils/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type ethService struct {
	chainID uint64

	mu   sync.Mutex
	head uint64
}

func (s *ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(s.chainID))
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hexutil.Uint64(s.head)
}

func (s *ethService) setHead(head uint64) {
	s.mu.Lock()
	s.head = head
	s.mu.Unlock()
}

type resetService struct {
	eth *ethService

	mu    sync.Mutex
	calls []ResetOptions
}

func (s *resetService) Reset(opts *ResetOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts == nil {
		opts = &ResetOptions{}
	}
	s.calls = append(s.calls, *opts)
	if opts.Forking != nil && s.eth != nil {
		s.eth.setHead(opts.Forking.BlockNumber)
	}
	return nil
}

func (s *resetService) resets() []ResetOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ResetOptions(nil), s.calls...)
}

type fakeNode struct {
	url   string
	eth   *ethService
	reset *resetService
}

// newFakeNode serves eth_chainId, eth_blockNumber and <namespace>_reset.
func newFakeNode(t *testing.T, chainID, head uint64, namespace string) *fakeNode {
	t.Helper()

	eth := &ethService{chainID: chainID, head: head}
	reset := &resetService{eth: eth}

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", eth))
	if namespace != "" {
		require.NoError(t, server.RegisterName(namespace, reset))
	}
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})

	return &fakeNode{url: httpServer.URL, eth: eth, reset: reset}
}

func testFork() config.ForkConfig {
	return config.ForkConfig{
		URL:         "https://mainnet.example/v2/key",
		BlockNumber: 19200000,
		ChainID:     1,
		Enabled:     true,
	}
}

func TestArgs(t *testing.T) {
	n := NewNode(testFork(), config.NodeConfig{Binary: "anvil", Host: "127.0.0.1", Port: 8545}, zaptest.NewLogger(t))

	assert.Equal(t, []string{
		"--chain-id", "1",
		"--host", "127.0.0.1",
		"--port", "8545",
		"--fork-url", "https://mainnet.example/v2/key",
		"--fork-block-number", "19200000",
	}, n.Args())
	assert.Equal(t, "http://127.0.0.1:8545", n.URL())
	assert.False(t, n.Attached())
}

func TestArgsWithoutFork(t *testing.T) {
	f := testFork()
	f.Enabled = false
	n := NewNode(f, config.NodeConfig{Binary: "anvil", Host: "127.0.0.1", Port: 9545}, zaptest.NewLogger(t))

	assert.NotContains(t, n.Args(), "--fork-url")
	assert.Contains(t, n.Args(), "9545")
}

func TestWaitReady(t *testing.T) {
	node := newFakeNode(t, 1, 19200000, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, WaitReady(ctx, node.url, 1, 19200000))
}

func TestWaitReadyChainIDMismatch(t *testing.T) {
	node := newFakeNode(t, 31337, 0, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := WaitReady(ctx, node.url, 1, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChainIDMismatch))
}

func TestWaitReadyWaitsForForkBlock(t *testing.T) {
	node := newFakeNode(t, 1, 0, "")

	go func() {
		time.Sleep(3 * ReadyPollInterval)
		node.eth.setHead(19200000)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, WaitReady(ctx, node.url, 1, 19200000))
}

func TestWaitReadyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*ReadyPollInterval)
	defer cancel()

	// Nothing listens on port 1.
	err := WaitReady(ctx, "http://127.0.0.1:1", 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "last error")
}

func TestWaitReadyMasksURLKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*ReadyPollInterval)
	defer cancel()

	err := WaitReady(ctx, "http://127.0.0.1:1/v2/SECRETKEY", 1, 0)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRETKEY")
	assert.Contains(t, err.Error(), "http://127.0.0.1:1/redacted")
}

func TestResetAnvil(t *testing.T) {
	node := newFakeNode(t, 1, 0, "anvil")
	client, err := rpc.Dial(node.url)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, Reset(context.Background(), client, testFork()))

	resets := node.reset.resets()
	require.Len(t, resets, 1)
	require.NotNil(t, resets[0].Forking)
	assert.Equal(t, "https://mainnet.example/v2/key", resets[0].Forking.JSONRPCURL)
	assert.Equal(t, uint64(19200000), resets[0].Forking.BlockNumber)
}

func TestResetFallsBackToHardhat(t *testing.T) {
	node := newFakeNode(t, 1, 0, "hardhat")
	client, err := rpc.Dial(node.url)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, Reset(context.Background(), client, testFork()))
	assert.Len(t, node.reset.resets(), 1)
}

func TestResetWithoutSupport(t *testing.T) {
	node := newFakeNode(t, 1, 0, "")
	client, err := rpc.Dial(node.url)
	require.NoError(t, err)
	defer client.Close()

	err = Reset(context.Background(), client, testFork())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reset fork node")
}

func TestStartAttached(t *testing.T) {
	node := newFakeNode(t, 1, 0, "anvil")
	m := metrics.NewHarnessMetrics("fork_test")

	n := NewNode(testFork(), config.NodeConfig{ExternalURL: node.url}, zaptest.NewLogger(t)).WithMetrics(m)
	require.True(t, n.Attached())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Start(ctx))
	defer n.Stop()

	assert.Len(t, node.reset.resets(), 1)

	client, raw, err := n.Dial(ctx)
	require.NoError(t, err)
	defer client.Close()
	assert.NotNil(t, raw)

	chainID, err := client.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chainID.Int64())
}

func TestStartMissingBinary(t *testing.T) {
	n := NewNode(testFork(), config.NodeConfig{Binary: "forkarb-no-such-node", Host: "127.0.0.1", Port: 8545}, zaptest.NewLogger(t))

	err := n.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, n.Stop())
}

func TestStartProcessExitsEarly(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	m := metrics.NewHarnessMetrics("fork_exit_test")
	n := NewNode(testFork(), config.NodeConfig{Binary: "false", Host: "127.0.0.1", Port: 1}, zaptest.NewLogger(t)).WithMetrics(m)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := n.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeExited)
	assert.NoError(t, ctx.Err())
}

func TestTailBufferKeepsEnd(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	assert.Equal(t, "456789ab", b.String())
}
