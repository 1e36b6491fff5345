package fork

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/michaelpento.lv/forkarb/config"
	"github.com/michaelpento.lv/forkarb/utils/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeNodeEnv makes the test binary act as a node process. The value selects
// how it treats an interrupt.
const fakeNodeEnv = "FORKARB_FAKE_NODE"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeNodeEnv); mode != "" {
		os.Exit(runFakeNode(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

// runFakeNode accepts the node command line and serves eth_chainId and
// eth_blockNumber at the fork block until it is signalled.
func runFakeNode(mode string, args []string) int {
	fs := flag.NewFlagSet("fake-node", flag.ContinueOnError)
	chainID := fs.Uint64("chain-id", 1, "")
	host := fs.String("host", "127.0.0.1", "")
	port := fs.Int("port", 8545, "")
	forkURL := fs.String("fork-url", "", "")
	block := fs.Uint64("fork-block-number", 0, "")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if mode == "ignore-interrupt" {
		signal.Ignore(os.Interrupt)
	}

	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethService{chainID: *chainID, head: *block}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	addr := net.JoinHostPort(*host, fmt.Sprint(*port))
	fmt.Println("Fork endpoint:", *forkURL)
	fmt.Println("Listening on", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func spawnFakeNode(t *testing.T, mode string, logger *zap.Logger) *Node {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("interrupt is not supported on windows")
	}
	self, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(fakeNodeEnv, mode)

	cfg := config.NodeConfig{Binary: self, Host: "127.0.0.1", Port: freePort(t)}
	n := NewNode(testFork(), cfg, logger).WithMetrics(metrics.NewHarnessMetrics("fork_spawn_test"))
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func runningCmd(n *Node) *exec.Cmd {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cmd
}

func TestStartSpawnedNodeAndStop(t *testing.T) {
	n := spawnFakeNode(t, "serve", zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, n.Start(ctx))

	cmd := runningCmd(n)
	require.NotNil(t, cmd)
	require.Eventually(t, func() bool {
		return strings.Contains(n.Output(), "Listening on")
	}, 2*time.Second, 20*time.Millisecond)
	assert.NotContains(t, n.Output(), testFork().URL)
	assert.Contains(t, n.Output(), "redacted:"+testFork().Fingerprint())
	assert.Error(t, n.Start(ctx), "a second start must not spawn another process")

	client, _, err := n.Dial(ctx)
	require.NoError(t, err)
	defer client.Close()
	head, err := client.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(19200000), head)

	require.NoError(t, n.Stop())
	require.NotNil(t, cmd.ProcessState)
	assert.ErrorIs(t, cmd.Process.Signal(syscall.Signal(0)), os.ErrProcessDone)
	assert.Nil(t, runningCmd(n))
	assert.NoError(t, n.Stop())
}

func TestStopKillsNodeIgnoringInterrupt(t *testing.T) {
	old := stopTimeout
	stopTimeout = 300 * time.Millisecond
	t.Cleanup(func() { stopTimeout = old })

	core, logs := observer.New(zap.InfoLevel)
	n := spawnFakeNode(t, "ignore-interrupt", zap.New(core))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, n.Start(ctx))
	cmd := runningCmd(n)
	require.NotNil(t, cmd)

	require.NoError(t, n.Stop())
	require.NotNil(t, cmd.ProcessState)
	assert.ErrorIs(t, cmd.Process.Signal(syscall.Signal(0)), os.ErrProcessDone)
	if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
		assert.Equal(t, syscall.SIGKILL, status.Signal())
	}
	assert.Equal(t, 1, logs.FilterMessage("Fork node did not exit, killing it").Len())
}
