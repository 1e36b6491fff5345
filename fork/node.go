// Package fork runs the local chain that forks mainnet at a pinned block.
package fork

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/michaelpento.lv/forkarb/config"
	"github.com/michaelpento.lv/forkarb/utils/metrics"
	"go.uber.org/zap"
)

const outputLimit = 16 << 10

// stopTimeout is how long Stop waits after an interrupt before killing.
var stopTimeout = 5 * time.Second

// ErrNodeExited is returned when the node process dies before it is ready.
var ErrNodeExited = errors.New("fork node exited")

// Node is a forked chain node, either a child anvil process or an external
// node the harness attaches to.
type Node struct {
	fork    config.ForkConfig
	cfg     config.NodeConfig
	logger  *zap.Logger
	metrics *metrics.HarnessMetrics

	mu      sync.Mutex
	cmd     *exec.Cmd
	output  *tailBuffer
	done    chan struct{}
	waitErr error
}

func NewNode(fork config.ForkConfig, cfg config.NodeConfig, logger *zap.Logger) *Node {
	return &Node{
		fork:   fork,
		cfg:    cfg,
		logger: logger,
		output: newTailBuffer(outputLimit),
	}
}

// WithMetrics records node starts and readiness latency on m.
func (n *Node) WithMetrics(m *metrics.HarnessMetrics) *Node {
	n.metrics = m
	return n
}

// Attached reports whether the node is external.
func (n *Node) Attached() bool { return n.cfg.ExternalURL != "" }

// URL is the JSON-RPC endpoint of the node.
func (n *Node) URL() string {
	if n.Attached() {
		return n.cfg.ExternalURL
	}
	return "http://" + net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
}

// Args returns the command line of the node process.
func (n *Node) Args() []string {
	args := []string{
		"--chain-id", strconv.FormatUint(n.fork.ChainID, 10),
		"--host", n.cfg.Host,
		"--port", strconv.Itoa(n.cfg.Port),
	}
	if n.fork.Enabled {
		args = append(args,
			"--fork-url", n.fork.URL,
			"--fork-block-number", strconv.FormatUint(n.fork.BlockNumber, 10),
		)
	}
	return args
}

// Start launches the node, or resets the external one to the fork block, and
// waits until it serves the configured chain. ctx bounds the wait only; the
// process lives until Stop.
func (n *Node) Start(ctx context.Context) error {
	if n.Attached() {
		return n.attach(ctx)
	}

	path, err := exec.LookPath(n.cfg.Binary)
	if err != nil {
		return fmt.Errorf("node binary %q not found: %w", n.cfg.Binary, err)
	}

	n.mu.Lock()
	if n.cmd != nil {
		n.mu.Unlock()
		return errors.New("fork node already started")
	}
	cmd := exec.Command(path, n.Args()...)
	cmd.Stdout = n.output
	cmd.Stderr = n.output
	if err := cmd.Start(); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("failed to start fork node: %w", err)
	}
	n.cmd = cmd
	n.done = make(chan struct{})
	n.mu.Unlock()

	go n.wait(cmd)

	if n.metrics != nil {
		n.metrics.NodeStarts.Inc()
	}
	n.logger.Info("Fork node started",
		zap.String("binary", path),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("url", config.RedactURL(n.URL())),
		zap.String("fork", n.fork.Fingerprint()),
		zap.Uint64("block", n.fork.BlockNumber))

	if err := n.waitReady(ctx); err != nil {
		_ = n.Stop()
		return fmt.Errorf("%w\n%s", err, n.Output())
	}
	return nil
}

func (n *Node) attach(ctx context.Context) error {
	client, err := rpc.DialContext(ctx, n.URL())
	if err != nil {
		return fmt.Errorf("failed to dial fork node: %w", err)
	}
	defer client.Close()

	if err := Reset(ctx, client, n.fork); err != nil {
		return err
	}
	n.logger.Info("Attached to fork node",
		zap.String("fork", n.fork.Fingerprint()),
		zap.Uint64("block", n.fork.BlockNumber))

	return n.waitReady(ctx)
}

func (n *Node) waitReady(ctx context.Context) error {
	readyCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if done := n.exited(); done != nil {
		go func() {
			select {
			case <-done:
				cancel(ErrNodeExited)
			case <-readyCtx.Done():
			}
		}()
	}

	var minBlock uint64
	if n.fork.Enabled {
		minBlock = n.fork.BlockNumber
	}

	start := time.Now()
	if err := WaitReady(readyCtx, n.URL(), n.fork.ChainID, minBlock); err != nil {
		if cause := context.Cause(readyCtx); errors.Is(cause, ErrNodeExited) {
			return fmt.Errorf("%w: %w", ErrNodeExited, n.exitErr())
		}
		return err
	}

	if n.metrics != nil {
		n.metrics.NodeReadyWait.Observe(time.Since(start).Seconds())
	}
	n.logger.Info("Fork node ready",
		zap.String("url", config.RedactURL(n.URL())),
		zap.Duration("wait", time.Since(start)))
	return nil
}

func (n *Node) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	n.mu.Lock()
	n.waitErr = err
	close(n.done)
	n.mu.Unlock()

	n.logger.Debug("Fork node exited", zap.Error(err))
}

func (n *Node) exited() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.done
}

func (n *Node) exitErr() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.waitErr == nil {
		return errors.New("exit status 0")
	}
	return n.waitErr
}

// Stop terminates the node process and waits for it. The forked state is
// discarded with it. Stop is a no-op for attached nodes.
func (n *Node) Stop() error {
	n.mu.Lock()
	cmd, done := n.cmd, n.done
	n.cmd = nil
	n.mu.Unlock()

	if cmd == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		n.logger.Warn("Fork node did not exit, killing it")
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill fork node: %w", err)
		}
		<-done
	}

	n.logger.Info("Fork node stopped")
	return nil
}

// Dial connects to the node. The raw client exposes node-specific methods
// such as anvil_reset.
func (n *Node) Dial(ctx context.Context) (*ethclient.Client, *rpc.Client, error) {
	client, err := rpc.DialContext(ctx, n.URL())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial fork node: %w", err)
	}
	return ethclient.NewClient(client), client, nil
}

// Output returns the most recent output of the node process with the fork
// URL masked.
func (n *Node) Output() string {
	out := n.output.String()
	if n.fork.URL == "" {
		return out
	}
	return strings.ReplaceAll(out, n.fork.URL, "redacted:"+n.fork.Fingerprint())
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{max: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
