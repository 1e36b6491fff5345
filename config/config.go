package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// DefaultForkBlock pins the fork to a historical mainnet block so every run
	// sees the same pool reserves.
	DefaultForkBlock   uint64 = 19200000
	DefaultChainID     uint64 = 1
	DefaultSolcVersion        = "0.8.20"
	DefaultTestTimeout        = 300000 * time.Millisecond

	DefaultNodeBinary = "anvil"
	DefaultNodeHost   = "127.0.0.1"
	DefaultNodePort   = 8545

	DefaultArtifactPath = "artifacts/contracts/FlashLoanArb.sol/FlashLoanArb.json"

	// DefaultDeployerKey is the first dev account of anvil and hardhat node.
	DefaultDeployerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

type Config struct {
	Fork         ForkConfig     `json:"fork"`
	Solidity     SolidityConfig `json:"solidity"`
	Test         TestConfig     `json:"test"`
	Node         NodeConfig     `json:"node"`
	Deployer     DeployerConfig `json:"deployer"`
	ArtifactPath string         `json:"artifact_path"`
	Log          LogConfig      `json:"log"`
}

// ForkConfig describes the upstream chain state the local node forks from.
type ForkConfig struct {
	URL         string `json:"url"`
	BlockNumber uint64 `json:"block_number"`
	ChainID     uint64 `json:"chain_id"`
	Enabled     bool   `json:"enabled"`
}

type SolidityConfig struct {
	Version string `json:"version"`
}

type TestConfig struct {
	Timeout Duration `json:"timeout"`
}

type NodeConfig struct {
	Binary string `json:"binary"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	// ExternalURL attaches to a running node instead of spawning one.
	ExternalURL string `json:"external_url"`
}

type DeployerConfig struct {
	PrivateKey string `json:"private_key"`
}

type LogConfig struct {
	Debug bool   `json:"debug"`
	File  string `json:"file"`
}

// Duration decodes from either a Go duration string ("5m") or a number of
// milliseconds (300000), the unit test runners usually express timeouts in.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value) * time.Millisecond)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// NewConfig returns the defaults with nothing read from the environment.
func NewConfig() *Config {
	return &Config{
		Fork: ForkConfig{
			URL:         "",
			BlockNumber: DefaultForkBlock,
			ChainID:     DefaultChainID,
			Enabled:     true,
		},
		Solidity: SolidityConfig{Version: DefaultSolcVersion},
		Test:     TestConfig{Timeout: Duration(DefaultTestTimeout)},
		Node: NodeConfig{
			Binary: DefaultNodeBinary,
			Host:   DefaultNodeHost,
			Port:   DefaultNodePort,
		},
		Deployer:     DeployerConfig{PrivateKey: DefaultDeployerKey},
		ArtifactPath: DefaultArtifactPath,
	}
}

// LoadConfig builds the configuration from defaults, an optional JSON file and
// the process environment, in that order of precedence (environment wins).
// The fork URL is never validated here: an empty value surfaces later as a
// connection failure of the forked node.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := NewConfig()

	if cfgFile != "" {
		file, err := os.Open(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overlays values present in the environment.
func (c *Config) ApplyEnv() error {
	c.Fork.URL = GetEnvWithDefault(EnvMainnetRPCURL, c.Fork.URL)
	c.Node.ExternalURL = GetEnvWithDefault(EnvForkNodeURL, c.Node.ExternalURL)
	c.Node.Binary = GetEnvWithDefault(EnvAnvilBin, c.Node.Binary)
	c.Deployer.PrivateKey = GetEnvWithDefault(EnvDeployerKey, c.Deployer.PrivateKey)
	c.ArtifactPath = GetEnvWithDefault(EnvArtifactPath, c.ArtifactPath)

	if value := os.Getenv(EnvForkBlock); value != "" {
		block, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvForkBlock, err)
		}
		c.Fork.BlockNumber = block
	}
	return nil
}

func (c *Config) Validate() error {
	var errors []string

	if c.Fork.ChainID == 0 {
		errors = append(errors, "fork chain_id must be positive")
	}
	if c.Test.Timeout.Std() <= 0 {
		errors = append(errors, "test timeout must be positive")
	}
	if c.Solidity.Version == "" {
		errors = append(errors, "solidity version must be specified")
	}
	if c.Node.ExternalURL == "" {
		if c.Node.Binary == "" {
			errors = append(errors, "node binary must be specified")
		}
		if c.Node.Port <= 0 || c.Node.Port > 65535 {
			errors = append(errors, fmt.Sprintf("node port %d out of range", c.Node.Port))
		}
	}
	if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.Deployer.PrivateKey, "0x")); err != nil {
		errors = append(errors, "deployer private_key is not a valid secp256k1 key")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// Fingerprint identifies a fork without exposing its RPC URL, which usually
// carries a provider API key.
func (f ForkConfig) Fingerprint() string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%d|%d", f.URL, f.BlockNumber, f.ChainID)
	return fmt.Sprintf("%016x", h.Sum64())
}

// RedactURL strips everything but the scheme and host from an RPC URL.
// Hosted providers carry the API key in the userinfo, path or query.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "redacted"
	}
	if u.User == nil && (u.Path == "" || u.Path == "/") && u.RawQuery == "" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/redacted"
}

// Redacted returns a copy safe to print or log.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Fork.URL != "" {
		out.Fork.URL = "redacted:" + c.Fork.Fingerprint()
	}
	if out.Node.ExternalURL != "" {
		out.Node.ExternalURL = RedactURL(out.Node.ExternalURL)
	}
	out.Deployer.PrivateKey = "redacted"
	return &out
}

// RenderJSON renders the redacted configuration for display.
func (c *Config) RenderJSON() ([]byte, error) {
	out, err := json.MarshalIndent(c.Redacted(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return append(out, '\n'), nil
}
