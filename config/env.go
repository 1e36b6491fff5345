package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvMainnetRPCURL = "MAINNET_RPC_URL"
	EnvForkBlock     = "FORK_BLOCK_NUMBER"
	EnvForkNodeURL   = "FORK_NODE_URL"
	EnvAnvilBin      = "ANVIL_BIN"
	EnvDeployerKey   = "DEPLOYER_PRIVATE_KEY"
	EnvArtifactPath  = "FLASHLOAN_ARB_ARTIFACT"
)

// LoadEnv loads environment variables from the given .env files (default
// ".env"). Missing files are ignored; variables already set are kept.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
