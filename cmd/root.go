package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/michaelpento.lv/forkarb/config"
	"github.com/michaelpento.lv/forkarb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	envFiles []string
	debug    bool
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:   "forkarb",
	Short: "Run FlashLoanArb scenarios against a forked mainnet",
	Long: `forkarb forks Ethereum mainnet at a pinned block with a local node,
deploys the compiled FlashLoanArb contract and checks that executeTrade
behaves as each scenario expects.`,
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "JSON config file overlaying the defaults")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
}

func initConfig() {
	if err := config.LoadEnv(envFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
	}
}

// loadConfig resolves the configuration and initializes the global logger
// from it.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	var outputs []string
	switch {
	case logFile != "":
		outputs = append(outputs, logFile)
	case cfg.Log.File != "":
		outputs = append(outputs, cfg.Log.File)
	}
	log := utils.InitLogger(debug || cfg.Log.Debug, outputs...)
	return cfg, log, nil
}
