package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/michaelpento.lv/forkarb/harness"
	"github.com/michaelpento.lv/forkarb/scenario"
	"github.com/michaelpento.lv/forkarb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrScenariosFailed is returned when at least one scenario did not pass.
var ErrScenariosFailed = errors.New("scenarios failed")

var runCmd = &cobra.Command{
	Use:   "run [scenario.yaml ...]",
	Short: "Run scenarios against a fresh fork",
	Long: `Run starts a forked node, deploys the contract artifact and runs the
given scenario files in order. Without arguments the built-in flash loan
scenario runs: executeTrade on the WETH/DAI pair must revert with
"UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer utils.CleanupLogger()

		scenarios, err := loadScenarios(args)
		if err != nil {
			return err
		}

		h, err := harness.New(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := h.Close(); err != nil {
				log.Error("Failed to stop fork node", zap.Error(err))
			}
		}()

		results, runErr := h.RunWithTimeout(cmd.Context(), scenarios...)

		for _, res := range results {
			status := "PASS"
			if !res.Passed {
				status = "FAIL"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s)\n", status, res.Scenario, res.Duration.Round(time.Millisecond))
			if res.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "      %v\n", res.Err)
			}
		}

		if summary, err := h.Metrics().Summary(); err == nil {
			log.Info("Run summary",
				zap.Float64("passed", summary["passed"]),
				zap.Float64("failed", summary["failed"]),
				zap.Float64("error", summary["error"]))
		}

		if runErr != nil {
			return runErr
		}
		if !harness.Passed(results) {
			return ErrScenariosFailed
		}
		return nil
	},
}

func loadScenarios(paths []string) ([]scenario.Scenario, error) {
	if len(paths) == 0 {
		return []scenario.Scenario{scenario.FlashLoanRevert()}, nil
	}

	var out []scenario.Scenario
	for _, path := range paths {
		loaded, err := scenario.Load(path)
		if err != nil {
			return nil, err
		}
		out = append(out, loaded...)
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
