package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/forkarb/config"
	"github.com/michaelpento.lv/forkarb/fork"
	"github.com/michaelpento.lv/forkarb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Start a forked node and keep it running until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer utils.CleanupLogger()

		if cfg.Node.ExternalURL != "" {
			return fmt.Errorf("%s is set; nothing to start", config.EnvForkNodeURL)
		}

		node := fork.NewNode(cfg.Fork, cfg.Node, log)
		if err := node.Start(cmd.Context()); err != nil {
			return err
		}
		defer func() {
			if err := node.Stop(); err != nil {
				log.Error("Failed to stop fork node", zap.Error(err))
			}
		}()

		fmt.Fprintf(cmd.OutOrStdout(), "Forked node listening on %s\n", node.URL())
		<-cmd.Context().Done()
		log.Info("Shutting down gracefully...")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
}
