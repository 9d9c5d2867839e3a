package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evcharge/config"
	"github.com/kilianp07/evcharge/core/cp"
	"github.com/kilianp07/evcharge/infra/logger"
)

var cpCmd = &cobra.Command{
	Use:   "cp",
	Short: "Run a charging-point engine",
	RunE:  runCP,
}

func init() {
	rootCmd.AddCommand(cpCmd)
}

func runCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.CP.ID == "" {
		return fmt.Errorf("cp.id is required")
	}
	engine := cp.New(cfg.CP.Engine(), logger.New("cp"))
	return engine.Run(ctx)
}
