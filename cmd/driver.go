package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evcharge/config"
	"github.com/kilianp07/evcharge/core/driver"
	"github.com/kilianp07/evcharge/infra/logger"
)

var driverCmd = &cobra.Command{
	Use:   "driver",
	Short: "Run a driver session against the central",
	RunE:  runDriver,
}

func init() {
	rootCmd.AddCommand(driverCmd)
}

func runDriver(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Driver.ID == "" {
		return fmt.Errorf("driver.id is required")
	}
	sim := driver.New(cfg.Driver.Simulator(), logger.New("driver"))
	return sim.Run(ctx)
}
