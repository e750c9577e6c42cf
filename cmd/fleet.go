package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetcore/dispatchd/app"
	"github.com/fleetcore/dispatchd/config"
)

var robotNames []string

var fleetCmd = &cobra.Command{
	Use:   "fleet <name>",
	Short: "Run a fleet node",
	Args:  cobra.ExactArgs(1),
	RunE:  runFleet,
}

func init() {
	fleetCmd.Flags().StringSliceVar(&robotNames, "robot", nil, "robot name managed by this fleet node (repeatable)")
	rootCmd.AddCommand(fleetCmd)
}

func runFleet(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, err := app.NewFleetService(cfg, args[0], robotNames...)
	if err != nil {
		return fmt.Errorf("build fleet service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "close fleet service: %v\n", err)
		}
	}()

	return svc.Run(ctx)
}
