package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetcore/dispatchd/api/dispatch"
	"github.com/fleetcore/dispatchd/app"
	"github.com/fleetcore/dispatchd/config"
)

const httpShutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher node",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("build dispatcher service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "close dispatcher service: %v\n", err)
		}
	}()

	var httpServer *http.Server
	if cfg.API.Addr != "" {
		api := dispatch.NewServer(svc.Dispatcher, svc.Executor(), svc.Audit(), cfg.API.Token)
		httpServer = &http.Server{Addr: cfg.API.Addr, Handler: api.Handler()}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(cmd.ErrOrStderr(), "api server: %v\n", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-runErr:
		if err != nil {
			return err
		}
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	return nil
}
