package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metagrid-platform/metagrid/internal/config"
	"github.com/metagrid-platform/metagrid/internal/logging"
	"github.com/metagrid-platform/metagrid/internal/platform"
	"github.com/metagrid-platform/metagrid/internal/security"
	"github.com/metagrid-platform/metagrid/internal/server"
)

var serveDev bool

func init() {
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Enable development logging")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the entity API server",
	Long:  "Bootstrap the metadata model and serve the v1 and v2 entity APIs",
	RunE: func(cmd *cobra.Command, args []string) error {
		infoColor := color.New(color.FgCyan)
		errorColor := color.New(color.FgRed, color.Bold)

		cfg, err := config.Load()
		if err != nil {
			errorColor.Fprintln(os.Stderr, "configuration error:", err)
			return err
		}

		log, err := logging.New(serveDev)
		if err != nil {
			return err
		}
		defer log.Sync()

		p, err := platform.New(cfg, log)
		if err != nil {
			errorColor.Fprintln(os.Stderr, "bootstrap error:", err)
			return err
		}
		defer p.Close()

		var resolver *security.TokenResolver
		if cfg.Auth.TokenSecret != "" {
			resolver = security.NewTokenResolver(cfg.Auth.TokenSecret)
		}

		serverConfig := server.DefaultConfig(server.Router(p.Service, resolver, log))
		serverConfig.Address = cfg.Addr()
		srv, err := server.New(serverConfig)
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		infoColor.Printf("Metagrid listening on %s\n", cfg.Addr())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-sigCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
		}

		return nil
	},
}
