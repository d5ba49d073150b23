package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/cropadvisor/internal/server"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, zap.L())
			if err != nil {
				return classify(err)
			}

			if port == 0 {
				port = cfg.Server.Port
			}
			srv := server.New(a.engine, a.guidance, a.irrigation, server.Options{
				CORSOrigins:  cfg.Server.CORSOrigins,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
			}, zap.L())
			return srv.Run(ctx, fmt.Sprintf(":%d", port))
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "server port (default from config)")
	return cmd
}
