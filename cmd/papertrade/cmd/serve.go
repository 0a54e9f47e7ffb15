package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/papertrade/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger over HTTP",
	Long: `Start the REST API and websocket feed.

Clients authenticate with a bearer token from server.tokens in the config
file; each token acts as one account.

Example:
  papertrade --config papertrade.yaml serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if len(a.cfg.Server.Tokens) == 0 {
		a.log.Warn("no server.tokens configured; every API request will be rejected")
	}

	srv := api.NewServer(a.engine, api.NewAuthenticator(a.cfg.Server.Tokens),
		api.WithLogger(a.log),
		api.WithAllowedOrigins(a.cfg.Server.AllowedOrigins...),
	)
	a.engine.SetListener(srv.Hub())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, addr); err != nil {
		a.log.Error("server failed", zap.Error(err))
		return err
	}
	return nil
}
