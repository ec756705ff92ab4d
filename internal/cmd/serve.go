package cmd

import (
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/absenteeism-ml/absdeploy/internal/observability"
	"github.com/absenteeism-ml/absdeploy/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops gateway in front of the prediction API",
	Long: `Run the local HTTP gateway: serves the prediction frontend, proxies
/predict and /health to the model container, and exposes its own health
endpoints under /gateway/health.

The gateway assumes the model container is already running (see 'absdeploy
deploy').`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.CLILogger

	srv, err := server.New(server.Options{
		Host:        cfg.Gateway.Host,
		Port:        cfg.Gateway.Port,
		UpstreamURL: cfg.Gateway.UpstreamURL,
		PredictRPS:  cfg.Gateway.PredictRPS,
		Version:     versionInfo.Version,
		Logger:      logger,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid gateway configuration", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting gateway",
		zap.String("addr", srv.Addr()),
		zap.String("upstream", cfg.Gateway.UpstreamURL))
	if err := srv.Start(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Gateway terminated", err)
	}
	return nil
}
