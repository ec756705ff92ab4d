package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/absenteeism-ml/absdeploy/internal/observability"
	"github.com/absenteeism-ml/absdeploy/pkg/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show container and service health status",
	Long: `Show the status of the deployed containers and a one-shot readiness probe
against the health endpoint.

Unlike deploy, status never retries: it reports the current state and exits 0
regardless, so it is safe in watch loops.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.CLILogger

	comp := composeFromConfig(cfg)
	if ps, err := comp.PS(cmd.Context()); err != nil {
		logger.Warn("Cannot query container status", zap.Error(err))
	} else {
		logger.Info("Container status:\n" + ps)
	}

	readiness, err := health.NewClient(cfg.Health.URL, nil).CheckReady(cmd.Context())
	switch {
	case err != nil:
		logger.Warn("Service unreachable",
			zap.String("url", cfg.Health.URL),
			zap.Error(err))
	case readiness.Ready():
		logger.Info("Service is healthy and the model is loaded",
			zap.String("url", cfg.Health.URL),
			zap.String("status", readiness.Status))
	default:
		logger.Warn("Service is up but not ready",
			zap.String("url", cfg.Health.URL),
			zap.String("status", readiness.Status),
			zap.Bool("model_loaded", readiness.ModelLoaded))
	}
	return nil
}
