package cmd

import (
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/absenteeism-ml/absdeploy/internal/observability"
	"github.com/absenteeism-ml/absdeploy/pkg/execx"
	"github.com/absenteeism-ml/absdeploy/pkg/terraform"
)

var (
	teardownDestroyInfra bool
	teardownConfirm      bool
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Stop the service and optionally destroy cloud infrastructure",
	Long: `Stop the running containers. With --destroy-infra, additionally destroy the
terraform-managed cloud resources.

Destroying infrastructure is irreversible and requires --yes.`,
	RunE: runTeardown,
}

func init() {
	rootCmd.AddCommand(teardownCmd)
	teardownCmd.Flags().BoolVar(&teardownDestroyInfra, "destroy-infra", false,
		"Also destroy terraform-managed cloud resources")
	teardownCmd.Flags().BoolVar(&teardownConfirm, "yes", false,
		"Confirm infrastructure destruction")
}

func runTeardown(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.CLILogger
	runner := &execx.OSRunner{}

	comp := composeFromConfig(cfg)
	comp.Down(cmd.Context())

	if !teardownDestroyInfra {
		logger.Info("Containers stopped. Infrastructure left intact (use --destroy-infra to remove it).")
		return nil
	}
	if !teardownConfirm {
		return exitError(foundry.ExitInvalidArgument, "Refusing to destroy infrastructure",
			errors.New("pass --yes to confirm destruction"))
	}

	tf := &terraform.Executor{
		Dir:    cfg.Paths.TerraformDir,
		Runner: runner,
		Logger: logger,
	}
	if err := tf.CheckDir(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Terraform directory missing", err)
	}

	logger.Info("Destroying cloud infrastructure", zap.String("dir", cfg.Paths.TerraformDir))
	if err := tf.Destroy(cmd.Context()); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Infrastructure destroy failed", err)
	}
	logger.Info("Infrastructure destroyed")
	return nil
}
