// Package cmd implements the absdeploy CLI.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/absenteeism-ml/absdeploy/internal/config"
	"github.com/absenteeism-ml/absdeploy/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = version
}

var envFile string

var rootCmd = &cobra.Command{
	Use:   "absdeploy",
	Short: "Deployment pipeline for the absenteeism prediction service",
	Long: `absdeploy provisions, trains, and serves the absenteeism prediction model.

The deploy command runs the full pipeline: prepare the Python environment,
preprocess the raw dataset, train the model when stale, build and start the
serving container, and verify health. In remote mode the same pipeline is
dispatched to a provisioned EC2 instance.

Configuration is environment-driven (optionally via an env file); see the
documented variables such as DEPLOYMENT_MODE, HEALTH_URL, and SSH_KEY_PATH.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and terminates the process with the command's exit
// code on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := 1
		var ce *cliError
		if errors.As(err, &ce) {
			code = ce.code
		}
		observability.CLILogger.Error(err.Error())
		os.Exit(code)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"key=value environment file loaded before defaults (default probes .env)")
}

// loadConfig loads configuration honoring --env-file and reconfigures the
// logger with the configured level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context(), envFile)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	observability.InitCLILogger(cfg.LogLevel)
	return cfg, nil
}

// cliError carries a process exit code alongside the message.
type cliError struct {
	code int
	msg  string
	err  error
}

func (e *cliError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *cliError) Unwrap() error { return e.err }

// exitError wraps a failure with its exit code. The code parameter accepts
// any int-based exit constant.
func exitError[Code ~int](code Code, msg string, err error) error {
	return &cliError{code: int(code), msg: msg, err: err}
}

// ExitWithCode logs the failure and terminates immediately. Used where a
// command cannot sensibly continue or unwind.
func ExitWithCode[Code ~int](logger *zap.Logger, code Code, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	os.Exit(int(code))
}
