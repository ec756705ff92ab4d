package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/absenteeism-ml/absdeploy/internal/config"
	"github.com/absenteeism-ml/absdeploy/internal/observability"
	"github.com/absenteeism-ml/absdeploy/pkg/cloud"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the deployment environment and suggest fixes.

Examples:
  absdeploy doctor                          # Local environment check
  DEPLOYMENT_MODE=remote absdeploy doctor   # Adds SSH and AWS checks`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.CLILogger

	logger.Info("=== absdeploy doctor ===")
	logger.Info("")
	logger.Info("Running diagnostic checks...")
	logger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 6
	if cfg.IsRemote() {
		totalChecks = 9
	}

	check := func(name string, ok bool, detail string, fields ...zap.Field) {
		if ok {
			logger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", checkNum, totalChecks, name, detail), fields...)
		} else {
			logger.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", checkNum, totalChecks, name, detail), fields...)
			allChecks = false
		}
		checkNum++
	}
	warn := func(name, detail string, fields ...zap.Field) {
		logger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", checkNum, totalChecks, name, detail), fields...)
		allChecks = false
		checkNum++
	}

	// Check 1: Python interpreter
	if path, err := exec.LookPath("python3"); err == nil {
		check("python3", true, path, zap.String("python", path))
	} else {
		check("python3", false, "not found on PATH")
	}

	// Check 2: Docker
	if path, err := exec.LookPath("docker"); err == nil {
		check("docker", true, path, zap.String("docker", path))
	} else {
		check("docker", false, "not found on PATH")
	}

	// Check 3: Compose file
	if _, err := os.Stat(cfg.Docker.ComposeFile); err == nil {
		check("compose file", true, cfg.Docker.ComposeFile)
	} else {
		check("compose file", false, cfg.Docker.ComposeFile+" missing")
	}

	// Check 4: Raw dataset
	layout := layoutFromConfig(cfg)
	if _, err := os.Stat(cfg.Paths.RawData); err == nil {
		check("raw dataset", true, cfg.Paths.RawData)
	} else if _, err := os.Stat(cfg.Paths.ProcessedData); err == nil {
		check("raw dataset", true, "absent, but processed dataset exists")
	} else {
		check("raw dataset", false, cfg.Paths.RawData+" missing (and no processed dataset)")
	}

	// Check 5: Artifact freshness
	if layout.Stale() {
		warn("artifact freshness",
			"raw dataset is newer than the processed one; delete "+cfg.Paths.ProcessedData+" to re-preprocess")
	} else if age := layout.ModelAge(time.Now()); age > 0 {
		check("artifact freshness", true, fmt.Sprintf("model trained %s ago", age.Round(time.Minute)))
	} else {
		check("artifact freshness", true, "no model yet, training will run on deploy")
	}

	// Check 6: Host environment
	if cloud.OnEC2(cmd.Context()) {
		check("host environment", true, fmt.Sprintf("%s/%s (EC2 instance)", runtime.GOOS, runtime.GOARCH))
	} else {
		check("host environment", true, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
			zap.String("os", runtime.GOOS),
			zap.String("arch", runtime.GOARCH))
	}

	if cfg.IsRemote() {
		logger.Info("")
		logger.Info("Remote Mode Checks:")

		// Check 7: Terraform binary
		if path, err := exec.LookPath("terraform"); err == nil {
			check("terraform", true, path, zap.String("terraform", path))
		} else {
			check("terraform", false, "not found on PATH")
		}

		// Check 8: SSH key
		if info, err := os.Stat(cfg.Remote.SSHKeyPath); err == nil && !info.IsDir() {
			check("SSH key", true, cfg.Remote.SSHKeyPath)
		} else {
			check("SSH key", false, cfg.Remote.SSHKeyPath+" missing (run 'absdeploy keypair' to generate one)")
		}

		// Check 9: AWS credentials
		if !checkAWSCredentials(cmd.Context(), cfg, check) {
			printAWSCredentialsHelp()
		}
	}

	logger.Info("")
	if allChecks {
		logger.Info("✅ All checks passed! Your absdeploy environment is healthy.")
	} else {
		logger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	logger.Info("")
	logger.Info("=== End Diagnostics ===")
	return nil
}

func checkAWSCredentials(ctx context.Context, cfg *config.Config, check func(string, bool, string, ...zap.Field)) bool {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		check("AWS credentials", false, "cannot load AWS config", zap.Error(err))
		return false
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		check("AWS credentials", false, "cannot retrieve credentials", zap.Error(err))
		return false
	}

	check("AWS credentials", true, "found credentials",
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))
	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	logger := observability.CLILogger
	logger.Info("")
	logger.Info("To configure AWS credentials:")
	logger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	logger.Info("  2. Run 'aws configure' to set up a profile, or")
	logger.Info("  3. Use an IAM role when running on AWS infrastructure")
	logger.Info("")
}
