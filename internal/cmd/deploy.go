package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/absenteeism-ml/absdeploy/internal/config"
	"github.com/absenteeism-ml/absdeploy/internal/observability"
	"github.com/absenteeism-ml/absdeploy/pkg/artifacts"
	"github.com/absenteeism-ml/absdeploy/pkg/cloud"
	"github.com/absenteeism-ml/absdeploy/pkg/compose"
	"github.com/absenteeism-ml/absdeploy/pkg/execx"
	"github.com/absenteeism-ml/absdeploy/pkg/health"
	"github.com/absenteeism-ml/absdeploy/pkg/pipeline"
	"github.com/absenteeism-ml/absdeploy/pkg/pyenv"
	"github.com/absenteeism-ml/absdeploy/pkg/remote"
	"github.com/absenteeism-ml/absdeploy/pkg/report"
	"github.com/absenteeism-ml/absdeploy/pkg/runregistry"
	"github.com/absenteeism-ml/absdeploy/pkg/sshx"
	"github.com/absenteeism-ml/absdeploy/pkg/terraform"
)

var deployOutput string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run the deployment pipeline",
	Long: `Run the full deployment pipeline with no required arguments.

In local mode: prepare the Python environment, preprocess the raw dataset
(skipped when the processed file exists), train the model (skipped when the
artifact is newer than the data), build and start the serving container, and
poll until it is healthy and the model is loaded.

In remote mode (DEPLOYMENT_MODE=remote): provision an EC2 instance unless one
exists, copy the working tree over SSH, re-run the pipeline there in local
mode, and verify the remote health endpoint.

Exit code 0 means the service is up and serving the model; 1 means a fatal
step failed.`,
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().StringVar(&deployOutput, "output", "text",
		"Output format: text or jsonl (stage records on stdout)")
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.CLILogger

	runID := runregistry.NewRunID()
	writer, err := stageWriter(runID, cfg.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = writer.Close() }()

	runner := &pipeline.Runner{
		Logger:   logger,
		Report:   writer,
		Registry: runregistry.NewStore(cfg.Paths.RegistryDir),
		Mode:     cfg.Mode,
		RunID:    runID,
	}

	if cfg.IsRemote() {
		runner.Stages = []pipeline.Stage{newRemoteStage(cfg, writer)}
	} else {
		runner.Stages = localStages(cfg)
	}

	if err := runner.Run(cmd.Context()); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Deployment failed", err)
	}
	return nil
}

func stageWriter(runID, mode string) (report.Writer, error) {
	switch deployOutput {
	case "jsonl":
		return report.NewJSONLWriter(os.Stdout, runID, mode), nil
	case "text", "":
		return report.NopWriter{}, nil
	default:
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --output value",
			fmt.Errorf("expected text or jsonl, got %q", deployOutput))
	}
}

func layoutFromConfig(cfg *config.Config) artifacts.Layout {
	return artifacts.Layout{
		RawData:       cfg.Paths.RawData,
		ProcessedData: cfg.Paths.ProcessedData,
		Model:         cfg.Paths.Model,
	}
}

// composeFromConfig builds the compose executor. IMAGE_NAME is exported to the
// compose process so the compose file can reference it via substitution.
func composeFromConfig(cfg *config.Config) *compose.Executor {
	return &compose.Executor{
		File:    cfg.Docker.ComposeFile,
		LogTail: cfg.Docker.LogTail,
		Runner:  &execx.OSRunner{ExtraEnv: []string{"IMAGE_NAME=" + cfg.Docker.ImageName}},
		Logger:  observability.CLILogger,
	}
}

func localStages(cfg *config.Config) []pipeline.Stage {
	logger := observability.CLILogger
	runner := &execx.OSRunner{}
	layout := layoutFromConfig(cfg)

	prep := &pyenv.Preparer{
		Python:       "python3",
		VenvDir:      cfg.Paths.VenvDir,
		Requirements: cfg.Paths.Requirements,
		Fallback:     pyenv.FallbackPackages,
		Runner:       runner,
		Paths:        runner,
		Logger:       logger,
	}
	comp := composeFromConfig(cfg)
	poller := health.NewClient(cfg.Health.URL, nil)

	return []pipeline.Stage{
		&pipeline.PrepareEnv{Prep: prep},
		&pipeline.Preprocess{Layout: layout, Prep: prep, Logger: logger},
		&pipeline.Train{Layout: layout, Prep: prep, Logger: logger},
		&pipeline.BuildAndStart{Compose: comp, SkipBuild: cfg.Skip.DockerBuild, Logger: logger},
		&pipeline.HealthCheck{
			Poller:      poller,
			Compose:     comp,
			MaxAttempts: cfg.Health.MaxAttempts,
			Interval:    cfg.Health.Interval,
			Logger:      logger,
		},
	}
}

// remoteStage adapts the dispatcher state machine to a single pipeline
// stage, so remote runs get the same registry and report treatment.
type remoteStage struct {
	cfg    *config.Config
	writer report.Writer
}

func newRemoteStage(cfg *config.Config, writer report.Writer) *remoteStage {
	return &remoteStage{cfg: cfg, writer: writer}
}

func (s *remoteStage) Name() string { return "remote_dispatch" }

func (s *remoteStage) Run(ctx context.Context) (pipeline.Result, error) {
	logger := observability.CLILogger
	cfg := s.cfg

	ec2Client, err := cloud.New(ctx, cloud.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	})
	if err != nil {
		return pipeline.Result{}, err
	}

	workdir, err := os.Getwd()
	if err != nil {
		return pipeline.Result{}, err
	}

	d := &remote.Dispatcher{
		Provisioner: &terraform.Executor{
			Dir:    cfg.Paths.TerraformDir,
			Runner: &execx.OSRunner{},
			Logger: logger,
		},
		Resolver: ec2Client,
		Connect: func(host string) (remote.Session, error) {
			return sshx.NewClient(host, cfg.Remote.User, cfg.Remote.SSHKeyPath, logger)
		},
		Prober: func(host string) remote.ReadinessProber {
			return health.NewClient(remoteHealthURL(cfg.Health.URL, host), nil)
		},
		TagKey:    cfg.AWS.InstanceTagKey,
		TagValue:  cfg.AWS.InstanceTag,
		LocalRoot: workdir,
		RemoteDir: cfg.Remote.Dir,
		Excludes:  sshx.DefaultExcludes,
		RemoteCommand: fmt.Sprintf(
			"cd %q && DEPLOYMENT_MODE=local SKIP_INFRASTRUCTURE=true ./absdeploy deploy",
			cfg.Remote.Dir),
		SkipInfrastructure: cfg.Skip.Infrastructure,
		SSHWaitAttempts:    cfg.Health.MaxAttempts,
		SSHWaitInterval:    cfg.Health.Interval,
		SettleDelay:        cfg.Remote.SettleDelay,
		Logger:             logger,
		OnTransition: func(state remote.State) {
			outcome := report.OutcomeSuccess
			if state == remote.StateRemoteFailed {
				outcome = report.OutcomeFailed
			}
			_ = s.writer.WriteStage(ctx, &report.StageRecord{
				Stage:   "dispatch",
				Outcome: outcome,
				Detail:  string(state),
			})
		},
	}

	state, err := d.Run(ctx)
	if err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{Detail: string(state)}, nil
}

// remoteHealthURL rewrites the configured health URL to point at the remote
// host, keeping the port and path.
func remoteHealthURL(configured, host string) string {
	u, err := url.Parse(configured)
	if err != nil {
		return "http://" + host + ":8000/health"
	}
	port := u.Port()
	if port == "" {
		u.Host = host
	} else {
		u.Host = host + ":" + port
	}
	return u.String()
}
