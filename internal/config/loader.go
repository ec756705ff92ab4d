package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

var (
	configMu  sync.Mutex
	appConfig *Config
)

// DefaultEnvFile is probed when no explicit --env-file is given.
const DefaultEnvFile = ".env"

// Load builds the configuration with precedence: process environment >
// environment file > defaults. The result is cached for GetConfig.
//
// envFile semantics: an explicitly named file must exist; the default .env is
// loaded only when present. File entries never override variables already set
// in the process environment.
func Load(ctx context.Context, envFile string) (*Config, error) {
	_ = ctx

	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	if _, err := os.Stat(envFile); err != nil {
		if explicit {
			return nil, fmt.Errorf("env file %s: %w", envFile, err)
		}
	} else if err := gotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the last loaded configuration, or nil before Load.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeLocal)
	v.SetDefault("log_level", "info")

	v.SetDefault("paths.raw_data", "data/raw/work_absenteeism_raw.csv")
	v.SetDefault("paths.processed_data", "data/processed/work_absenteeism_processed.csv")
	v.SetDefault("paths.model", "models/best_model.joblib")
	v.SetDefault("paths.requirements", "requirements.txt")
	v.SetDefault("paths.venv_dir", "venv")
	v.SetDefault("paths.terraform_dir", "terraform")
	v.SetDefault("paths.registry_dir", ".absdeploy/runs")

	v.SetDefault("docker.image_name", "absenteeism-api")
	v.SetDefault("docker.compose_file", "docker-compose.yml")
	v.SetDefault("docker.log_tail", 50)

	v.SetDefault("health.url", "http://localhost:8000/health")
	v.SetDefault("health.max_attempts", 30)
	v.SetDefault("health.interval", 2*time.Second)

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.instance_type", "t2.micro")
	v.SetDefault("aws.instance_tag_key", "Name")
	v.SetDefault("aws.instance_tag", "absenteeism-api-server")
	v.SetDefault("aws.key_pair_name", "absenteeism-deploy")

	v.SetDefault("remote.user", "ubuntu")
	v.SetDefault("remote.dir", "absenteeism-at-work")
	v.SetDefault("remote.settle_delay", 10*time.Second)

	v.SetDefault("skip.infrastructure", false)
	v.SetDefault("skip.docker_build", false)

	v.SetDefault("gateway.host", "localhost")
	v.SetDefault("gateway.port", 7080)
	v.SetDefault("gateway.upstream_url", "http://localhost:8000")
	v.SetDefault("gateway.predict_rps", 5.0)
}

// bindEnv wires the documented environment variables to config keys. The
// names are the operational contract inherited from the shell scripts, so
// they are bound explicitly rather than derived from a prefix.
func bindEnv(v *viper.Viper) {
	bind := func(key string, envVar string) {
		_ = v.BindEnv(key, envVar)
	}

	bind("mode", "DEPLOYMENT_MODE")
	bind("log_level", "LOG_LEVEL")

	bind("paths.raw_data", "RAW_DATA_PATH")
	bind("paths.processed_data", "PROCESSED_DATA_PATH")
	bind("paths.model", "MODEL_PATH")
	bind("paths.requirements", "REQUIREMENTS_FILE")
	bind("paths.venv_dir", "VENV_DIR")
	bind("paths.terraform_dir", "TERRAFORM_DIR")
	bind("paths.registry_dir", "RUN_REGISTRY_DIR")

	bind("docker.image_name", "IMAGE_NAME")
	bind("docker.compose_file", "COMPOSE_FILE")
	bind("docker.log_tail", "DOCKER_LOG_TAIL")

	bind("health.url", "HEALTH_URL")
	bind("health.max_attempts", "HEALTH_MAX_ATTEMPTS")
	bind("health.interval", "HEALTH_INTERVAL")

	bind("aws.region", "AWS_REGION")
	bind("aws.instance_type", "INSTANCE_TYPE")
	bind("aws.access_key_id", "AWS_ACCESS_KEY_ID")
	bind("aws.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	bind("aws.instance_tag_key", "INSTANCE_TAG_KEY")
	bind("aws.instance_tag", "INSTANCE_TAG")
	bind("aws.key_pair_name", "KEY_PAIR_NAME")

	bind("remote.user", "REMOTE_USER")
	bind("remote.ssh_key_path", "SSH_KEY_PATH")
	bind("remote.dir", "REMOTE_DIR")
	bind("remote.settle_delay", "REMOTE_SETTLE_DELAY")

	bind("skip.infrastructure", "SKIP_INFRASTRUCTURE")
	bind("skip.docker_build", "SKIP_DOCKER_BUILD")

	bind("gateway.host", "GATEWAY_HOST")
	bind("gateway.port", "GATEWAY_PORT")
	bind("gateway.upstream_url", "GATEWAY_UPSTREAM_URL")
	bind("gateway.predict_rps", "GATEWAY_PREDICT_RPS")
}
