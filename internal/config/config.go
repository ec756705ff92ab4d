// Package config builds the immutable deployment configuration.
//
// All knobs come from environment variables with documented defaults, loaded
// once at startup. An optional key=value environment file is applied to the
// process environment before any defaults, so explicit environment variables
// always win over file entries.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full deployment configuration. It is built once by Load and
// treated as read-only afterwards; stages receive it by value or pointer but
// never mutate it.
type Config struct {
	// Mode selects the pipeline flavor: "local" runs every stage on this
	// host, "remote" provisions EC2 and re-invokes the pipeline there.
	Mode string `mapstructure:"mode"`

	LogLevel string `mapstructure:"log_level"`

	Paths   PathsConfig   `mapstructure:"paths"`
	Docker  DockerConfig  `mapstructure:"docker"`
	Health  HealthConfig  `mapstructure:"health"`
	AWS     AWSConfig     `mapstructure:"aws"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Skip    SkipConfig    `mapstructure:"skip"`
	Gateway GatewayConfig `mapstructure:"gateway"`
}

// PathsConfig holds the convention-based filesystem locations for datasets,
// the model artifact, and supporting files.
type PathsConfig struct {
	RawData       string `mapstructure:"raw_data"`
	ProcessedData string `mapstructure:"processed_data"`
	Model         string `mapstructure:"model"`
	Requirements  string `mapstructure:"requirements"`
	VenvDir       string `mapstructure:"venv_dir"`
	TerraformDir  string `mapstructure:"terraform_dir"`
	RegistryDir   string `mapstructure:"registry_dir"`
}

// DockerConfig controls the container build and start step.
type DockerConfig struct {
	ImageName   string `mapstructure:"image_name"`
	ComposeFile string `mapstructure:"compose_file"`
	LogTail     int    `mapstructure:"log_tail"`
}

// HealthConfig controls health polling against the prediction API.
type HealthConfig struct {
	URL         string        `mapstructure:"url"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

// AWSConfig identifies the cloud region, instance shape, and the tag filter
// used to discover the provisioned instance.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	InstanceType    string `mapstructure:"instance_type"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	InstanceTagKey  string `mapstructure:"instance_tag_key"`
	InstanceTag     string `mapstructure:"instance_tag"`
	KeyPairName     string `mapstructure:"key_pair_name"`
}

// RemoteConfig controls remote-mode dispatch over SSH.
type RemoteConfig struct {
	User        string        `mapstructure:"user"`
	SSHKeyPath  string        `mapstructure:"ssh_key_path"`
	Dir         string        `mapstructure:"dir"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// SkipConfig holds the opt-out switches for expensive steps.
type SkipConfig struct {
	Infrastructure bool `mapstructure:"infrastructure"`
	DockerBuild    bool `mapstructure:"docker_build"`
}

// GatewayConfig configures the local ops gateway that serves the frontend and
// proxies prediction traffic to the model container.
type GatewayConfig struct {
	Host        string  `mapstructure:"host"`
	Port        int     `mapstructure:"port"`
	UpstreamURL string  `mapstructure:"upstream_url"`
	PredictRPS  float64 `mapstructure:"predict_rps"`
}

// Deployment modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch strings.TrimSpace(c.Mode) {
	case ModeLocal, ModeRemote:
	default:
		return fmt.Errorf("DEPLOYMENT_MODE must be %q or %q, got %q", ModeLocal, ModeRemote, c.Mode)
	}

	if c.Mode == ModeRemote && strings.TrimSpace(c.Remote.SSHKeyPath) == "" {
		return fmt.Errorf("remote mode requires SSH_KEY_PATH")
	}

	if c.Health.MaxAttempts < 1 {
		return fmt.Errorf("HEALTH_MAX_ATTEMPTS must be >= 1, got %d", c.Health.MaxAttempts)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL must be positive, got %s", c.Health.Interval)
	}
	return nil
}

// IsRemote reports whether the pipeline should dispatch to EC2.
func (c *Config) IsRemote() bool { return c.Mode == ModeRemote }
