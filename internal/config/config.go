// Package config loads flinkctl configuration from defaults, an optional
// flinkctl.yaml, FLINKCTL_* environment variables and bound CLI flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"flinkctl/internal/apperrors"
)

// EnvPrefix namespaces environment overrides: jobmanager.port is read from
// FLINKCTL_JOBMANAGER_PORT.
const EnvPrefix = "FLINKCTL"

// Config is the full configuration tree.
type Config struct {
	JobManager      JobManagerConfig      `mapstructure:"jobmanager"`
	Poll            PollConfig            `mapstructure:"poll"`
	Deploy          DeployConfig          `mapstructure:"deploy"`
	ResourceManager ResourceManagerConfig `mapstructure:"resourcemanager"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Notify          NotifyConfig          `mapstructure:"notify"`
	History         HistoryConfig         `mapstructure:"history"`
	S3              S3Config              `mapstructure:"s3"`
	Server          ServerConfig          `mapstructure:"server"`
}

// JobManagerConfig addresses the job manager REST endpoint.
type JobManagerConfig struct {
	Address   string        `mapstructure:"address"`
	Port      int           `mapstructure:"port"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests/s, 0 = unlimited
	Burst     int           `mapstructure:"burst"`
}

// PollConfig is the retry budget shared by every status wait.
type PollConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetrySleep time.Duration `mapstructure:"retry_sleep"`
	Backoff    string        `mapstructure:"backoff"` // constant | exponential
	MaxSleep   time.Duration `mapstructure:"max_sleep"`
}

// DeployConfig bounds one whole deployment.
type DeployConfig struct {
	Deadline time.Duration `mapstructure:"deadline"` // 0 = none
}

// ResourceManagerConfig addresses the YARN resource manager used for
// session discovery.
type ResourceManagerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

// NotifyConfig configures the deployment webhook. An empty URL disables it.
type NotifyConfig struct {
	URL            string        `mapstructure:"url"`
	SigningKeyFile string        `mapstructure:"signing_key_file"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Buffer         int           `mapstructure:"buffer"`
	Workers        int           `mapstructure:"workers"`
}

// HistoryConfig configures the local deployment history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"` // empty = user config dir
}

// S3Config configures s3:// artifact downloads. Empty fields fall back to
// the standard AWS credential chain.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	MetricsPort       int           `mapstructure:"metrics_port"`
	APIKeyFile        string        `mapstructure:"api_key_file"`
	ShutdownDrainWait time.Duration `mapstructure:"shutdown_drain_wait"` // 0 skips the drain
}

// SetDefaults registers every key with its default. Keys without a default
// are invisible to AutomaticEnv during Unmarshal, so all of them are listed.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("jobmanager.address", "localhost")
	v.SetDefault("jobmanager.port", 8081)
	v.SetDefault("jobmanager.timeout", 30*time.Second)
	v.SetDefault("jobmanager.rate_limit", 0)
	v.SetDefault("jobmanager.burst", 1)

	v.SetDefault("poll.max_retries", 20)
	v.SetDefault("poll.retry_sleep", 2*time.Second)
	v.SetDefault("poll.backoff", "constant")
	v.SetDefault("poll.max_sleep", 30*time.Second)

	v.SetDefault("deploy.deadline", time.Duration(0))

	v.SetDefault("resourcemanager.address", "")
	v.SetDefault("resourcemanager.port", 8088)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("notify.url", "")
	v.SetDefault("notify.signing_key_file", "")
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.buffer", 100)
	v.SetDefault("notify.workers", 2)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dir", "")

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", false)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.api_key_file", "")
	v.SetDefault("server.shutdown_drain_wait", 5*time.Second)
}

// New returns a viper instance with defaults and environment overrides
// wired. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile, or flinkctl.yaml from the working directory and the
// user config dir when configFile is empty, and decodes the merged result.
// A missing default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("flinkctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "flinkctl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component could run with.
func (c *Config) Validate() error {
	if err := validPort("jobmanager.port", c.JobManager.Port); err != nil {
		return err
	}
	if c.JobManager.RateLimit < 0 {
		return apperrors.Validation("jobmanager.rate_limit", "rate limit must not be negative")
	}
	if c.Poll.MaxRetries <= 0 {
		return apperrors.Validation("poll.max_retries", "max retries must be positive")
	}
	if c.Poll.RetrySleep < 0 {
		return apperrors.Validation("poll.retry_sleep", "retry sleep must not be negative")
	}
	switch c.Poll.Backoff {
	case "constant", "exponential":
	default:
		return apperrors.Validation("poll.backoff", fmt.Sprintf("unknown backoff %q (want constant or exponential)", c.Poll.Backoff))
	}
	if c.Deploy.Deadline < 0 {
		return apperrors.Validation("deploy.deadline", "deadline must not be negative")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return apperrors.Validation("logging.format", fmt.Sprintf("unknown log format %q (want console or json)", c.Logging.Format))
	}
	if err := validPort("server.port", c.Server.Port); err != nil {
		return err
	}
	return validPort("server.metrics_port", c.Server.MetricsPort)
}

func validPort(field string, port int) error {
	if port <= 0 || port > 65535 {
		return apperrors.Validation(field, fmt.Sprintf("%s must be between 1 and 65535, got %d", field, port))
	}
	return nil
}
