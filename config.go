package perfprobe

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the run configuration read from the environment. Command line
// flags take precedence over it.
type Config struct {
	// ChromePath overrides the browser binary.
	ChromePath string `envconfig:"CHROME_PATH"`

	Port         int           `envconfig:"PERFPROBE_PORT" default:"9222"`
	Profile      string        `envconfig:"PERFPROBE_PROFILE" default:"mobile"`
	Settle       time.Duration `envconfig:"PERFPROBE_SETTLE" default:"1s"`
	LoadTimeout  time.Duration `envconfig:"PERFPROBE_LOAD_TIMEOUT" default:"60s"`
	PollAttempts int           `envconfig:"PERFPROBE_POLL_ATTEMPTS" default:"50"`
	PollInterval time.Duration `envconfig:"PERFPROBE_POLL_INTERVAL" default:"100ms"`

	OTLPEndpoint string `envconfig:"PERFPROBE_OTLP_ENDPOINT"`

	S3Bucket    string `envconfig:"PERFPROBE_S3_BUCKET"`
	S3Endpoint  string `envconfig:"PERFPROBE_S3_ENDPOINT"`
	S3AccessKey string `envconfig:"PERFPROBE_S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"PERFPROBE_S3_SECRET_KEY"`
	S3Region    string `envconfig:"PERFPROBE_S3_REGION"`
}

// LoadConfig reads the configuration from the environment, applying
// defaults for unset variables.
func LoadConfig() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
