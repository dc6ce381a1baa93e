// Package connectorconfig assembles the top-level configuration for
// the connectivity-service process: one struct per collaborator the
// supervisor wires together, loaded the teacher's way — YAML-tagged
// struct fields for an optional config file, with environment
// variables able to override individual settings, mirroring the
// teacher's BaseConfig and its MQTT client config loader (see
// DESIGN.md). Loading an actual YAML file is left to the caller (e.g.
// via os.ReadFile + a YAML decoder) since no example repo in the
// corpus does file-based config loading; what this package owns is
// the struct shape and the env-var override layer.
package connectorconfig

import (
	"os"
	"time"

	"github.com/illmade-knight/go-connectivity/pkg/client"
	"github.com/illmade-knight/go-connectivity/pkg/httppush"
	"github.com/illmade-knight/go-connectivity/pkg/mqttsource"
	"github.com/illmade-knight/go-connectivity/pkg/signalbus"
)

// Config is the root configuration document, equivalent in spirit to
// the teacher's BaseConfig but scoped to the connectivity service's
// own collaborators.
type Config struct {
	LogLevel        string `yaml:"log_level"`
	HTTPPort        string `yaml:"http_port"`
	GRPCPort        string `yaml:"grpc_port"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	ServiceName     string `yaml:"service_name"`
	InstanceSuffix  string `yaml:"instance_suffix"`

	MQTT      mqttsource.Config                       `yaml:"mqtt"`
	HTTPPush  httppush.FlowConfig                      `yaml:"http_push"`
	SignalBus signalbus.PubsubBusConfig                `yaml:"signal_bus"`
	Redis     client.RedisReachabilityCacheConfig      `yaml:"redis"`
	Audit     client.FirestoreTransitionAuditorConfig  `yaml:"audit"`

	MetricsWindows []time.Duration `yaml:"metrics_windows"`
}

// Env constants for overriding the root-level settings. The MQTT and
// HTTPPush sub-configs load and override their own env vars via their
// own LoadConfigWithEnv/NewFlowConfigDefaults constructors; SignalBus
// and Audit have no env loader and only receive ProjectID and
// CredentialsFile from the root settings.
const (
	EnvLogLevel        = "CONNECTIVITY_LOG_LEVEL"
	EnvHTTPPort        = "CONNECTIVITY_HTTP_PORT"
	EnvGRPCPort        = "CONNECTIVITY_GRPC_PORT"
	EnvProjectID       = "CONNECTIVITY_PROJECT_ID"
	EnvCredentialsFile = "CONNECTIVITY_CREDENTIALS_FILE"
	EnvRedisAddr       = "CONNECTIVITY_REDIS_ADDR"
)

// DefaultMetricsWindows are the metric windows (1m, 1h, 1d) absent an
// explicit override, the same as slidingwindow.DefaultWindows.
var DefaultMetricsWindows = []time.Duration{time.Minute, time.Hour, 24 * time.Hour}

// LoadWithEnv builds a Config from sensible defaults plus the MQTT and
// HTTPPush sub-configs' own env-var overrides, then applies the
// root-level overrides on top, exactly the layering
// LoadMQTTClientConfigWithEnv uses for a single collaborator.
func LoadWithEnv() Config {
	cfg := Config{
		LogLevel:       "info",
		HTTPPort:       ":8080",
		GRPCPort:       ":9090",
		ServiceName:    "connectivity-service",
		MQTT:           mqttsource.LoadConfigWithEnv(),
		HTTPPush:       httppush.NewFlowConfigDefaults(),
		MetricsWindows: DefaultMetricsWindows,
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvHTTPPort); v != "" {
		cfg.HTTPPort = v
	}
	if v := os.Getenv(EnvGRPCPort); v != "" {
		cfg.GRPCPort = v
	}
	if v := os.Getenv(EnvProjectID); v != "" {
		cfg.ProjectID = v
	}
	if v := os.Getenv(EnvCredentialsFile); v != "" {
		cfg.CredentialsFile = v
	}

	cfg.SignalBus.ProjectID = cfg.ProjectID
	cfg.SignalBus.CredentialsFile = cfg.CredentialsFile
	cfg.Audit.ProjectID = cfg.ProjectID
	cfg.Audit.CredentialsFile = cfg.CredentialsFile

	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}

	return cfg
}
