package connectorconfig_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-connectivity/pkg/connectorconfig"
)

func TestLoadWithEnv_DefaultValuesAreSet(t *testing.T) {
	cfg := connectorconfig.LoadWithEnv()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPPort)
	assert.Equal(t, ":9090", cfg.GRPCPort)
	assert.Equal(t, "connectivity-service", cfg.ServiceName)
	require.Len(t, cfg.MetricsWindows, 3)
	assert.NotEmpty(t, cfg.MQTT.ClientIDPrefix)
}

func TestLoadWithEnv_RootOverridesApply(t *testing.T) {
	t.Setenv(connectorconfig.EnvLogLevel, "debug")
	t.Setenv(connectorconfig.EnvHTTPPort, ":9999")
	t.Setenv(connectorconfig.EnvProjectID, "my-project")
	t.Setenv(connectorconfig.EnvCredentialsFile, "/tmp/creds.json")
	t.Setenv(connectorconfig.EnvRedisAddr, "redis:6379")

	cfg := connectorconfig.LoadWithEnv()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.HTTPPort)
	assert.Equal(t, "my-project", cfg.ProjectID)
	assert.Equal(t, "my-project", cfg.SignalBus.ProjectID)
	assert.Equal(t, "my-project", cfg.Audit.ProjectID)
	assert.Equal(t, "/tmp/creds.json", cfg.CredentialsFile)
	assert.Equal(t, "/tmp/creds.json", cfg.SignalBus.CredentialsFile)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadWithEnv_SubConfigsLoadTheirOwnOverrides(t *testing.T) {
	t.Setenv("MQTTSOURCE_KEEP_ALIVE_SECONDS", "30")
	t.Setenv("HTTPPUSH_TIMEOUT", "2s")

	cfg := connectorconfig.LoadWithEnv()

	assert.Equal(t, 30*time.Second, cfg.MQTT.KeepAlive)
	assert.Equal(t, 2*time.Second, cfg.HTTPPush.Timeout)
}
