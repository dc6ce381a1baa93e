// Package mqttsource implements the MQTT Source specialization from
// SPEC_FULL.md §4.8: a representative inbound transport, symmetric to
// pkg/httppush's representative outbound Target, built on the same
// Paho MQTT client the teacher's ingestion pipeline uses.
package mqttsource

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds the Paho client configuration for one MQTT Source
// connector, adapted field-for-field from the teacher's
// MQTTClientConfig.
type Config struct {
	BrokerURL          string
	ClientIDPrefix     string
	AllowPublicBroker  bool
	Username           string
	Password           string
	KeepAlive          time.Duration
	ConnectTimeout     time.Duration
	ReconnectWaitMin   time.Duration
	ReconnectWaitMax   time.Duration
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool
	QoS                byte
}

// Env constants for overriding operational settings, mirroring the
// teacher's mqttconverter env-var names with this package's prefix.
const (
	EnvSkipVerify            = "MQTTSOURCE_INSECURE_SKIP_VERIFY"
	EnvKeepAliveSeconds      = "MQTTSOURCE_KEEP_ALIVE_SECONDS"
	EnvConnectTimeoutSeconds = "MQTTSOURCE_CONNECT_TIMEOUT_SECONDS"
)

// LoadConfigWithEnv loads operational defaults, then applies
// environment overrides. BrokerURL and credentials are not read from
// the environment; they stay empty until the caller sets them on the
// returned Config.
func LoadConfigWithEnv() Config {
	cfg := Config{
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReconnectWaitMin: time.Second,
		ReconnectWaitMax: 120 * time.Second,
		ClientIDPrefix:   "connectivity-",
		QoS:              1,
	}
	if v := os.Getenv(EnvSkipVerify); v == "true" {
		cfg.InsecureSkipVerify = true
	}
	if v := os.Getenv(EnvKeepAliveSeconds); v != "" {
		if s, err := time.ParseDuration(v + "s"); err == nil {
			cfg.KeepAlive = s
		} else {
			log.Printf("mqttsource: error parsing keep-alive seconds: %s, using default", err)
		}
	}
	if v := os.Getenv(EnvConnectTimeoutSeconds); v != "" {
		if s, err := time.ParseDuration(v + "s"); err == nil {
			cfg.ConnectTimeout = s
		} else {
			log.Printf("mqttsource: error parsing connect timeout seconds: %s, using default", err)
		}
	}
	return cfg
}

func isTLSBroker(brokerURL string) bool {
	return strings.HasPrefix(strings.ToLower(brokerURL), "tls://")
}

func uniqueClientID(prefix string) string {
	return prefix + strconv.FormatInt(time.Now().UnixNano()%1_000_000, 10)
}
