package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

var (
	ErrMissingAPIKey = errors.New("GOVEE_API_KEY missing")
)

type Config struct {
	LogLevel       zapcore.Level
	Serial         SerialConfig `mapstructure:"serial"`
	Govee          GoveeConfig  `mapstructure:"govee"`
	CooldownMillis uint32       `mapstructure:"cooldown_ms"`
	MQTT           MQTTConfig   `mapstructure:"mqtt"`
	Port           uint         `mapstructure:"port"`
	HttpLog        bool         `mapstructure:"http_log"`
}

type SerialConfig struct {
	Port                 string
	Baudrate             int
	ReadTimeoutMillis    uint32 `mapstructure:"read_timeout_ms"`
	OpenTimeoutMillis    uint32 `mapstructure:"open_timeout_ms"`
	ReconnectDelayMillis uint32 `mapstructure:"reconnect_delay_ms"`
}

type GoveeConfig struct {
	ApiKey                 string `mapstructure:"api_key"`
	Devices                string
	AllowedModel           string `mapstructure:"allowed_model"`
	DevicesURL             string `mapstructure:"devices_url"`
	ControlURL             string `mapstructure:"control_url"`
	ControlTimeoutMillis   uint32 `mapstructure:"control_timeout_ms"`
	DiscoveryTimeoutMillis uint32 `mapstructure:"discovery_timeout_ms"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMillis) * time.Millisecond
}

func (c SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMillis) * time.Millisecond
}

// ChildHealthTimeout bounds a health check of one actor. The bridge answers
// between two serial reads, so a check must outlast one read.
func (c Config) ChildHealthTimeout() time.Duration {
	return c.Serial.ReadTimeout() + 500*time.Millisecond
}

// HealthCheckTimeout bounds a full health check through the master.
func (c Config) HealthCheckTimeout() time.Duration {
	return c.ChildHealthTimeout() + time.Second
}

func (c SerialConfig) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutMillis) * time.Millisecond
}

func (c SerialConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMillis) * time.Millisecond
}

func (c GoveeConfig) ControlTimeout() time.Duration {
	return time.Duration(c.ControlTimeoutMillis) * time.Millisecond
}

func (c GoveeConfig) DiscoveryTimeout() time.Duration {
	return time.Duration(c.DiscoveryTimeoutMillis) * time.Millisecond
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
