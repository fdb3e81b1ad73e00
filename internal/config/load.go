package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DEFAULT_DEVICES_URL = "https://openapi.api.govee.com/router/api/v1/user/devices"
	DEFAULT_CONTROL_URL = "https://developer-api.govee.com/v1/devices/control"
)

// env names kept compatible with existing .env files of the bridge
var envAliases = map[string]string{
	"serial.port":         "SERIAL_PORT",
	"serial.baudrate":     "BAUDRATE",
	"govee.api_key":       "GOVEE_API_KEY",
	"govee.devices":       "GOVEE_DEVICES",
	"govee.allowed_model": "ALLOWED_MODEL",
	"cooldown_ms":         "COOLDOWN_MS",
	"log_level":           "LOG_LEVEL",
	"port":                "PORT",
}

// Load reads .env (ENV_FILE, default ".env"), the optional CONFIG_FILE and the
// environment, and returns a validated configuration.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("serial2govee")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	// if defined, try to load config from file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates a configuration from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = parseLogLevel(v.GetString("log_level"))

	cfg.Govee.ApiKey = strings.TrimSpace(cfg.Govee.ApiKey)
	cfg.Govee.Devices = strings.TrimSpace(cfg.Govee.Devices)
	cfg.Govee.AllowedModel = strings.ToUpper(strings.TrimSpace(cfg.Govee.AllowedModel))

	if cfg.Govee.ApiKey == "" {
		return nil, ErrMissingAPIKey
	}

	// check bounds
	if cfg.Serial.Port == "" {
		return nil, errors.New("config param serial.port must not be empty")
	}
	if cfg.Serial.Baudrate <= 0 {
		return nil, errors.New("config param serial.baudrate should be > 0")
	}
	if cfg.Serial.ReadTimeoutMillis < 100 || cfg.Serial.ReadTimeoutMillis > 10000 {
		return nil, errors.New("config param serial.read_timeout_ms should be between 100 and 10000")
	}
	if cfg.Serial.ReconnectDelayMillis < 100 {
		return nil, errors.New("config param serial.reconnect_delay_ms should be >= 100")
	}
	if cfg.Govee.ControlTimeoutMillis == 0 || cfg.Govee.DiscoveryTimeoutMillis == 0 {
		return nil, errors.New("config params govee.control_timeout_ms and govee.discovery_timeout_ms should be > 0")
	}

	if cfg.MQTT.Enable {
		// check and fix base topic
		baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic

		// check and fix homeassistant discovery topic
		haTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.HADiscoveryTopic = haTopic
	}

	return &cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("serial.port", defaultSerialPort())
	v.SetDefault("serial.baudrate", 115200)
	v.SetDefault("serial.read_timeout_ms", 1000)
	v.SetDefault("serial.open_timeout_ms", 5000)
	v.SetDefault("serial.reconnect_delay_ms", 3000)
	v.SetDefault("govee.api_key", "")
	v.SetDefault("govee.devices", "")
	v.SetDefault("govee.allowed_model", "H6006")
	v.SetDefault("govee.devices_url", DEFAULT_DEVICES_URL)
	v.SetDefault("govee.control_url", DEFAULT_CONTROL_URL)
	v.SetDefault("govee.control_timeout_ms", 8000)
	v.SetDefault("govee.discovery_timeout_ms", 10000)
	v.SetDefault("cooldown_ms", 800)
	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "serial2govee")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	c.Govee.ApiKey = "*redacted*"
	c.MQTT.Username = "*redacted*"
	c.MQTT.Password = "*redacted*"
	return c
}

func defaultSerialPort() string {
	if runtime.GOOS == "windows" {
		return "COM5"
	}
	return "/dev/ttyUSB0"
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}
