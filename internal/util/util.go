package util

import (
	"github.com/berfenger/serial2govee/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Serial: config.SerialConfig{
			Port:                 "scripted",
			Baudrate:             115200,
			ReadTimeoutMillis:    100,
			OpenTimeoutMillis:    500,
			ReconnectDelayMillis: 20,
		},
		Govee: config.GoveeConfig{
			ApiKey:                 "test-key",
			AllowedModel:           "H6006",
			DevicesURL:             config.DEFAULT_DEVICES_URL,
			ControlURL:             config.DEFAULT_CONTROL_URL,
			ControlTimeoutMillis:   1000,
			DiscoveryTimeoutMillis: 1000,
		},
		CooldownMillis: 800,
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "serial2govee",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
