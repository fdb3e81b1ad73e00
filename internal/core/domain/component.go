package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE     = "bridge"
	SENSOR_ID_SERIAL_CONNECTED = "serial_connected"
	SENSOR_ID_LAST_TRIGGER     = "last_trigger"
	SENSOR_ID_UART_LINE        = "uart_line"
	SENSOR_ID_DISPATCH_FAILED  = "dispatch_failed"
	SWITCH_ID_LIGHTS           = "lights"
	DEVICE_CLASS_CONNECTIVITY  = "connectivity"
	DEVICE_CLASS_PROBLEM       = "problem"
	ENTITY_CLASS_DIAGNOSTIC    = "diagnostic"
	SENSOR_TYPE_SENSOR         = "sensor"
	SENSOR_TYPE_BINARY         = "binary_sensor"
)

// DiscoveryDevice describes the bridge itself in Home Assistant discovery messages.
type DiscoveryDevice struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            DiscoveryDevice
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string
	DeviceClass       string // connectivity, problem
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericSwitch struct {
	Device   DiscoveryDevice
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

func BridgeDevice(baseTopic string) DiscoveryDevice {
	return DiscoveryDevice{
		Id:           fmt.Sprintf("serial2govee_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "serial2govee",
		Model:        "Serial to Govee bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Serial2Govee %s", md5HashShort(baseTopic)),
	}
}

func IdDevice(device DiscoveryDevice) DiscoveryDevice {
	return DiscoveryDevice{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridge DiscoveryDevice) []GenericSensor {
	disabled := false
	sensors := []GenericSensor{
		{
			Device:         bridge,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Bridge state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridge.Id, SENSOR_ID_BRIDGE_STATE),
		},
		{
			Id:             SENSOR_ID_SERIAL_CONNECTED,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Serial connected",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridge.Id, SENSOR_ID_SERIAL_CONNECTED),
		},
		{
			Id:         SENSOR_ID_LAST_TRIGGER,
			SensorType: SENSOR_TYPE_SENSOR,
			Name:       "Last trigger",
			Icon:       "mdi:gesture-tap",
			UniqueId:   uniqueId(bridge.Id, SENSOR_ID_LAST_TRIGGER),
		},
		{
			Id:               SENSOR_ID_UART_LINE,
			SensorType:       SENSOR_TYPE_SENSOR,
			Name:             "UART line",
			Icon:             "mdi:serial-port",
			EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
			EnabledByDefault: &disabled,
			UniqueId:         uniqueId(bridge.Id, SENSOR_ID_UART_LINE),
		},
		{
			Id:             SENSOR_ID_DISPATCH_FAILED,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Light command failed",
			DeviceClass:    DEVICE_CLASS_PROBLEM,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridge.Id, SENSOR_ID_DISPATCH_FAILED),
		},
	}
	// only the first component carries the full device description
	for i := 1; i < len(sensors); i++ {
		sensors[i].Device = IdDevice(bridge)
	}
	return sensors
}

func LightSwitches(bridge DiscoveryDevice) []GenericSwitch {
	return []GenericSwitch{
		{
			Device:   IdDevice(bridge),
			Id:       SWITCH_ID_LIGHTS,
			Name:     "Lights",
			Icon:     "mdi:lightbulb-group",
			UniqueId: uniqueId(bridge.Id, SWITCH_ID_LIGHTS),
		},
	}
}

func uniqueId(deviceId, componentId string) string {
	return fmt.Sprintf("%s_%s", deviceId, componentId)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[:8]
}
