package events

import (
	. "github.com/berfenger/serial2govee/internal/core/domain"
)

func SerialConnectedUpdateEvent(connected bool) any {
	return BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SERIAL_CONNECTED,
		},
		Value: connected,
	}
}

// TriggerUpdateEvents maps a decoded serial line to sensor updates. Light
// triggers update the last trigger sensor, any other text goes to the UART line sensor.
func TriggerUpdateEvents(trigger Trigger) []any {
	var events []any

	switch trigger.Kind {
	case TriggerOn, TriggerOff:
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_LAST_TRIGGER,
			},
			Value: trigger.Text,
		})
	case TriggerOther:
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_UART_LINE,
			},
			Value: trigger.Text,
		})
	}

	return events
}

func DispatchOutcomeUpdateEvents(outcome DispatchOutcome) []any {
	var events []any

	// Lights switch follows the last requested command, unless no device was there to switch
	if len(outcome.Results) > 0 {
		events = append(events, LightsSwitchUpdateEvent(outcome.Command == COMMAND_ON))
	}
	// Problem sensor
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_DISPATCH_FAILED,
		},
		Value: !outcome.Success(),
	})

	return events
}

func LightsSwitchUpdateEvent(on bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_LIGHTS,
		},
		Value: on,
	}
}
