package events

import (
	"testing"

	"github.com/berfenger/serial2govee/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestTriggerUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	evs := TriggerUpdateEvents(domain.Trigger{Kind: domain.TriggerOn, Text: "LIGHTS_ON"})
	assert.Len(evs, 1)
	ev, ok := evs[0].(domain.TextSensorUpdateEvent)
	assert.True(ok)
	assert.Equal(domain.SENSOR_ID_LAST_TRIGGER, ev.SensorId())
	assert.Equal("LIGHTS_ON", ev.Value)

	evs = TriggerUpdateEvents(domain.Trigger{Kind: domain.TriggerOther, Text: "distance=42"})
	assert.Len(evs, 1)
	assert.Equal(domain.SENSOR_ID_UART_LINE, evs[0].(domain.TextSensorUpdateEvent).SensorId())

	assert.Empty(TriggerUpdateEvents(domain.Trigger{Kind: domain.TriggerNone}))
}

func TestDispatchOutcomeUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	outcome := domain.DispatchOutcome{
		Command: domain.COMMAND_ON,
		Results: []domain.DeviceResult{
			{Device: domain.Device{ID: "a", Model: "H6006"}, Success: true, Detail: "ok"},
			{Device: domain.Device{ID: "b", Model: "H6006"}, Success: false, Detail: "HTTP 500: x"},
		},
	}

	evs := DispatchOutcomeUpdateEvents(outcome)
	assert.Len(evs, 2)
	assert.Equal(domain.SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SWITCH_ID_LIGHTS},
		Value:                  true,
	}, evs[0])
	assert.Equal(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_DISPATCH_FAILED},
		Value:                  true,
	}, evs[1])
}

func TestDispatchOutcomeWithoutDevicesKeepsSwitch(t *testing.T) {

	assert := assert.New(t)

	evs := DispatchOutcomeUpdateEvents(domain.DispatchOutcome{Command: domain.COMMAND_ON})
	assert.Len(evs, 1)
	assert.Equal(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_DISPATCH_FAILED},
		Value:                  false,
	}, evs[0])
}
