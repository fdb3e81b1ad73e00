package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/serial2govee/internal/core/domain"
	"github.com/berfenger/serial2govee/internal/core/service"
	"github.com/berfenger/serial2govee/internal/serial"
	"github.com/berfenger/serial2govee/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testDevices = []domain.Device{
	{ID: "aa:aa:aa:aa:aa:01", Model: "H6006"},
	{ID: "aa:aa:aa:aa:aa:02", Model: "H6006"},
}

type fakeController struct {
	mu       sync.Mutex
	commands []domain.Command
	started  []time.Time
	fail     map[string]bool
	// delay simulates a slow vendor API, cut short when ctx is done
	delay time.Duration
}

func (c *fakeController) Turn(ctx context.Context, device domain.Device, cmd domain.Command) error {
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	c.started = append(c.started, time.Now())
	fail := c.fail[device.ID]
	delay := c.delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errors.New("HTTP 500: boom")
	}
	return nil
}

func (c *fakeController) StartedAfter(t time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, started := range c.started {
		if started.After(t) {
			n++
		}
	}
	return n
}

func (c *fakeController) Commands() []domain.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Command(nil), c.commands...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(ev any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Events() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

type bridgeFixture struct {
	as         *actor.ActorSystem
	pid        *actor.PID
	controller *fakeController
	recorder   *eventRecorder
}

func startBridge(t *testing.T, opener *serial.ScriptedOpener, configure func(*SerialBridgeActor)) *bridgeFixture {
	return startBridgeWithController(t, opener, &fakeController{}, configure)
}

func startBridgeWithController(t *testing.T, opener *serial.ScriptedOpener, controller *fakeController, configure func(*SerialBridgeActor)) *bridgeFixture {
	return startBridgeWithDevices(t, context.Background(), opener, controller, testDevices, configure)
}

func startBridgeWithDevices(t *testing.T, ctx context.Context, opener *serial.ScriptedOpener, controller *fakeController,
	devices []domain.Device, configure func(*SerialBridgeActor)) *bridgeFixture {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	f := &bridgeFixture{
		as:         actor.NewActorSystem(),
		controller: controller,
		recorder:   &eventRecorder{},
	}
	es := &eventstream.EventStream{}
	es.Subscribe(f.recorder.record)

	props := actor.PropsFromProducer(func() actor.Actor {
		act := NewSerialBridgeActor(ctx, &cfg, opener, f.controller, devices, es, logger)
		if configure != nil {
			configure(act)
		}
		return act
	})
	f.pid = f.as.Root.Spawn(props)
	t.Cleanup(func() {
		_ = f.as.Root.StopFuture(f.pid).Wait()
		f.as.Shutdown()
	})
	return f
}

func (f *bridgeFixture) health(t *testing.T) domain.ActorHealthResponse {
	res, err := f.as.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	return resp
}

func (f *bridgeFixture) isListening() bool {
	return f.healthyWithin(time.Second)
}

func (f *bridgeFixture) healthyWithin(timeout time.Duration) bool {
	res, err := f.as.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, timeout).Result()
	if err != nil {
		return false
	}
	resp, ok := res.(domain.ActorHealthResponse)
	return ok && resp.Healthy
}

func manyDevices(n int) []domain.Device {
	devices := make([]domain.Device, 0, n)
	for i := 0; i < n; i++ {
		devices = append(devices, domain.Device{ID: fmt.Sprintf("aa:aa:aa:aa:aa:%02x", i), Model: "H6006"})
	}
	return devices
}

func textEvents(events []any, sensorId string) []string {
	var values []string
	for _, ev := range events {
		if text, ok := ev.(domain.TextSensorUpdateEvent); ok && text.SensorId() == sensorId {
			values = append(values, text.Value)
		}
	}
	return values
}

func TestBridgeCooldownSkipsSecondTrigger(t *testing.T) {

	transport := serial.NewScriptedTransport(
		serial.Line("LIGHTS_ON\r\n"),
		serial.Line("LIGHTS_ON\n"),
		serial.Line("hello\n"),
		serial.Line("   \n"),
	)
	f := startBridge(t, serial.NewScriptedOpener(serial.OpenResult{Transport: transport}), nil)

	require.Eventually(t, func() bool { return transport.Remaining() == 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// one command per device, the second trigger fell inside the cooldown window
	assert.Equal(t, []domain.Command{domain.COMMAND_ON, domain.COMMAND_ON}, f.controller.Commands())

	events := f.recorder.Events()
	assert.Equal(t, []string{"hello"}, textEvents(events, domain.SENSOR_ID_UART_LINE), "passthrough text")
	assert.Equal(t, []string{"LIGHTS_ON", "LIGHTS_ON"}, textEvents(events, domain.SENSOR_ID_LAST_TRIGGER))

	health := f.health(t)
	assert.True(t, health.Healthy)
	assert.Equal(t, "listening", health.State)
}

func TestBridgeTriggersOutsideCooldown(t *testing.T) {

	transport := serial.NewScriptedTransport(
		serial.Line("LIGHTS_ON\n"),
		serial.Line("LIGHTS_OFF\n"),
		serial.Line("LIGHTS_ON\n"),
	)

	base := time.Now()
	var clockMu sync.Mutex
	ticks := 0
	fakeNow := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		ticks++
		// 0ms, 900ms, 1300ms: the last one is 400ms after the previous action
		offsets := []time.Duration{0, 900 * time.Millisecond, 1300 * time.Millisecond}
		return base.Add(offsets[min(ticks, len(offsets))-1])
	}

	f := startBridge(t, serial.NewScriptedOpener(serial.OpenResult{Transport: transport}), func(act *SerialBridgeActor) {
		act.now = fakeNow
	})

	require.Eventually(t, func() bool { return transport.Remaining() == 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []domain.Command{
		domain.COMMAND_ON, domain.COMMAND_ON,
		domain.COMMAND_OFF, domain.COMMAND_OFF,
	}, f.controller.Commands())
}

func TestBridgePartialFailureArmsCooldown(t *testing.T) {

	transport := serial.NewScriptedTransport(
		serial.Line("LIGHTS_OFF\n"),
		serial.Line("LIGHTS_ON\n"),
	)
	controller := &fakeController{fail: map[string]bool{testDevices[0].ID: true}}
	f := startBridgeWithController(t, serial.NewScriptedOpener(serial.OpenResult{Transport: transport}), controller, nil)

	require.Eventually(t, func() bool { return transport.Remaining() == 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []domain.Command{domain.COMMAND_OFF, domain.COMMAND_OFF}, f.controller.Commands())

	failed := false
	for _, ev := range f.recorder.Events() {
		if b, ok := ev.(domain.BinarySensorUpdateEvent); ok && b.SensorId() == domain.SENSOR_ID_DISPATCH_FAILED {
			failed = b.Value
		}
	}
	assert.True(t, failed)
}

func TestBridgeReconnects(t *testing.T) {

	broken := serial.NewScriptedTransport(serial.Failure(errors.New("device unplugged")))
	healthy := serial.NewScriptedTransport(serial.Line("LIGHTS_ON\n"))
	opener := serial.NewScriptedOpener(
		serial.OpenResult{Err: errors.New("port busy")},
		serial.OpenResult{Err: errors.New("port busy")},
		serial.OpenResult{Transport: broken},
		serial.OpenResult{Transport: healthy},
	)
	f := startBridge(t, opener, nil)

	require.Eventually(t, func() bool { return healthy.Remaining() == 0 }, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 4, opener.Attempts())
	assert.True(t, broken.Closed(), "failed handle is closed before reconnecting")
	assert.False(t, healthy.Closed())
	require.Eventually(t, func() bool { return len(f.controller.Commands()) == 2 }, time.Second, 10*time.Millisecond)

	var connected []bool
	for _, ev := range f.recorder.Events() {
		if b, ok := ev.(domain.BinarySensorUpdateEvent); ok && b.SensorId() == domain.SENSOR_ID_SERIAL_CONNECTED {
			connected = append(connected, b.Value)
		}
	}
	assert.Equal(t, []bool{true, false, true}, connected)
}

func TestBridgeRetriesForever(t *testing.T) {

	opener := serial.NewScriptedOpener()
	f := startBridge(t, opener, nil)

	require.Eventually(t, func() bool { return opener.Attempts() >= 5 }, 2*time.Second, 10*time.Millisecond)

	health := f.health(t)
	assert.False(t, health.Healthy)
	assert.Equal(t, "disconnected", health.State)
}

func TestBridgeManualCommand(t *testing.T) {

	require := require.New(t)

	f := startBridge(t, serial.NewScriptedOpener(), nil)

	res, err := f.as.Root.RequestFuture(f.pid, domain.SetLightsRequest{Command: domain.COMMAND_OFF}, 2*time.Second).Result()
	require.NoError(err)
	resp, ok := res.(domain.SetLightsResponse)
	require.True(ok)

	assert.True(t, resp.Outcome.Success())
	assert.Equal(t, domain.COMMAND_OFF, resp.Outcome.Command)
	assert.Len(t, resp.Outcome.Results, len(testDevices))
}

func TestBridgeStopClosesTransport(t *testing.T) {

	transport := serial.NewScriptedTransport()
	f := startBridge(t, serial.NewScriptedOpener(serial.OpenResult{Transport: transport}), nil)

	require.Eventually(t, f.isListening, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, f.as.Root.StopFuture(f.pid).Wait())
	assert.True(t, transport.Closed())
}

func TestBridgeStopDuringDispatchStopsWrites(t *testing.T) {

	transport := serial.NewScriptedTransport(serial.Line("LIGHTS_ON\n"))
	controller := &fakeController{delay: 200 * time.Millisecond}
	f := startBridgeWithDevices(t, context.Background(), serial.NewScriptedOpener(serial.OpenResult{Transport: transport}),
		controller, manyDevices(10), nil)

	require.Eventually(t, func() bool { return len(controller.Commands()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	stoppedAt := time.Now()
	require.NoError(t, f.as.Root.StopFuture(f.pid).Wait())
	assert.Less(t, time.Since(stoppedAt), 500*time.Millisecond, "stop does not wait for the fan-out")

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, controller.StartedAfter(stoppedAt), "no device written after stop")
	assert.Len(t, controller.Commands(), 1)
	assert.True(t, transport.Closed())
}

func TestBridgeInterruptCancelsManualCommand(t *testing.T) {

	require := require.New(t)

	interrupted, interrupt := context.WithCancel(context.Background())
	defer interrupt()
	controller := &fakeController{delay: 200 * time.Millisecond}
	devices := manyDevices(10)
	f := startBridgeWithDevices(t, interrupted, serial.NewScriptedOpener(), controller, devices, nil)

	future := f.as.Root.RequestFuture(f.pid, domain.SetLightsRequest{Command: domain.COMMAND_OFF}, 2*time.Second)
	require.Eventually(func() bool { return len(controller.Commands()) >= 1 }, time.Second, 5*time.Millisecond)
	interrupt()

	res, err := future.Result()
	require.NoError(err)
	resp, ok := res.(domain.SetLightsResponse)
	require.True(ok)

	require.Len(resp.Outcome.Results, len(devices))
	assert.Equal(t, len(devices), resp.Outcome.Failed())
	for _, r := range resp.Outcome.Results[1:] {
		assert.Equal(t, service.DETAIL_CANCELLED, r.Detail)
	}
	assert.Len(t, controller.Commands(), 1, "no writes after the interrupt")
}

func TestBridgeAnswersHealthDuringDispatch(t *testing.T) {

	transport := serial.NewScriptedTransport(serial.Line("LIGHTS_ON\n"))
	controller := &fakeController{delay: 200 * time.Millisecond}
	f := startBridgeWithDevices(t, context.Background(), serial.NewScriptedOpener(serial.OpenResult{Transport: transport}),
		controller, manyDevices(5), nil)

	require.Eventually(t, func() bool { return len(controller.Commands()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	resp := f.health(t)
	assert.True(t, resp.Healthy)
	assert.Equal(t, "listening", resp.State)
	assert.Less(t, len(controller.Commands()), 5, "answered while devices are still written")

	// further lines wait for the fan-out, then the bridge keeps listening
	require.Eventually(t, func() bool { return len(controller.Commands()) == 5 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, f.isListening, time.Second, 20*time.Millisecond)
}

func TestBridgeHealthWithDefaultReadTimeout(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.Serial.ReadTimeoutMillis = 1000

	// an idle port blocks every read for the full read timeout
	transport := serial.NewScriptedTransport()
	transport.IdleDelay = cfg.Serial.ReadTimeout()
	f := startBridge(t, serial.NewScriptedOpener(serial.OpenResult{Transport: transport}), nil)

	require.Eventually(t, func() bool { return f.healthyWithin(cfg.ChildHealthTimeout()) }, 5*time.Second, 50*time.Millisecond)

	for i := 0; i < 6; i++ {
		assert.True(t, f.healthyWithin(cfg.ChildHealthTimeout()), "health check %d", i)
		time.Sleep(500 * time.Millisecond)
	}
}

func TestMasterHealthWithDefaultReadTimeout(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.Serial.ReadTimeoutMillis = 1000

	transport := serial.NewScriptedTransport()
	transport.IdleDelay = cfg.Serial.ReadTimeout()
	f := startMaster(t, cfg, serial.NewScriptedOpener(serial.OpenResult{Transport: transport}))

	healthy := func() bool {
		res, err := f.as.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, cfg.HealthCheckTimeout()).Result()
		if err != nil {
			return false
		}
		resp, ok := res.(domain.ActorHealthResponse)
		return ok && resp.Healthy
	}
	require.Eventually(t, healthy, 5*time.Second, 50*time.Millisecond)

	for i := 0; i < 6; i++ {
		assert.True(t, healthy(), "health check %d", i)
		time.Sleep(500 * time.Millisecond)
	}
}
