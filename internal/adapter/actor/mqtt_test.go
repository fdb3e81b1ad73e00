package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/berfenger/serial2govee/internal/core/domain"
	"github.com/berfenger/serial2govee/internal/core/events"
	"github.com/berfenger/serial2govee/internal/util"
	"github.com/berfenger/serial2govee/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type publishedMessages struct {
	mu       sync.Mutex
	messages map[string]string
}

func (p *publishedMessages) add(topic, payload string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[topic] = payload
}

func (p *publishedMessages) get(topic string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload, ok := p.messages[topic]
	return payload, ok
}

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	context := as.Root

	es := eventstream.EventStream{}
	published := &publishedMessages{messages: map[string]string{}}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, published.add, logger) })
	pid := context.Spawn(props)
	defer context.Stop(pid)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	es.Publish(events.SerialConnectedUpdateEvent(true))
	es.Publish(events.LightsSwitchUpdateEvent(false))
	for _, ev := range events.TriggerUpdateEvents(domain.Trigger{Kind: domain.TriggerOther, Text: "dist=12"}) {
		es.Publish(ev)
	}

	assert.Eventually(t, func() bool {
		_, ok := published.get("serial2govee/sensor/uart_line/state")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	payload, _ := published.get("serial2govee/binary_sensor/serial_connected/state")
	assert.Equal(t, "on", payload)
	payload, _ = published.get("serial2govee/switch/lights/state")
	assert.Equal(t, "off", payload)
	payload, _ = published.get("serial2govee/sensor/uart_line/state")
	assert.Equal(t, "dist=12", payload)
}
