package actor

import (
	"fmt"
	"time"

	adactor "github.com/berfenger/serial2govee/internal/adapter/actor"
	"github.com/berfenger/serial2govee/internal/config"
	"github.com/berfenger/serial2govee/internal/core/domain"
	. "github.com/berfenger/serial2govee/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type BridgeActorProvider func(*eventstream.EventStream) *SerialBridgeActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	bridgeActor         *actor.PID
	mqttActor           *actor.PID
	bridgeActorProvider BridgeActorProvider
	mqttActorProvider   MQTTActorProvider
	logger              *zap.Logger
}

type healthCheckResult struct {
	expected    []string
	healthy     map[string]bool
	bridgeState string
	respondTo   *actor.PID
}

// NewMasterOfPuppetsActor builds the root actor. mqttActorProvider may be nil
// when MQTT is disabled.
func NewMasterOfPuppetsActor(config config.Config, bridgeActorProvider BridgeActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		bridgeActorProvider: bridgeActorProvider,
		mqttActorProvider:   mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start MQTT child first so it sees the bridge events from the beginning
		if state.mqttEnabled() {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
		}

		// start Bridge child
		bridgeActorPID, err := state.startBridgeActor(ctx)
		if err != nil {
			panic(err)
		}
		state.bridgeActor = bridgeActorPID

		// start HA Discovery
		if state.mqttEnabled() && state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck = newHealthCheckResult(state.children())
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.requestHealth(ctx, state.bridgeActor, domain.ACTOR_ID_BRIDGE)
		if state.mqttActor != nil {
			state.requestHealth(ctx, state.mqttActor, domain.ACTOR_ID_MQTT)
		}

		// children answer or time out first
		ctx.SetReceiveTimeout(state.config.ChildHealthTimeout() + 500*time.Millisecond)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.SetLightsRequest:
		// manual command from HTTP, the bridge replies to the original sender
		state.logger.Debug("master@default SetLightsRequest", zap.String("command", string(msg.Command)))
		ctx.Forward(state.bridgeActor)
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.String("switch", msg.Command.DeviceId), zap.String("payload", msg.Command.Payload), zap.Error(err))
				return
			}
			switch pcmd := cmd.(type) {
			case domain.SetLightsRequest:
				ctx.Send(state.bridgeActor, pcmd)
			}
		}
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("child", msg.Who.Id))
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.record(msg)
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) requestHealth(ctx actor.Context, pid *actor.PID, id string) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, state.config.ChildHealthTimeout()), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
			State:   "unresponsive",
		}
	})
}

func (state *MasterOfPuppetsActor) mqttEnabled() bool {
	return state.config.MQTT.Enable && state.mqttActorProvider != nil
}

func (state *MasterOfPuppetsActor) children() []string {
	children := []string{domain.ACTOR_ID_BRIDGE}
	if state.mqttActor != nil {
		children = append(children, domain.ACTOR_ID_MQTT)
	}
	return children
}

func (state *MasterOfPuppetsActor) startBridgeActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	bridgeProps := actor.PropsFromProducer(func() actor.Actor {
		return state.bridgeActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	bridgeActorPID, err := ctx.SpawnNamed(bridgeProps, domain.ACTOR_ID_BRIDGE)
	if err != nil {
		return nil, err
	}

	return bridgeActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		state.logger.Error("master: hadiscovery failure", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 30*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func newHealthCheckResult(expected []string) healthCheckResult {
	return healthCheckResult{
		expected: expected,
		healthy:  make(map[string]bool, len(expected)),
	}
}

func (state *healthCheckResult) record(resp domain.ActorHealthResponse) {
	state.healthy[resp.Id] = resp.Healthy
	if resp.Id == domain.ACTOR_ID_BRIDGE {
		state.bridgeState = resp.State
	}
}

func (state *healthCheckResult) allReceived() bool {
	return len(state.healthy) == len(state.expected)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   state.bridgeState,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
