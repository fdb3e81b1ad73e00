package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/serial2govee/internal/config"
	"github.com/berfenger/serial2govee/internal/core/domain"
	"github.com/berfenger/serial2govee/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	haDiscoveryRetryDelay = 2 * time.Second
)

// HADiscoveryActor publishes the Home Assistant discovery configuration of the
// bridge once the MQTT actor is connected.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	scheduler *scheduler.TimerScheduler
	mqttActor *actor.PID

	logger *zap.Logger
}

type checkMQTTReady struct {
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		ctx.Send(ctx.Self(), checkMQTTReady{})
	case checkMQTTReady:
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@starting ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			// MQTT not connected yet
			state.scheduler.SendOnce(haDiscoveryRetryDelay, ctx.Self(), checkMQTTReady{})
			return
		}
		state.publishDiscovery(ctx)
		state.behavior.Become(state.WaitingPublishReceive)
	default:
		state.logger.Debug("hadiscovery@starting recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) WaitingPublishReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@publishing failed", zap.Error(msg.GetResponseError()))
			panic(msg.GetResponseError())
		}
		state.logger.Info("hadiscovery@publishing discovery published")
		state.behavior.Become(state.Done)
	default:
		state.logger.Debug("hadiscovery@publishing recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context) {
	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)

	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:  domain.BridgeSensors(bridgeDevice),
		Switches: domain.LightSwitches(bridgeDevice),
	}, 5*time.Second), func(err error) any {
		return domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ResponseWithError(err),
		}
	})
}
