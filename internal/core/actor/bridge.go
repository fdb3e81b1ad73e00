package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/serial2govee/internal/config"
	"github.com/berfenger/serial2govee/internal/core/domain"
	"github.com/berfenger/serial2govee/internal/core/events"
	"github.com/berfenger/serial2govee/internal/core/port"
	"github.com/berfenger/serial2govee/internal/core/service"
	. "github.com/berfenger/serial2govee/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

var errOpenAbandoned = errors.New("serial open finished after timeout")

// SerialBridgeActor owns the serial transport and turns trigger lines into
// light commands sent to every registered device. Fan-outs run in background,
// one at a time, and are cancelled when ctx is done or the actor stops.
type SerialBridgeActor struct {
	ActorWithStates
	ctx            context.Context
	cancelDispatch context.CancelFunc
	stash          *Stash
	scheduler      *scheduler.TimerScheduler
	opener         port.TransportOpener
	transport      port.LineTransport
	dispatcher     *service.CommandDispatcher
	gate           *service.CooldownGate
	devices        []domain.Device
	eventStream    *eventstream.EventStream
	openTimeout    time.Duration
	reconnectDelay time.Duration
	attempt        uint64
	now            func() time.Time

	logger *zap.Logger
}

type connectAttempt struct {
}

type transportOpened struct {
	attempt   uint64
	transport port.LineTransport
	err       error
}

type readLine struct {
}

type dispatchDone struct {
	outcome     domain.DispatchOutcome
	fromTrigger bool
	replyTo     *actor.PID
}

func NewSerialBridgeActor(ctx context.Context, cfg *config.Config, opener port.TransportOpener, controller port.DeviceController,
	devices []domain.Device, eventStream *eventstream.EventStream, logger *zap.Logger) *SerialBridgeActor {
	act := &SerialBridgeActor{
		ActorWithStates: NewActorWithStates(),
		ctx:             ctx,
		stash:           &Stash{},
		opener:          opener,
		dispatcher:      service.NewCommandDispatcher(controller, cfg.Govee.ControlTimeout(), logger),
		gate:            service.NewCooldownGate(cfg.Cooldown()),
		devices:         devices,
		eventStream:     eventStream,
		openTimeout:     cfg.Serial.OpenTimeout(),
		reconnectDelay:  cfg.Serial.ReconnectDelay(),
		now:             time.Now,
		logger:          ActorLogger(domain.ACTOR_ID_BRIDGE, logger),
	}
	act.Become(DisconnectedState{
		actor: act,
	})
	return act
}

func (state *SerialBridgeActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Disconnected state

type DisconnectedState struct {
	ActorState
	actor   *SerialBridgeActor
	opening bool
}

func (state DisconnectedState) Name() string {
	return "disconnected"
}

func (state DisconnectedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("bridge@disconnected started", zap.String("transport", state.actor.opener.Name()))
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		ctx.Send(ctx.Self(), connectAttempt{})
	case connectAttempt:
		if state.opening {
			return
		}
		state.actor.openTransport(ctx)
		state.actor.Become(DisconnectedState{
			actor:   state.actor,
			opening: true,
		})
	case transportOpened:
		if msg.attempt != state.actor.attempt {
			// stale result of an earlier incarnation
			if msg.transport != nil {
				msg.transport.Close()
			}
			return
		}
		if msg.err != nil {
			state.actor.logger.Error("bridge@disconnected serial open failed",
				zap.String("transport", state.actor.opener.Name()),
				zap.Duration("retry_in", state.actor.reconnectDelay),
				zap.Error(msg.err))
			state.actor.scheduleReconnect(ctx)
			state.actor.Become(DisconnectedState{
				actor: state.actor,
			})
			return
		}
		state.actor.transport = msg.transport
		state.actor.Become(ConnectedState{
			actor: state.actor,
		}.OnEnter(ctx))
	default:
		state.actor.receiveAnyState(ctx, state.Name())
	}
}

// Connected state

type ConnectedState struct {
	ActorState
	actor *SerialBridgeActor
}

func (state ConnectedState) Name() string {
	return "connected"
}

func (state ConnectedState) OnEnter(ctx actor.Context) ConnectedState {
	state.actor.logger.Info("bridge@connected listening", zap.String("transport", state.actor.opener.Name()))
	state.actor.eventStream.Publish(events.SerialConnectedUpdateEvent(true))
	ctx.Send(ctx.Self(), readLine{})
	return state
}

func (state ConnectedState) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case readLine:
		listening := ListeningState{
			actor: state.actor,
		}
		state.actor.Become(listening)
		listening.Receive(ctx)
	default:
		state.actor.receiveAnyState(ctx, state.Name())
	}
}

// Listening state

type ListeningState struct {
	ActorState
	actor *SerialBridgeActor
}

func (state ListeningState) Name() string {
	return "listening"
}

func (state ListeningState) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case readLine:
		line, err := state.actor.transport.ReadLine()
		if err != nil {
			state.actor.logger.Error("bridge@listening serial error",
				zap.Duration("retry_in", state.actor.reconnectDelay),
				zap.Error(err))
			state.actor.closeTransport()
			state.actor.eventStream.Publish(events.SerialConnectedUpdateEvent(false))
			state.actor.scheduleReconnect(ctx)
			state.actor.Become(DisconnectedState{
				actor: state.actor,
			})
			return
		}
		if line != nil {
			state.actor.handleTrigger(ctx, service.DecodeTrigger(line))
		}
		ctx.Send(ctx.Self(), readLine{})
	default:
		state.actor.receiveAnyState(ctx, state.Name())
	}
}

// Dispatching state, stacked on top of the state that started the fan-out

type DispatchingState struct {
	ActorState
	actor    *SerialBridgeActor
	previous string
}

func (state DispatchingState) Name() string {
	return "dispatching"
}

func (state DispatchingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case dispatchDone:
		state.actor.finishDispatch(ctx, msg)
	case domain.ActorHealthRequest:
		// the serial side keeps its state while devices are written
		state.actor.respondHealth(ctx, msg, state.previous)
	case *actor.Restarting, *actor.Stopping:
		state.actor.receiveAnyState(ctx, state.Name())
	default:
		// reads, reconnects and further commands wait for the running fan-out
		state.actor.logger.Debug("bridge@dispatching stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Terminated state

type TerminatedState struct {
	ActorState
	actor *SerialBridgeActor
}

func (state TerminatedState) Name() string {
	return "terminated"
}

func (state TerminatedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case transportOpened:
		if msg.transport != nil {
			msg.transport.Close()
		}
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx, msg, state.Name())
	case dispatchDone:
		// fan-out cancelled by the stop
	}
}

// messages handled the same way in every live state
func (state *SerialBridgeActor) receiveAnyState(ctx actor.Context, stateName string) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug(fmt.Sprintf("bridge@%s ActorHealthRequest", stateName))
		state.respondHealth(ctx, msg, stateName)
	case domain.SetLightsRequest:
		state.logger.Info(fmt.Sprintf("bridge@%s manual command", stateName), zap.String("command", string(msg.Command)))
		state.startDispatch(ctx, msg.Command, false, ForRequest(msg).ReplyTo(ctx))
	case transportOpened:
		// late result after a restart
		if msg.transport != nil {
			msg.transport.Close()
		}
	case readLine, connectAttempt:
	case *actor.Restarting:
		state.logger.Debug(fmt.Sprintf("bridge@%s restarting", stateName))
		state.stopDispatch()
		state.closeTransport()
	case *actor.Stopping:
		state.logger.Debug(fmt.Sprintf("bridge@%s stopping", stateName))
		state.stopDispatch()
		state.closeTransport()
		state.Become(TerminatedState{
			actor: state,
		})
	default:
		state.logger.Debug(fmt.Sprintf("bridge@%s recv", stateName), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SerialBridgeActor) respondHealth(ctx actor.Context, req domain.ActorHealthRequest, stateName string) {
	ForRequest(req).Respond(ctx, domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_BRIDGE,
		Healthy: stateName == ListeningState{}.Name(),
		State:   stateName,
	})
}

func (state *SerialBridgeActor) handleTrigger(ctx actor.Context, trigger domain.Trigger) {
	for _, ev := range events.TriggerUpdateEvents(trigger) {
		state.eventStream.Publish(ev)
	}

	cmd, ok := trigger.Command()
	if !ok {
		if trigger.Kind == domain.TriggerOther {
			state.logger.Info("bridge@listening uart", zap.String("line", trigger.Text))
		}
		return
	}

	now := state.now()
	if !state.gate.Allow(now) {
		last, _ := state.gate.LastAction()
		state.logger.Info("bridge@listening skip (cooldown)",
			zap.String("trigger", trigger.Text),
			zap.Duration("since_last", now.Sub(last)))
		return
	}

	state.logger.Info("bridge@listening trigger", zap.String("trigger", trigger.Text))
	// the gate is armed whatever the outcome, no other trigger is read before the fan-out ends
	state.gate.Record(now)
	state.startDispatch(ctx, cmd, true, nil)
}

// startDispatch runs the fan-out in background and stacks the dispatching state
// until its outcome comes back.
func (state *SerialBridgeActor) startDispatch(ctx actor.Context, cmd domain.Command, fromTrigger bool, replyTo *actor.PID) {
	dispatchCtx, cancel := context.WithCancel(state.ctx)
	state.cancelDispatch = cancel
	dispatcher := state.dispatcher
	devices := state.devices

	NewBackgroundTask(ctx, func() (*dispatchDone, error) {
		return &dispatchDone{
			outcome:     dispatcher.SendToAll(dispatchCtx, devices, cmd),
			fromTrigger: fromTrigger,
			replyTo:     replyTo,
		}, nil
	}).Recover(func(err error) dispatchDone {
		return dispatchDone{
			outcome:     failedOutcome(devices, cmd, err),
			fromTrigger: fromTrigger,
			replyTo:     replyTo,
		}
	}).PipeTo(ctx.Self())

	state.BecomeStacked(DispatchingState{
		actor:    state,
		previous: state.StateName(),
	})
}

func (state *SerialBridgeActor) finishDispatch(ctx actor.Context, done dispatchDone) {
	state.stopDispatch()

	outcome := done.outcome
	for _, ev := range events.DispatchOutcomeUpdateEvents(outcome) {
		state.eventStream.Publish(ev)
	}
	if done.fromTrigger && !outcome.Success() {
		state.logger.Warn("bridge@dispatching not all devices accepted the command",
			zap.String("command", string(outcome.Command)),
			zap.Int("failed", outcome.Failed()),
			zap.Int("devices", len(outcome.Results)))
	}
	if done.replyTo != nil {
		ctx.Send(done.replyTo, domain.SetLightsResponse{
			Outcome: outcome,
		})
	}

	state.UnbecomeStacked()
	if pending := state.stash.Len(); pending > 0 {
		state.logger.Debug("bridge@dispatching unstash", zap.Int("messages", pending))
		state.stash.UnstashAll(ctx)
	}
}

func (state *SerialBridgeActor) stopDispatch() {
	if state.cancelDispatch != nil {
		state.cancelDispatch()
		state.cancelDispatch = nil
	}
}

func failedOutcome(devices []domain.Device, cmd domain.Command, err error) domain.DispatchOutcome {
	outcome := domain.DispatchOutcome{Command: cmd}
	for _, d := range devices {
		outcome.Results = append(outcome.Results, domain.DeviceResult{Device: d, Success: false, Detail: err.Error()})
	}
	return outcome
}

// openTransport opens the transport in background. A handle that shows up after
// the open timeout is closed, never leaked.
func (state *SerialBridgeActor) openTransport(ctx actor.Context) {
	state.attempt++
	attempt := state.attempt
	opener := state.opener
	handoff := &openHandoff{}

	task := NewBackgroundTask(ctx, func() (*transportOpened, error) {
		transport, err := opener.Open()
		if err != nil {
			return nil, err
		}
		if !handoff.deliver(transport) {
			transport.Close()
			return nil, errOpenAbandoned
		}
		return &transportOpened{attempt: attempt, transport: transport}, nil
	}).Recover(func(err error) transportOpened {
		if transport := handoff.abandon(); transport != nil {
			// open completed right when the timeout fired
			return transportOpened{attempt: attempt, transport: transport}
		}
		return transportOpened{attempt: attempt, err: err}
	})
	if state.openTimeout > 0 {
		task = task.WithTimeout(state.openTimeout)
	}
	task.PipeTo(ctx.Self())
}

func (state *SerialBridgeActor) scheduleReconnect(ctx actor.Context) {
	state.scheduler.SendOnce(state.reconnectDelay, ctx.Self(), connectAttempt{})
}

func (state *SerialBridgeActor) closeTransport() {
	if state.transport != nil {
		if err := state.transport.Close(); err != nil {
			state.logger.Warn("bridge: close transport", zap.Error(err))
		}
		state.transport = nil
	}
}

type openHandoff struct {
	mu        sync.Mutex
	done      bool
	transport port.LineTransport
}

// deliver records the opened transport, false if the attempt was abandoned.
func (h *openHandoff) deliver(transport port.LineTransport) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	h.transport = transport
	return true
}

// abandon marks the attempt as given up and returns a transport delivered in the meantime.
func (h *openHandoff) abandon() port.LineTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return h.transport
	}
	h.done = true
	return nil
}
