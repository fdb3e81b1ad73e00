package service

import (
	"context"
	"time"

	"github.com/berfenger/serial2govee/internal/core/domain"
	"github.com/berfenger/serial2govee/internal/core/port"

	"go.uber.org/zap"
)

const DETAIL_CANCELLED = "cancelled"

// CommandDispatcher sends a command to every device, one after another.
type CommandDispatcher struct {
	controller port.DeviceController
	timeout    time.Duration
	logger     *zap.Logger
}

func NewCommandDispatcher(controller port.DeviceController, timeout time.Duration, logger *zap.Logger) *CommandDispatcher {
	return &CommandDispatcher{
		controller: controller,
		timeout:    timeout,
		logger:     logger.With(zap.String("component", "dispatcher")),
	}
}

// SendToAll issues cmd to each device in order, once. A device failure never
// stops the fan-out; a cancelled ctx does, and the devices not yet contacted are
// reported as failed with DETAIL_CANCELLED. Failures are reported in the outcome only.
func (d *CommandDispatcher) SendToAll(ctx context.Context, devices []domain.Device, cmd domain.Command) domain.DispatchOutcome {
	outcome := domain.DispatchOutcome{
		Command: cmd,
		Results: make([]domain.DeviceResult, 0, len(devices)),
	}
	for i, device := range devices {
		if ctx.Err() != nil {
			d.logger.Warn("dispatch: cancelled, skipping remaining devices",
				zap.String("command", string(cmd)),
				zap.Int("skipped", len(devices)-i))
			for _, skipped := range devices[i:] {
				outcome.Results = append(outcome.Results, domain.DeviceResult{Device: skipped, Success: false, Detail: DETAIL_CANCELLED})
			}
			break
		}
		outcome.Results = append(outcome.Results, d.send(ctx, device, cmd))
	}
	return outcome
}

func (d *CommandDispatcher) send(ctx context.Context, device domain.Device, cmd domain.Command) domain.DeviceResult {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := d.controller.Turn(ctx, device, cmd)
	if err != nil {
		d.logger.Error("dispatch: command failed",
			zap.String("device", device.ID),
			zap.String("model", device.Model),
			zap.String("command", string(cmd)),
			zap.Error(err))
		return domain.DeviceResult{Device: device, Success: false, Detail: err.Error()}
	}
	d.logger.Info("dispatch: ok",
		zap.String("device", device.ID),
		zap.String("model", device.Model),
		zap.String("command", string(cmd)))
	return domain.DeviceResult{Device: device, Success: true, Detail: "ok"}
}
