package service

import (
	"context"
	"errors"
	"strings"

	"github.com/berfenger/serial2govee/internal/core/domain"

	"go.uber.org/zap"
)

var ErrNoDevicesConfigured = errors.New("no devices configured and discovery returned no devices")

// DiscoveryFunc fetches the raw device listing from the vendor.
type DiscoveryFunc func(ctx context.Context) ([]byte, error)

// ResolveDevices builds the device registry: static entries first, remote discovery
// when there are none, then the model allow-list. ErrNoDevicesConfigured is returned
// only when both sources are empty; an empty list after filtering is not an error.
func ResolveDevices(ctx context.Context, static string, discover DiscoveryFunc, allowedModel string, logger *zap.Logger) ([]domain.Device, error) {
	devices := ParseStaticDevices(static, logger)
	if len(devices) == 0 {
		logger.Info("registry: static device list empty, trying discovery")
		devices = DiscoverDevices(ctx, discover, logger)
		if len(devices) == 0 {
			return nil, ErrNoDevicesConfigured
		}
		logger.Info("registry: fetched devices from api", zap.Int("count", len(devices)))
	}

	devices = FilterByModel(devices, allowedModel, logger)
	if len(devices) == 0 {
		logger.Warn("registry: no devices left after model filter, commands will be no-ops",
			zap.String("allowed_model", allowedModel))
	}
	return devices, nil
}

// ParseStaticDevices parses "aa:bb:cc:dd:ee:ff:MODEL;..." entries. Malformed
// entries are skipped with a warning.
func ParseStaticDevices(raw string, logger *zap.Logger) []domain.Device {
	var devices []domain.Device
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		// six address bytes followed by the model
		if len(parts) < 7 {
			logger.Warn("registry: skipping malformed device entry", zap.String("entry", entry))
			continue
		}
		devices = append(devices, domain.Device{
			ID:    strings.Join(parts[:6], ":"),
			Model: parts[6],
		})
	}
	return devices
}

// DiscoverDevices calls discover once. Failures are logged and yield no devices.
func DiscoverDevices(ctx context.Context, discover DiscoveryFunc, logger *zap.Logger) []domain.Device {
	if discover == nil {
		return nil
	}
	body, err := discover(ctx)
	if err != nil {
		logger.Warn("registry: could not fetch devices from api", zap.Error(err))
		return nil
	}
	listing, err := DecodeDeviceListing(body)
	if err != nil {
		logger.Warn("registry: could not parse device listing", zap.Error(err))
		return nil
	}
	if listing.Shape == ShapeUnrecognized {
		logger.Warn("registry: unexpected device listing shape", zap.String("shape", listing.Detail))
		return nil
	}
	devices, dropped := DevicesFromRecords(listing.Records)
	if dropped > 0 {
		logger.Info("registry: dropped incomplete device records", zap.Int("dropped", dropped))
	}
	logger.Debug("registry: device listing decoded", zap.Stringer("shape", listing.Shape), zap.Int("devices", len(devices)))
	return devices
}

// FilterByModel keeps the devices whose model equals allowedModel ignoring case.
// An empty allowedModel returns devices unchanged.
func FilterByModel(devices []domain.Device, allowedModel string, logger *zap.Logger) []domain.Device {
	if allowedModel == "" {
		logger.Info("registry: allowed model not set, not filtering devices")
		return devices
	}
	kept := make([]domain.Device, 0, len(devices))
	for _, d := range devices {
		if strings.EqualFold(d.Model, allowedModel) {
			kept = append(kept, d)
		}
	}
	logger.Info("registry: filtered devices by model",
		zap.String("model", allowedModel),
		zap.Int("kept", len(kept)),
		zap.Int("ignored", len(devices)-len(kept)))
	return kept
}
