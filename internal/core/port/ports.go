package port

import (
	"context"

	"github.com/berfenger/serial2govee/internal/core/domain"
)

// DeviceController sends a single light command to one device.
type DeviceController interface {
	Turn(ctx context.Context, device domain.Device, cmd domain.Command) error
}

// DeviceLister returns the raw body of the vendor device listing.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]byte, error)
}

// LineTransport is an open, line oriented byte stream.
// ReadLine blocks at most for the transport read timeout and returns (nil, nil)
// when no complete line arrived in time. Any error means the transport is unusable.
type LineTransport interface {
	ReadLine() ([]byte, error)
	Close() error
}

type TransportOpener interface {
	Open() (LineTransport, error)
	Name() string
}
