package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/serial2govee/internal/config"
	"github.com/berfenger/serial2govee/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

type Server struct {
	port           uint
	httpLog        bool
	rootContext    *actor.RootContext
	masterActor    *actor.PID
	devices        []domain.Device
	commandTimeout time.Duration
	healthTimeout  time.Duration
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, devices []domain.Device) *http.Server {
	NewServer := &Server{
		port:           cfg.Port,
		rootContext:    rootContext,
		masterActor:    masterActor,
		httpLog:        cfg.HttpLog,
		devices:        devices,
		commandTimeout: lightsRequestTimeout(cfg.Govee.ControlTimeout(), len(devices)),
		healthTimeout:  cfg.HealthCheckTimeout(),
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: NewServer.commandTimeout + 5*time.Second,
	}

	return server
}

// a manual command runs the whole fan-out, one control timeout per device
func lightsRequestTimeout(controlTimeout time.Duration, devices int) time.Duration {
	return controlTimeout*time.Duration(max(devices, 1)) + 5*time.Second
}
