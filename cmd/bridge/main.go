package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/serial2govee/internal/adapter/actor"
	"github.com/berfenger/serial2govee/internal/config"
	"github.com/berfenger/serial2govee/internal/core/actor"
	"github.com/berfenger/serial2govee/internal/core/domain"
	"github.com/berfenger/serial2govee/internal/core/service"
	"github.com/berfenger/serial2govee/internal/govee"
	"github.com/berfenger/serial2govee/internal/serial"
	"github.com/berfenger/serial2govee/internal/server"
	"github.com/berfenger/serial2govee/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

func gracefulShutdown(interrupted context.Context, stop context.CancelFunc, apiServer *http.Server, done chan bool) {
	// Listen for the interrupt signal.
	<-interrupted.Done()
	// restore default signal handling so a second Ctrl+C kills the process
	stop()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	if apiServer != nil {
		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown with error: %v", err)
		}
		log.Println("Server exiting")
	}

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	os.Exit(run())
}

func run() int {

	// Create context that listens for the interrupt signal from the OS. Running
	// device fan-outs derive from it and stop writing once it is done.
	interrupted, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// load and print config
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			fmt.Fprintln(os.Stderr, "[ERR] GOVEE_API_KEY missing in .env")
		} else {
			fmt.Fprintf(os.Stderr, "[ERR] config: %v\n", err)
		}
		return 1
	}
	slog.Info("Using", "config", cfg.Redacted())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// resolve devices once, the registry is immutable afterwards
	client := govee.NewClient(cfg.Govee)
	devices, err := service.ResolveDevices(interrupted, cfg.Govee.Devices, client.ListDevices, cfg.Govee.AllowedModel, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERR] No devices configured (set GOVEE_DEVICES or make sure the API returns devices)")
		return 1
	}
	for _, d := range devices {
		logger.Info("registry: device", zap.String("device", d.ID), zap.String("model", d.Model))
	}

	opener := serial.NewOpener(cfg.Serial.Port, cfg.Serial.Baudrate, cfg.Serial.ReadTimeout())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, bridgeActorProvider(interrupted, cfg, opener, client, devices, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not start master actor", zap.Error(err))
		return 1
	}

	var apiServer *http.Server
	if cfg.Port != 0 {
		apiServer = server.NewServer(*cfg, ctx, pid, devices)
	}

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(interrupted, stop, apiServer, done)

	if apiServer != nil {
		err = apiServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			// the bridge keeps running without the http surface
			logger.Error("http server error", zap.Error(err))
		}
	}

	// Wait for the graceful shutdown to complete
	<-done

	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master stop", zap.Error(err))
	}
	as.Shutdown()
	log.Println("Graceful shutdown complete.")
	return 0
}

func bridgeActorProvider(ctx context.Context, cfg *config.Config, opener *serial.Opener, client *govee.Client, devices []domain.Device, logger *zap.Logger) actor.BridgeActorProvider {
	return func(eventStream *eventstream.EventStream) *actor.SerialBridgeActor {
		return actor.NewSerialBridgeActor(ctx, cfg, opener, client, devices, eventStream, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	if !cfg.MQTT.Enable {
		return nil
	}
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}
