package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/serial2govee/internal/core/domain"
	"github.com/berfenger/serial2govee/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevices = []domain.Device{
	{ID: "aa:aa:aa:aa:aa:01", Model: "H6006"},
	{ID: "aa:aa:aa:aa:aa:02", Model: "H6006"},
}

// fakeMaster answers like the master actor. Device 02 rejects "off".
func fakeMaster(healthy bool) actor.ReceiveFunc {
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.SetLightsRequest:
			outcome := domain.DispatchOutcome{Command: msg.Command}
			for _, d := range testDevices {
				ok := msg.Command == domain.COMMAND_ON || d.ID != testDevices[1].ID
				detail := "ok"
				if !ok {
					detail = "HTTP 400: device offline"
				}
				outcome.Results = append(outcome.Results, domain.DeviceResult{Device: d, Success: ok, Detail: detail})
			}
			ctx.Respond(domain.SetLightsResponse{Outcome: outcome})
		}
	}
}

func newTestServer(t *testing.T, healthy bool) http.Handler {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromFunc(fakeMaster(healthy)))

	cfg := util.LoadTestConfig()
	s := &Server{
		rootContext:    as.Root,
		masterActor:    pid,
		devices:        testDevices,
		commandTimeout: lightsRequestTimeout(cfg.Govee.ControlTimeout(), len(testDevices)),
		healthTimeout:  cfg.HealthCheckTimeout(),
	}
	return s.RegisterRoutes()
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {

	rec := do(newTestServer(t, true), http.MethodGet, "/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())

	rec = do(newTestServer(t, false), http.MethodGet, "/healthcheck")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDevices(t *testing.T) {

	rec := do(newTestServer(t, true), http.MethodGet, "/devices")
	require.Equal(t, http.StatusOK, rec.Code)

	var devices []domain.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	assert.Equal(t, testDevices, devices)
	assert.Contains(t, rec.Body.String(), `"device":"aa:aa:aa:aa:aa:01"`)
}

func TestLights(t *testing.T) {

	h := newTestServer(t, true)

	rec := do(h, http.MethodPut, "/lights/on")
	require.Equal(t, http.StatusOK, rec.Code)
	var outcome domain.DispatchOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, domain.COMMAND_ON, outcome.Command)
	assert.Len(t, outcome.Results, 2)

	rec = do(h, http.MethodPut, "/lights/off")
	assert.Equal(t, http.StatusBadGateway, rec.Code, "partial failure")
	assert.Contains(t, rec.Body.String(), "HTTP 400: device offline")

	rec = do(h, http.MethodPut, "/lights/dim")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/lights/on")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLightsRequestTimeout(t *testing.T) {

	assert.Equal(t, 21*time.Second, lightsRequestTimeout(8*time.Second, 2))
	assert.Equal(t, 13*time.Second, lightsRequestTimeout(8*time.Second, 0))
}
