package server

import (
	"net/http"

	"github.com/berfenger/serial2govee/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/devices", s.DevicesHandler)
	e.PUT("/lights/:command", s.LightsHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, s.healthTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) DevicesHandler(c echo.Context) error {
	devices := s.devices
	if devices == nil {
		devices = []domain.Device{}
	}
	return c.JSON(http.StatusOK, devices)
}

func (s *Server) LightsHandler(c echo.Context) error {
	cmd, err := domain.ParseCommand(c.Param("command"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetLightsRequest{Command: cmd}, s.commandTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	}
	response, ok := res.(domain.SetLightsResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return echo.NewHTTPError(http.StatusInternalServerError, response.GetResponseError().Error())
	}

	status := http.StatusOK
	if !response.Outcome.Success() {
		status = http.StatusBadGateway
	}
	return c.JSON(status, response.Outcome)
}
