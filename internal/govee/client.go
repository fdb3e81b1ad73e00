package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/berfenger/serial2govee/internal/config"
	"github.com/berfenger/serial2govee/internal/core/domain"
	"github.com/berfenger/serial2govee/internal/core/port"
)

const maxBodyBytes = 1 << 20

// StatusError is returned when the API answers with an unexpected status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

type Client struct {
	apiKey           string
	devicesURL       string
	controlURL       string
	discoveryTimeout time.Duration
	httpClient       *http.Client
}

// ensure interface compliance
var _ port.DeviceController = (*Client)(nil)
var _ port.DeviceLister = (*Client)(nil)

func NewClient(cfg config.GoveeConfig) *Client {
	return &Client{
		apiKey:           cfg.ApiKey,
		devicesURL:       cfg.DevicesURL,
		controlURL:       cfg.ControlURL,
		discoveryTimeout: cfg.DiscoveryTimeout(),
		httpClient:       &http.Client{Timeout: max(cfg.ControlTimeout(), cfg.DiscoveryTimeout())},
	}
}

type controlRequest struct {
	Device string     `json:"device"`
	Model  string     `json:"model"`
	Cmd    controlCmd `json:"cmd"`
}

type controlCmd struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ListDevices returns the raw body of the device listing.
func (c *Client) ListDevices(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.discoveryTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, c.devicesURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("govee devices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("govee devices: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// Turn switches one device on or off. Only HTTP 200 counts as success.
func (c *Client) Turn(ctx context.Context, device domain.Device, cmd domain.Command) error {
	payload, err := json.Marshal(controlRequest{
		Device: device.ID,
		Model:  device.Model,
		Cmd:    controlCmd{Name: "turn", Value: string(cmd)},
	})
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPut, c.controlURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Govee-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
