// Package client talks to the farm backend (the system-of-record for relay
// states, schedules and control modes) over its JSON REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hydrosync"
	"hydrosync/internal/logger"
	"hydrosync/internal/retry"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxErrorBody          = 4 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	// ReadRetry applies to GET requests only; writes are never replayed.
	ReadRetry retry.Config
}

// Client is a typed wrapper over the backend endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	retry   retry.Config
	log     *logger.Logger
}

// New creates a Client. If httpClient is nil, http.DefaultClient is used.
func New(cfg Config, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		timeout: cfg.RequestTimeout,
		retry:   cfg.ReadRetry,
		log:     log,
	}
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "health", "/health", nil)
}

// GetRelays fetches the relay states of a unit.
func (c *Client) GetRelays(ctx context.Context, unitID string) (RelaySnapshot, error) {
	var out RelaySnapshot
	err := c.get(ctx, "get_relays", unitPath(unitID, "relays"), &out)
	return out, err
}

// SetRelay switches one relay. The backend also moves that channel to manual mode.
func (c *Client) SetRelay(ctx context.Context, unitID string, ch hydrosync.ChannelID, state hydrosync.Relay) (RelaySnapshot, error) {
	var out RelaySnapshot
	body := map[hydrosync.ChannelID]hydrosync.Relay{ch: state}
	err := c.send(ctx, "set_relay", http.MethodPost, unitPath(unitID, "relay"), body, &out)
	return out, err
}

// GetSchedule fetches windows, pump cycle and control modes of a unit.
func (c *Client) GetSchedule(ctx context.Context, unitID string) (ScheduleDocument, error) {
	var out ScheduleDocument
	err := c.get(ctx, "get_schedule", unitPath(unitID, "schedule"), &out)
	return out, err
}

// UpdateSchedule replaces the unit schedule. Channels whose schedule is
// present are moved to timer mode by the backend; control modes omitted
// from doc are preserved.
func (c *Client) UpdateSchedule(ctx context.Context, unitID string, doc ScheduleDocument) (ScheduleDocument, error) {
	var out ScheduleDocument
	err := c.send(ctx, "update_schedule", http.MethodPost, unitPath(unitID, "schedule"), doc, &out)
	return out, err
}

// SetControlMode switches one channel between manual and timer.
func (c *Client) SetControlMode(ctx context.Context, unitID string, ch hydrosync.ChannelID, mode hydrosync.ControlMode) (ControlModeResponse, error) {
	var out ControlModeResponse
	err := c.send(ctx, "set_control_mode", http.MethodPost, unitPath(unitID, "control_mode"), relayModeBody{Relay: ch, Mode: mode}, &out)
	return out, err
}

// GetUnitSensors fetches the latest reservoir and climate readings.
func (c *Client) GetUnitSensors(ctx context.Context, unitID string) (UnitSensors, error) {
	var out UnitSensors
	err := c.get(ctx, "get_unit_sensors", unitPath(unitID, "sensors"), &out)
	return out, err
}

// GetRoomSensors fetches the front or back room readings as raw JSON.
func (c *Client) GetRoomSensors(ctx context.Context, room string) (json.RawMessage, error) {
	if room != RoomFront && room != RoomBack {
		return nil, fmt.Errorf("unknown room %q", room)
	}
	var out json.RawMessage
	err := c.get(ctx, "get_room_sensors", "/room/"+room+"/sensors", &out)
	return out, err
}

// GetACSchedule fetches the back room hourly AC setpoints.
func (c *Client) GetACSchedule(ctx context.Context) (ACSchedule, error) {
	var out acScheduleBody
	err := c.get(ctx, "get_ac_schedule", "/room/back/ac_schedule", &out)
	return out.ACSchedule, err
}

// UpdateACSchedule writes hourly AC setpoints.
func (c *Client) UpdateACSchedule(ctx context.Context, sched ACSchedule) (ACSchedule, error) {
	var out acScheduleBody
	err := c.send(ctx, "update_ac_schedule", http.MethodPost, "/room/back/ac_schedule", acScheduleBody{ACSchedule: sched}, &out)
	return out.ACSchedule, err
}

func unitPath(unitID, leaf string) string {
	return "/units/" + url.PathEscape(unitID) + "/" + leaf
}

// get retries transient failures with backoff.
func (c *Client) get(ctx context.Context, op, path string, out any) error {
	err := retry.Do(ctx, c.retry, func() error {
		return c.do(ctx, op, http.MethodGet, path, nil, out)
	})
	if err != nil && !errors.Is(err, hydrosync.ErrRequestFailed) {
		err = &hydrosync.RequestFailedError{Op: op, Err: err}
	}
	return err
}

// send issues a single write attempt.
func (c *Client) send(ctx context.Context, op, method, path string, body, out any) error {
	return c.do(ctx, op, method, path, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &hydrosync.RequestFailedError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return &hydrosync.RequestFailedError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Debugw("backend_request_failed", "op", op, "method", method, "path", path, "err", err)
		return &hydrosync.RequestFailedError{Op: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	c.log.Debugw("backend_request", "op", op, "method", method, "path", path,
		"status", res.StatusCode, "elapsed", time.Since(start))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		cause := errors.New(readErrorMessage(res))
		if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
			cause = retry.Retriable(cause)
		}
		return &hydrosync.RequestFailedError{Op: op, StatusCode: res.StatusCode, Err: cause}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &hydrosync.RequestFailedError{Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func readErrorMessage(res *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(res.StatusCode)
}
