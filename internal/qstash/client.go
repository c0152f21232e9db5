// Package qstash adapts the remote cron-registration service. It owns the
// mapping from symbolic schedule configs to cron expressions, the REST calls
// that create, update, and delete registrations, and the verification of
// signed callback requests.
package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"notra/internal/logging"
	"notra/internal/trigger"
)

// Config holds connection settings for the remote scheduler.
type Config struct {
	BaseURL     string
	Token       string
	CallbackURL string
	Timeout     time.Duration
}

// Client talks to the QStash schedules API.
type Client struct {
	baseURL     string
	token       string
	callbackURL string
	httpClient  *http.Client
	logger      logging.Logger
}

// NewClient builds a schedules client.
func NewClient(cfg Config, logger logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("qstash: base URL is required")
	}
	if cfg.CallbackURL == "" {
		return nil, fmt.Errorf("qstash: callback URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		callbackURL: cfg.CallbackURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logging.OrNop(logger),
	}, nil
}

// CronExpression implements trigger.ScheduleRegistry.
func (c *Client) CronExpression(cfg trigger.CronConfig) (string, bool) {
	return BuildCronExpression(cfg)
}

type scheduleResponse struct {
	ScheduleID string `json:"scheduleId"`
}

type schedulePayload struct {
	TriggerID string `json:"triggerId"`
}

// CreateOrUpdateSchedule registers a cron schedule that delivers to the
// callback URL. Supplying an existing schedule id updates that registration
// in place instead of allocating an orphan.
func (c *Client) CreateOrUpdateSchedule(ctx context.Context, req trigger.ScheduleRequest) (string, error) {
	if req.CronExpression == "" {
		return "", fmt.Errorf("qstash: cron expression is required")
	}

	body, err := json.Marshal(schedulePayload{TriggerID: req.TriggerID})
	if err != nil {
		return "", fmt.Errorf("qstash: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/schedules/%s", c.baseURL, url.PathEscape(c.callbackURL))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("qstash: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Upstash-Cron", req.CronExpression)
	if req.ExistingScheduleID != "" {
		httpReq.Header.Set("Upstash-Schedule-Id", req.ExistingScheduleID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("qstash: schedule request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("qstash: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("qstash: schedule request returned %d: %s", resp.StatusCode, respBody)
	}

	var parsed scheduleResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("qstash: decode response: %w", err)
	}
	if parsed.ScheduleID == "" {
		return "", fmt.Errorf("qstash: response carried no schedule id")
	}

	c.logger.Debug("QStash: registered schedule %s (cron=%q trigger=%s)", parsed.ScheduleID, req.CronExpression, req.TriggerID)
	return parsed.ScheduleID, nil
}

// DeleteSchedule removes a registration. A remote 404 means the schedule is
// already gone and counts as success.
func (c *Client) DeleteSchedule(ctx context.Context, scheduleID string) error {
	if scheduleID == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/v2/schedules/%s", c.baseURL, url.PathEscape(scheduleID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("qstash: build delete request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("qstash: delete request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qstash: delete returned %d", resp.StatusCode)
	}

	c.logger.Debug("QStash: deleted schedule %s", scheduleID)
	return nil
}
