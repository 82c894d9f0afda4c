// Package daemonctl talks to a running ticketless daemon over its HTTP API.
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticketless/internal/api"
	"ticketless/internal/config"
	"ticketless/internal/worker"
)

// ErrUnavailable reports that no daemon answered at the configured bind.
var ErrUnavailable = errors.New("daemon API unavailable")

// Client calls the daemon API.
type Client struct {
	base         *url.URL
	token        string
	workerSecret string
	http         *http.Client
}

// New builds a client for bind. A bare host:port is treated as http.
func New(bind, token, workerSecret string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:         base,
		token:        token,
		workerSecret: workerSecret,
		// Worker runs block until the batch is recorded.
		http: &http.Client{Timeout: 30 * time.Minute},
	}, nil
}

// FromConfig builds a client from the api section of cfg.
func FromConfig(cfg *config.Config) (*Client, error) {
	return New(cfg.API.Bind, cfg.API.Token, cfg.API.WorkerSecret)
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context, withChecks bool) (api.ServiceStatus, error) {
	var status api.ServiceStatus
	query := url.Values{}
	if withChecks {
		query.Set("checks", "1")
	}
	err := c.do(ctx, http.MethodGet, "/api/status", query, c.token, &status)
	return status, err
}

// RunWorker asks the daemon to perform one worker invocation.
func (c *Client) RunWorker(ctx context.Context) (worker.Summary, error) {
	var summary worker.Summary
	err := c.do(ctx, http.MethodPost, "/api/worker/run", nil, c.workerSecret, &summary)
	return summary, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, credential string, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var body api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return fmt.Errorf("daemon %s %s returned %d: %s", method, path, resp.StatusCode, body.Error)
		}
		return fmt.Errorf("daemon %s %s returned status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
