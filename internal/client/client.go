// Package client talks to a running leakwatch server: issuing commands
// over the HTTP API and streaming broadcast events over the WebSocket
// endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ecovive/leakwatch/internal/model"
)

const commandTimeout = 5 * time.Second

// Client connects to a leakwatch server.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client for the server at baseURL, e.g.
// "http://localhost:8080". A missing scheme defaults to http.
func New(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: commandTimeout},
	}
}

// Do posts one command to the /action endpoint.
func (c *Client) Do(ctx context.Context, req model.ActionRequest) (model.ActionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.ActionResponse{}, fmt.Errorf("client: encode command: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/action", bytes.NewReader(body))
	if err != nil {
		return model.ActionResponse{}, fmt.Errorf("client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return model.ActionResponse{}, fmt.Errorf("client: server unreachable: %w", err)
	}
	defer resp.Body.Close()

	var ack model.ActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return model.ActionResponse{}, fmt.Errorf("client: decode response: %w", err)
	}
	return ack, nil
}

// Report posts a synthetic clipboard event, used by the simulator.
func (c *Client) Report(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extension-event", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("client: server unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Traffic posts a synthetic outbound request observation against the
// given host, used by the simulator. It returns the gate's verdict.
func (c *Client) Traffic(ctx context.Context, host, body string) (admitted bool, reason string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/proxy-log", strings.NewReader(body))
	if err != nil {
		return false, "", fmt.Errorf("client: build request: %w", err)
	}
	req.Host = host

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("client: server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return false, strings.TrimSpace(buf.String()), nil
	}
	return true, "", nil
}

// Stream reads broadcast messages and hands each to fn until ctx is
// canceled or the connection drops. Malformed frames are skipped.
func (c *Client) Stream(ctx context.Context, fn func(model.Message)) error {
	wsURL, err := c.websocketURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("client: stream closed: %w", err)
		}

		msg, err := model.DecodeMessage(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "client: skipping malformed frame: %v\n", err)
			continue
		}
		fn(msg)
	}
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("client: bad base url %q: %w", c.baseURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}
