package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wavelab/labnode/internal/infrastructure/config"
)

// defaultTimeout bounds HTTP calls when the configuration supplies none.
const defaultTimeout = 15 * time.Second

// Record is one row of experiment data keyed by column name.
type Record map[string]any

// Client talks to the companion data service over HTTP.
//
// It is the bulk counterpart to the MQTT client: complete datasets travel
// here, individual samples travel over the broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use; the client holds no
//     per-request state.
type Client struct {
	nodeID     string
	baseURL    string
	httpClient *http.Client
}

// New creates a data service client for the given node.
//
// Parameters:
//   - cfg: Data service configuration from config.yaml
//   - nodeID: Unique node identifier, used in the upload path
//
// Returns:
//   - *Client: Ready client (no connection is established up front;
//     use CheckHealth to probe the server)
//   - error: If nodeID or the host is missing
func New(cfg config.DataServiceConfig, nodeID string) (*Client, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("%w: node ID is required", ErrInvalidConfig)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}

	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		nodeID:  nodeID,
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// NodeID returns the node identifier this client uploads under.
func (c *Client) NodeID() string {
	return c.nodeID
}

// BaseURL returns the root URL of the data service.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckHealth probes the data service's /health endpoint.
//
// It returns true only when the server responds with a 2xx status and a
// JSON body whose "status" field equals "online" (case-insensitive).
// Every fault — unreachable host, timeout, bad status, malformed body —
// degrades to false. Callers use the result to decide whether to upload
// now or persist locally; they never need an error value.
func (c *Client) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}

	return strings.EqualFold(body.Status, "online")
}

// dataURL builds the per-node data endpoint with optional query parameters.
func (c *Client) dataURL(nodeID string, params url.Values) string {
	u := c.baseURL + "/data/" + url.PathEscape(nodeID)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// decodeResponse checks the status code and decodes a JSON body into out.
func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}
	return nil
}
