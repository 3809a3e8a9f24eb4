package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/video-system/go-media-access/pkg/media"
)

// Client is the video-platform API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds platform client configuration
type Config struct {
	URL    string
	APIKey string
}

// Agent describes this media access daemon to the platform
type Agent struct {
	ID       string   `json:"id"`
	Hostname string   `json:"hostname"`
	Backend  string   `json:"backend"`
	Version  string   `json:"version,omitempty"`
	APIURL   string   `json:"api_url,omitempty"`
	Backends []string `json:"backends,omitempty"`

	// Versions of external runtimes found on the host, keyed by name
	Components map[string]string `json:"components,omitempty"`
}

// Heartbeat is the periodic liveness report
type Heartbeat struct {
	Timestamp      int64   `json:"timestamp"`
	ActiveRequests int     `json:"active_requests"`
	AudioDevices   int     `json:"audio_devices"`
	VideoDevices   int     `json:"video_devices"`
	Sessions       int     `json:"sessions"`
	LoopMaxTaskMs  float64 `json:"loop_max_task_ms"`
	Monitoring     bool    `json:"monitoring"`
	MonitorChecks  int64   `json:"monitor_checks,omitempty"`
	MonitorAvgMs   float64 `json:"monitor_avg_ms,omitempty"`
	MonitorMaxMs   float64 `json:"monitor_max_ms,omitempty"`
}

// DevicesChanged reports a new device list of one kind
type DevicesChanged struct {
	AgentID   string          `json:"agent_id,omitempty"`
	Type      media.MediaType `json:"type"`
	Devices   []media.Device  `json:"devices"`
	Timestamp int64           `json:"timestamp"`
}

// RequestStateChanged reports the progress of a tab capture or a closing
// request.
type RequestStateChanged struct {
	AgentID       string             `json:"agent_id,omitempty"`
	ProcessID     int                `json:"process_id"`
	ViewID        int                `json:"view_id"`
	PageRequestID int                `json:"page_request_id"`
	Device        media.Device       `json:"device"`
	State         media.RequestState `json:"state"`
	Timestamp     int64              `json:"timestamp"`
}

// New creates a new platform client
func New(cfg Config) *Client {
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsConfigured returns true if the client is properly configured
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// CheckHealth checks if the platform is accessible
func (c *Client) CheckHealth(ctx context.Context) error {
	if !c.IsConfigured() {
		return fmt.Errorf("platform client not configured")
	}

	url := fmt.Sprintf("%s/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform unhealthy (status %d)", resp.StatusCode)
	}

	return nil
}

// RegisterAgent announces this daemon. The platform may assign a new id,
// which is returned.
func (c *Client) RegisterAgent(ctx context.Context, agent Agent) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("platform client not configured")
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/api/v1/agents", agent, &result, http.StatusOK, http.StatusCreated); err != nil {
		return "", fmt.Errorf("register agent: %w", err)
	}

	if result.ID == "" {
		return agent.ID, nil
	}
	return result.ID, nil
}

// SendHeartbeat reports liveness for agentID
func (c *Client) SendHeartbeat(ctx context.Context, agentID string, hb Heartbeat) error {
	if !c.IsConfigured() {
		return nil // Silent skip if platform not configured
	}
	if hb.Timestamp == 0 {
		hb.Timestamp = time.Now().UnixMilli()
	}

	path := fmt.Sprintf("/api/v1/agents/%s/heartbeat", agentID)
	if err := c.postJSON(ctx, path, hb, nil, http.StatusOK, http.StatusNoContent); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// NotifyDevicesChanged forwards a device list change
func (c *Client) NotifyDevicesChanged(ctx context.Context, n DevicesChanged) error {
	if !c.IsConfigured() {
		return nil
	}
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}

	if err := c.postJSON(ctx, "/api/v1/media/devices-changed", n, nil, http.StatusOK, http.StatusAccepted); err != nil {
		return fmt.Errorf("notify devices changed: %w", err)
	}
	return nil
}

// NotifyRequestState forwards a request state change
func (c *Client) NotifyRequestState(ctx context.Context, n RequestStateChanged) error {
	if !c.IsConfigured() {
		return nil
	}
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}

	if err := c.postJSON(ctx, "/api/v1/media/request-state", n, nil, http.StatusOK, http.StatusAccepted); err != nil {
		return fmt.Errorf("notify request state: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}, okStatus ...int) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if !statusIn(resp.StatusCode, okStatus) {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func statusIn(code int, ok []int) bool {
	for _, c := range ok {
		if code == c {
			return true
		}
	}
	return false
}
