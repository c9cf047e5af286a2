package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/config"
	"github.com/kestrel-optics/pursuit.camera/internal/db"
	"github.com/kestrel-optics/pursuit.camera/internal/httputil"
)

// Client drives a running tracker daemon over its HTTP API. The sweep
// tool and the offline report tooling are the main consumers.
type Client struct {
	HTTPClient httputil.HTTPClient
	BaseURL    string
}

// NewClient creates an API client. A nil httpClient gets a standard
// client with a 30 second timeout.
func NewClient(httpClient httputil.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	}
	return &Client{
		HTTPClient: httpClient,
		BaseURL:    baseURL,
	}
}

// Status fetches the daemon's status snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	var status StatusResponse
	if err := c.getJSON("/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Targets fetches the live target list.
func (c *Client) Targets() (*TargetsResponse, error) {
	var targets TargetsResponse
	if err := c.getJSON("/api/targets", &targets); err != nil {
		return nil, err
	}
	return &targets, nil
}

// GetConfig fetches the active tuning snapshot.
func (c *Client) GetConfig() (*config.Tuning, error) {
	var tuning config.Tuning
	if err := c.getJSON("/api/config", &tuning); err != nil {
		return nil, err
	}
	return &tuning, nil
}

// SetConfig posts a partial tuning update. Only the fields set on
// patch change; the applied config is returned.
func (c *Client) SetConfig(patch *config.Tuning) (*config.Tuning, error) {
	var applied config.Tuning
	if err := c.postJSON("/api/config", patch, &applied); err != nil {
		return nil, err
	}
	return &applied, nil
}

// SetConfigParams posts a partial tuning update from a loose map. The
// sweep tool uses this when the swept field names come from flags.
func (c *Client) SetConfigParams(params map[string]interface{}) error {
	if err := c.postJSON("/api/config", params, nil); err != nil {
		return err
	}
	log.Printf("Applied tuning params: %d fields", len(params))
	return nil
}

// Enable switches the engine's enabled flag.
func (c *Client) Enable(enabled bool) error {
	return c.postJSON("/api/enable", map[string]bool{"enabled": enabled}, nil)
}

// Capture fires a manual shutter trigger.
func (c *Client) Capture() error {
	return c.postJSON("/api/capture", struct{}{}, nil)
}

// Sessions lists recorded sessions, newest first.
func (c *Client) Sessions(limit int) ([]*db.Session, error) {
	path := "/api/sessions"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var sessions []*db.Session
	if err := c.getJSON(path, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Session fetches one session's summary.
func (c *Client) Session(id string) (*SessionDetail, error) {
	var detail SessionDetail
	if err := c.getJSON("/api/sessions/"+id, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// StartReplay starts a scenario replay on the daemon. It retries on
// 409 (an earlier replay still draining) for up to maxRetries times.
func (c *Client) StartReplay(scenario string, fast bool, maxRetries int) (*ReplayStatus, error) {
	payload := map[string]interface{}{"scenario": scenario, "fast": fast}
	data, _ := json.Marshal(payload)

	log.Printf("Requesting replay of %s (fast=%v)", scenario, fast)

	if maxRetries <= 0 {
		maxRetries = 60
	}

	for retry := 0; retry < maxRetries; retry++ {
		resp, err := c.HTTPClient.Post(c.BaseURL+"/api/replay/start", "application/json", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
			var status ReplayStatus
			err := json.NewDecoder(resp.Body).Decode(&status)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("decode replay status: %w", err)
			}
			return &status, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusConflict {
			if retry == 0 {
				log.Printf("Replay in progress, waiting...")
			}
			time.Sleep(2 * time.Second)
			continue
		}

		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	return nil, fmt.Errorf("timeout waiting for replay slot")
}

// WaitForReplayComplete polls the daemon status until the replay in
// flight finishes. Returns nil when no replay is running.
func (c *Client) WaitForReplayComplete(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, err := c.Status()
		if err != nil {
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if status.Replay == nil || !status.Replay.Running {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for replay to complete")
}

// Backup asks the daemon to back its database up into dir on the
// daemon's filesystem, returning the backup path.
func (c *Client) Backup(dir string) (string, error) {
	path := "/api/backup"
	if dir != "" {
		path = fmt.Sprintf("%s?dir=%s", path, dir)
	}
	var result map[string]string
	if err := c.postJSON(path, nil, &result); err != nil {
		return "", err
	}
	return result["path"], nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.HTTPClient.Post(c.BaseURL+path, "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
