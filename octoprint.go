package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// OctoPrintClient handles communication with the OctoPrint REST API
type OctoPrintClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// OctoPrintVersion represents the version response from OctoPrint
type OctoPrintVersion struct {
	API    string `json:"api"`
	Server string `json:"server"`
	Text   string `json:"text"`
}

// OctoPrintStateFlags represents the printer state flags from OctoPrint
type OctoPrintStateFlags struct {
	Operational   bool `json:"operational"`
	Printing      bool `json:"printing"`
	Paused        bool `json:"paused"`
	Pausing       bool `json:"pausing"`
	Cancelling    bool `json:"cancelling"`
	Error         bool `json:"error"`
	Ready         bool `json:"ready"`
	ClosedOrError bool `json:"closedOrError"`
}

// OctoPrintStatus represents the printer status response from OctoPrint
type OctoPrintStatus struct {
	State struct {
		Text  string              `json:"text"`
		Flags OctoPrintStateFlags `json:"flags"`
	} `json:"state"`
}

// OctoPrintJob represents the job response from OctoPrint
type OctoPrintJob struct {
	Job struct {
		File struct {
			Name    string `json:"name"`
			Display string `json:"display"`
			Path    string `json:"path"`
			Size    int64  `json:"size"`
		} `json:"file"`
		EstimatedPrintTime float64 `json:"estimatedPrintTime"`
	} `json:"job"`
	Progress struct {
		Completion    float64 `json:"completion"`
		PrintTime     int     `json:"printTime"`
		PrintTimeLeft int     `json:"printTimeLeft"`
	} `json:"progress"`
	State string `json:"state"`
}

// OctoPrintSession represents a passive login response, used to authenticate
// the push socket
type OctoPrintSession struct {
	Name    string `json:"name"`
	Session string `json:"session"`
}

// NewOctoPrintClient creates a new OctoPrint client
func NewOctoPrintClient(baseURL, apiKey string) *OctoPrintClient {
	return &OctoPrintClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: OctoPrintTimeout * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// NewOctoPrintTestClient creates a client with a short timeout for
// connection tests driven from the settings page
func NewOctoPrintTestClient(baseURL, apiKey string) *OctoPrintClient {
	client := NewOctoPrintClient(baseURL, apiKey)
	client.httpClient.Timeout = OctoPrintTestTimeout * time.Second
	return client
}

// addAPIKey adds API key authentication to the request
func (c *OctoPrintClient) addAPIKey(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

// GetVersion retrieves the server version information
func (c *OctoPrintClient) GetVersion() (*OctoPrintVersion, error) {
	req, err := http.NewRequest("GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create version request: %w", err)
	}

	c.addAPIKey(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get version from OctoPrint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("octoprint API error: %d - %s", resp.StatusCode, string(body))
	}

	var version OctoPrintVersion
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return nil, fmt.Errorf("failed to decode version response: %w", err)
	}

	return &version, nil
}

// Login performs a passive login and returns the session used to authenticate
// the push socket. Requires a valid API key.
func (c *OctoPrintClient) Login() (*OctoPrintSession, error) {
	jsonData, err := json.Marshal(map[string]bool{"passive": true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL+"/api/login", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAPIKey(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to log in to OctoPrint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("octoprint API error: %d - %s", resp.StatusCode, string(body))
	}

	var session OctoPrintSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	return &session, nil
}

// GetStatus retrieves the current printer state flags. A 409 means the
// printer is not operational (disconnected or errored) and maps to a status
// with the closedOrError flag set rather than an error.
func (c *OctoPrintClient) GetStatus() (*OctoPrintStatus, error) {
	req, err := http.NewRequest("GET", c.baseURL+"/api/printer?exclude=temperature,sd", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	c.addAPIKey(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get status from OctoPrint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		status := &OctoPrintStatus{}
		status.State.Text = "Offline"
		status.State.Flags.ClosedOrError = true
		return status, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("octoprint API error: %d - %s", resp.StatusCode, string(body))
	}

	var status OctoPrintStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &status, nil
}

// GetJob retrieves the current job information. 204 means no job is loaded.
func (c *OctoPrintClient) GetJob() (*OctoPrintJob, error) {
	req, err := http.NewRequest("GET", c.baseURL+"/api/job", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create job request: %w", err)
	}

	c.addAPIKey(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get job info from OctoPrint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("octoprint API error: %d - %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode == http.StatusNoContent {
		return &OctoPrintJob{}, nil
	}

	var job OctoPrintJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job response: %w", err)
	}

	return &job, nil
}

// IsPrinting reports whether the printer is actively printing. Paused prints
// do not count as printing, matching the flag semantics of the server.
func (c *OctoPrintClient) IsPrinting() (bool, error) {
	status, err := c.GetStatus()
	if err != nil {
		return false, err
	}
	return status.State.Flags.Printing, nil
}

// SendDisplayCommand shows a message on the printer's LCD via M117
func (c *OctoPrintClient) SendDisplayCommand(text string) error {
	jsonData, err := json.Marshal(map[string]string{"command": "M117 " + text})
	if err != nil {
		return fmt.Errorf("failed to marshal printer command: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL+"/api/printer/command", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create printer command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAPIKey(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send printer command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("octoprint API error: %d - %s", resp.StatusCode, string(body))
	}

	return nil
}

// TestConnection tests the connection to OctoPrint
func (c *OctoPrintClient) TestConnection() error {
	_, err := c.GetVersion()
	return err
}

// CheckServerVersion fetches the server version and warns when it predates
// the tested minimum. Parse failures are logged, never fatal.
func (c *OctoPrintClient) CheckServerVersion() {
	version, err := c.GetVersion()
	if err != nil {
		log.Printf("⚠️ [OctoPrint] Could not fetch server version: %v", err)
		return
	}

	server, err := semver.NewVersion(strings.TrimPrefix(version.Server, "v"))
	if err != nil {
		log.Printf("⚠️ [OctoPrint] Could not parse server version %q: %v", version.Server, err)
		return
	}

	minimum := semver.MustParse(MinOctoPrintVersion)
	if server.LessThan(minimum) {
		log.Printf("⚠️ [OctoPrint] Server %s is older than the tested minimum %s, push events may be unavailable", version.Server, MinOctoPrintVersion)
		return
	}

	log.Printf("✅ [OctoPrint] Connected to %s", version.Text)
}
