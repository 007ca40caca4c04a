package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ReminderMeta carries dispatch context for sinks that forward structured
// payloads.
type ReminderMeta struct {
	JobName        string    `json:"job,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	Tier           string    `json:"tier"`
}

// Sink delivers a rendered reminder to one output channel. Sinks fail
// independently; an error is logged by the dispatcher and never suppresses
// the other sinks or cancels the schedule.
type Sink interface {
	Name() string
	Send(message string, meta ReminderMeta) error
}

// lcdSink shows the reminder on the printer's LCD via M117
type lcdSink struct {
	client *OctoPrintClient
}

func (s *lcdSink) Name() string { return "lcd" }

func (s *lcdSink) Send(message string, meta ReminderMeta) error {
	return s.client.SendDisplayCommand(message)
}

// PopupBroadcaster pushes popup messages to connected dashboard clients.
// The web server's websocket hub implements it.
type PopupBroadcaster interface {
	BroadcastReminder(message string, meta ReminderMeta)
}

// popupSink shows the reminder as a popup on the dashboard
type popupSink struct {
	broadcaster PopupBroadcaster
}

func (s *popupSink) Name() string { return "popup" }

func (s *popupSink) Send(message string, meta ReminderMeta) error {
	s.broadcaster.BroadcastReminder(message, meta)
	return nil
}

// WebhookClient posts reminder notifications to an external endpoint
type WebhookClient struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
}

// webhookPayload is the JSON body posted to the webhook endpoint
type webhookPayload struct {
	Text           string    `json:"text"`
	JobName        string    `json:"job,omitempty"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	Tier           string    `json:"tier"`
	FinishedAt     time.Time `json:"finished_at"`
}

// NewWebhookClient creates a new webhook client
func NewWebhookClient(baseURL string, timeout int, username, password string) *WebhookClient {
	return &WebhookClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		username: username,
		password: password,
	}
}

// addAuthHeader adds Basic Authentication to the request if both username
// and password are provided
func (c *WebhookClient) addAuthHeader(req *http.Request) {
	if c.username != "" && c.password != "" {
		auth := c.username + ":" + c.password
		encoded := base64.StdEncoding.EncodeToString([]byte(auth))
		req.Header.Set("Authorization", "Basic "+encoded)
	}
}

// Notify posts one reminder to the webhook endpoint
func (c *WebhookClient) Notify(message string, meta ReminderMeta) error {
	payload := webhookPayload{
		Text:           message,
		JobName:        meta.JobName,
		ElapsedSeconds: meta.ElapsedSeconds,
		Tier:           meta.Tier,
		FinishedAt:     meta.FinishedAt,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// webhookSink forwards the reminder to the configured webhook URL
type webhookSink struct {
	client *WebhookClient
}

func (s *webhookSink) Name() string { return "webhook" }

func (s *webhookSink) Send(message string, meta ReminderMeta) error {
	return s.client.Notify(message, meta)
}
