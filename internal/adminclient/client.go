package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulsebot/pulse/internal/config"
)

// Client talks to a running pulse instance over its HTTP API. Used by
// the CLI commands.
type Client struct {
	baseURL string
	http    *http.Client
}

type ChatRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
}

type ChatResponse struct {
	Reply   string `json:"reply"`
	Handled bool   `json:"handled"`
}

type Message struct {
	ID            string `json:"id"`
	Sender        string `json:"sender"`
	Content       string `json:"content"`
	Direction     string `json:"direction"`
	CreatedAtUnix int64  `json:"created_at_unix"`
}

type Conversation struct {
	ID               string    `json:"id"`
	PeerAddress      string    `json:"peer_address"`
	LastActivityUnix int64     `json:"last_activity_unix"`
	Messages         []Message `json:"messages"`
}

type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type AgentStatus struct {
	IsRunning       bool             `json:"is_running"`
	ClientConnected bool             `json:"client_connected"`
	Metrics         map[string]int64 `json:"metrics"`
}

func New(cfg config.Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if c == nil || timeout < time.Second {
		return c
	}
	clone := *c
	httpClone := *c.http
	httpClone.Timeout = timeout
	clone.http = &httpClone
	return &clone
}

func (c *Client) Chat(ctx context.Context, request ChatRequest) (ChatResponse, error) {
	var response ChatResponse
	err := c.postJSON(ctx, "/api/v1/chat", request, &response)
	return response, err
}

func (c *Client) Conversations(ctx context.Context, limit int) ([]Conversation, error) {
	path := "/api/v1/conversations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	var response ConversationsResponse
	if err := c.doJSON(req, &response); err != nil {
		return nil, err
	}
	return response.Conversations, nil
}

func (c *Client) AgentStart(ctx context.Context) (AgentStatus, error) {
	var status AgentStatus
	err := c.postJSON(ctx, "/api/v1/agent/start", nil, &status)
	return status, err
}

func (c *Client) AgentStop(ctx context.Context) (AgentStatus, error) {
	var status AgentStatus
	err := c.postJSON(ctx, "/api/v1/agent/stop", nil, &status)
	return status, err
}

func (c *Client) AgentStatus(ctx context.Context) (AgentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/agent/status", nil)
	if err != nil {
		return AgentStatus{}, err
	}
	var status AgentStatus
	if err := c.doJSON(req, &status); err != nil {
		return AgentStatus{}, err
	}
	return status, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var apiError struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiError)
		if strings.TrimSpace(apiError.Error) == "" {
			apiError.Error = res.Status
		}
		return errors.New(apiError.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
