package meshwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsebot/pulse/internal/metrics"
	"github.com/pulsebot/pulse/internal/pipeline"
	"github.com/pulsebot/pulse/internal/store"
)

const textContentType = "text"

// Responder produces the reply for one inbound message.
type Responder interface {
	Respond(ctx context.Context, text string) pipeline.Output
}

// ConversationStore mirrors the traffic the connector sees so the web
// UI can poll it.
type ConversationStore interface {
	AppendMessage(ctx context.Context, input store.AppendMessageInput) (store.Message, error)
}

// Connector subscribes to a local meshwire node over websocket and
// replies through the node's HTTP send endpoint. Messages are handled
// strictly one at a time: the next envelope is not read until the
// reply for the previous one has been delivered.
type Connector struct {
	nodeURL      string
	agentAddress string
	reconnect    time.Duration
	sendTimeout  time.Duration
	responder    Responder
	history      ConversationStore
	registry     *metrics.Registry
	httpClient   *http.Client
	logger       *slog.Logger
	connected    atomic.Bool
}

type Config struct {
	NodeURL      string
	AgentAddress string
	Reconnect    time.Duration
	SendTimeout  time.Duration
}

func New(cfg Config, responder Responder, history ConversationStore, registry *metrics.Registry, logger *slog.Logger) *Connector {
	nodeURL := strings.TrimRight(strings.TrimSpace(cfg.NodeURL), "/")
	if nodeURL == "" {
		nodeURL = "http://localhost:5555"
	}
	reconnect := cfg.Reconnect
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &Connector{
		nodeURL:      nodeURL,
		agentAddress: strings.TrimSpace(cfg.AgentAddress),
		reconnect:    reconnect,
		sendTimeout:  sendTimeout,
		responder:    responder,
		history:      history,
		registry:     registry,
		httpClient:   &http.Client{Timeout: sendTimeout},
		logger:       logger,
	}
}

func (c *Connector) Name() string {
	return "meshwire"
}

// Connected reports whether the websocket subscription is currently
// established.
func (c *Connector) Connected() bool {
	return c.connected.Load()
}

func (c *Connector) Start(ctx context.Context) error {
	if c.agentAddress == "" {
		c.logger.Info("connector disabled, agent address missing")
		<-ctx.Done()
		return nil
	}

	c.logger.Info("connector started", "node_url", c.nodeURL, "agent_address", c.agentAddress)
	for {
		if ctx.Err() != nil {
			c.logger.Info("connector stopped")
			return nil
		}
		if err := c.runSession(ctx); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("connector stopped")
				return nil
			}
			c.logger.Error("meshwire session ended, reconnecting", "error", err, "retry_in", c.reconnect.String())
			select {
			case <-ctx.Done():
				c.logger.Info("connector stopped")
				return nil
			case <-time.After(c.reconnect):
			}
		}
	}
}

func (c *Connector) runSession(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.subscribeURL(), nil)
	if err != nil {
		return fmt.Errorf("dial meshwire node: %w", err)
	}
	defer conn.Close()

	c.connected.Store(true)
	defer c.connected.Store(false)
	c.logger.Info("subscribed to node", "address", c.agentAddress)

	// Unblock the read loop on cancellation; the session-done channel
	// lets the watchdog exit when the session dies on its own.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-sessionDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read envelope: %w", err)
		}

		var envelope messageEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.Error("decode envelope failed", "error", err)
			continue
		}
		if err := c.handleEnvelope(ctx, envelope); err != nil {
			c.logger.Error("handle message failed", "error", err, "conversation_id", envelope.ConversationID)
		}
	}
}

func (c *Connector) handleEnvelope(ctx context.Context, envelope messageEnvelope) error {
	if !strings.EqualFold(strings.TrimSpace(envelope.ContentType), textContentType) {
		return nil
	}
	if strings.EqualFold(strings.TrimSpace(envelope.SenderAddress), c.agentAddress) {
		return nil
	}
	text := strings.TrimSpace(envelope.Content)
	if text == "" {
		return nil
	}

	c.recordMessage(ctx, envelope.ConversationID, envelope.SenderAddress, envelope.SenderAddress, text, store.DirectionIncoming)

	output := c.responder.Respond(ctx, text)
	if !output.Handled || strings.TrimSpace(output.Reply) == "" {
		return nil
	}

	if err := c.Publish(ctx, envelope.ConversationID, output.Reply); err != nil {
		return err
	}
	c.recordMessage(ctx, envelope.ConversationID, envelope.SenderAddress, c.agentAddress, output.Reply, store.DirectionOutgoing)
	return nil
}

// Publish delivers one text message into a conversation through the
// node's send endpoint.
func (c *Connector) Publish(ctx context.Context, conversationID, text string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	payload, err := json.Marshal(sendRequest{ContentType: textContentType, Content: content})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/conversations/%s/messages", c.nodeURL, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("meshwire send failed: status=%d body=%s", res.StatusCode, string(body))
	}
	if c.registry != nil {
		c.registry.ReplySent()
	}
	return nil
}

func (c *Connector) recordMessage(ctx context.Context, conversationID, peerAddress, sender, content, direction string) {
	if c.history == nil {
		return
	}
	if _, err := c.history.AppendMessage(ctx, store.AppendMessageInput{
		ConversationID: conversationID,
		PeerAddress:    peerAddress,
		Sender:         sender,
		Content:        content,
		Direction:      direction,
	}); err != nil {
		c.logger.Error("record message failed", "error", err, "conversation_id", conversationID, "direction", direction)
	}
}

func (c *Connector) subscribeURL() string {
	base := c.nodeURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/subscribe?address=" + url.QueryEscape(c.agentAddress)
}

type messageEnvelope struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderAddress  string `json:"sender_address"`
	ContentType    string `json:"content_type"`
	Content        string `json:"content"`
	SentAt         string `json:"sent_at"`
}

type sendRequest struct {
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}
