package meshwire

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsebot/pulse/internal/metrics"
	"github.com/pulsebot/pulse/internal/pipeline"
	"github.com/pulsebot/pulse/internal/store"
)

type fakeResponder struct {
	mu    sync.Mutex
	calls []string
	reply string
}

func (f *fakeResponder) Respond(ctx context.Context, text string) pipeline.Output {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.reply == "" {
		return pipeline.Output{}
	}
	return pipeline.Output{Reply: f.reply, Handled: true}
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeHistory struct {
	mu      sync.Mutex
	appends []store.AppendMessageInput
}

func (f *fakeHistory) AppendMessage(ctx context.Context, input store.AppendMessageInput) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, input)
	return store.Message{ID: "msg-1", ConversationID: input.ConversationID}, nil
}

func (f *fakeHistory) snapshot() []store.AppendMessageInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.AppendMessageInput{}, f.appends...)
}

type fakeNode struct {
	server    *httptest.Server
	upgrader  websocket.Upgrader
	envelopes []messageEnvelope
	dropFast  bool

	mu    sync.Mutex
	sent  []string
	sendC chan struct{}
}

func newFakeNode(envelopes []messageEnvelope) *fakeNode {
	node := &fakeNode{envelopes: envelopes, sendC: make(chan struct{}, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/subscribe", node.handleSubscribe)
	mux.HandleFunc("/conversations/", node.handleSend)
	node.server = httptest.NewServer(mux)
	return node
}

func (n *fakeNode) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for _, envelope := range n.envelopes {
		if err := conn.WriteJSON(envelope); err != nil {
			return
		}
	}
	if n.dropFast {
		return
	}
	// Keep the subscription open so the connector does not reconnect
	// while the test inspects state.
	time.Sleep(2 * time.Second)
}

func (n *fakeNode) handleSend(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var request sendRequest
	_ = json.Unmarshal(body, &request)
	n.mu.Lock()
	n.sent = append(n.sent, r.URL.Path+"|"+request.Content)
	n.mu.Unlock()
	select {
	case n.sendC <- struct{}{}:
	default:
	}
	w.WriteHeader(http.StatusOK)
}

func (n *fakeNode) sentMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.sent...)
}

func (n *fakeNode) close() {
	n.server.Close()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConnector(node *fakeNode, responder Responder, history ConversationStore, registry *metrics.Registry) *Connector {
	return New(Config{
		NodeURL:      node.server.URL,
		AgentAddress: "agent-addr",
		Reconnect:    50 * time.Millisecond,
	}, responder, history, registry, testLogger())
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConnectorRepliesToTextMessage(t *testing.T) {
	node := newFakeNode([]messageEnvelope{{
		MessageID:      "m-1",
		ConversationID: "conv-1",
		SenderAddress:  "peer-1",
		ContentType:    "text",
		Content:        "Show me @vitalik profile",
	}})
	defer node.close()

	responder := &fakeResponder{reply: "Name: Vitalik"}
	history := &fakeHistory{}
	registry := metrics.NewRegistry()
	connector := newTestConnector(node, responder, history, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = connector.Start(ctx)
		close(done)
	}()

	select {
	case <-node.sendC:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reply delivery")
	}

	sent := node.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected one sent message, got %d", len(sent))
	}
	if sent[0] != "/conversations/conv-1/messages|Name: Vitalik" {
		t.Fatalf("unexpected sent message: %s", sent[0])
	}
	if responder.callCount() != 1 {
		t.Fatalf("expected one responder call, got %d", responder.callCount())
	}

	waitFor(t, 2*time.Second, func() bool { return len(history.snapshot()) == 2 })
	appends := history.snapshot()
	if appends[0].Direction != store.DirectionIncoming || appends[0].Content != "Show me @vitalik profile" {
		t.Fatalf("unexpected inbound record: %+v", appends[0])
	}
	if appends[1].Direction != store.DirectionOutgoing || appends[1].Sender != "agent-addr" {
		t.Fatalf("unexpected outbound record: %+v", appends[1])
	}
	if got := registry.Snapshot()["replies_sent"]; got != 1 {
		t.Fatalf("expected one reply counted, got %d", got)
	}

	if !connector.Connected() {
		t.Fatal("expected connector to report connected")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connector did not stop on cancel")
	}
}

func TestConnectorIgnoresNonTextAndOwnMessages(t *testing.T) {
	node := newFakeNode([]messageEnvelope{
		{MessageID: "m-1", ConversationID: "conv-1", SenderAddress: "peer-1", ContentType: "image", Content: "binary"},
		{MessageID: "m-2", ConversationID: "conv-1", SenderAddress: "agent-addr", ContentType: "text", Content: "my own reply"},
		{MessageID: "m-3", ConversationID: "conv-1", SenderAddress: "peer-1", ContentType: "text", Content: "  "},
		{MessageID: "m-4", ConversationID: "conv-1", SenderAddress: "peer-1", ContentType: "text", Content: "real question"},
	})
	defer node.close()

	responder := &fakeResponder{reply: "answer"}
	connector := newTestConnector(node, responder, &fakeHistory{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = connector.Start(ctx) }()

	select {
	case <-node.sendC:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reply delivery")
	}

	if responder.callCount() != 1 {
		t.Fatalf("expected only the text message to reach the responder, got %d calls", responder.callCount())
	}
	sent := node.sentMessages()
	if len(sent) != 1 || !strings.Contains(sent[0], "answer") {
		t.Fatalf("unexpected sent messages: %v", sent)
	}
}

func TestConnectorSkipsReplyWhenUnhandled(t *testing.T) {
	node := newFakeNode([]messageEnvelope{{
		MessageID:      "m-1",
		ConversationID: "conv-1",
		SenderAddress:  "peer-1",
		ContentType:    "text",
		Content:        "hello",
	}})
	defer node.close()

	responder := &fakeResponder{}
	history := &fakeHistory{}
	connector := newTestConnector(node, responder, history, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = connector.Start(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return responder.callCount() == 1 })
	waitFor(t, 2*time.Second, func() bool { return len(history.snapshot()) == 1 })
	if sent := node.sentMessages(); len(sent) != 0 {
		t.Fatalf("expected no sent messages, got %v", sent)
	}
}

func TestConnectorSessionsDoNotLeakGoroutines(t *testing.T) {
	node := newFakeNode(nil)
	node.dropFast = true
	defer node.close()

	connector := newTestConnector(node, &fakeResponder{}, &fakeHistory{}, nil)

	baseline := runtime.NumGoroutine()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = connector.Start(ctx)
		close(done)
	}()

	// Each session the node drops spawns a close watchdog; let a batch
	// of reconnects run so a leak would accumulate.
	time.Sleep(600 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connector did not stop on cancel")
	}

	waitFor(t, 2*time.Second, func() bool {
		return runtime.NumGoroutine() <= baseline+2
	})
}

func TestPublishValidatesInput(t *testing.T) {
	node := newFakeNode(nil)
	defer node.close()
	connector := newTestConnector(node, &fakeResponder{}, nil, nil)

	if err := connector.Publish(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for missing conversation id")
	}
	if err := connector.Publish(context.Background(), "conv-1", "   "); err != nil {
		t.Fatalf("blank content should be a no-op, got %v", err)
	}
	if sent := node.sentMessages(); len(sent) != 0 {
		t.Fatalf("expected no sent messages, got %v", sent)
	}
}

func TestPublishSurfacesNodeErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversation not found", http.StatusNotFound)
	}))
	defer server.Close()

	connector := New(Config{NodeURL: server.URL, AgentAddress: "agent-addr"}, &fakeResponder{}, nil, nil, testLogger())
	err := connector.Publish(context.Background(), "conv-404", "hi")
	if err == nil || !strings.Contains(err.Error(), "status=404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSubscribeURL(t *testing.T) {
	connector := New(Config{NodeURL: "http://localhost:5555", AgentAddress: "addr with space"}, nil, nil, nil, testLogger())
	got := connector.subscribeURL()
	want := "ws://localhost:5555/subscribe?address=addr+with+space"
	if got != want {
		t.Fatalf("subscribe url mismatch: got %s want %s", got, want)
	}
}
