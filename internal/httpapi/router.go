package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pulsebot/pulse/internal/config"
	"github.com/pulsebot/pulse/internal/metrics"
	"github.com/pulsebot/pulse/internal/pipeline"
	"github.com/pulsebot/pulse/internal/store"
)

// ListenerController starts and stops the background message listener.
type ListenerController interface {
	Start() bool
	Stop() bool
	Running() bool
}

// ConnectionReporter reports whether the node subscription is live.
type ConnectionReporter interface {
	Connected() bool
}

// Publisher delivers an outgoing message into a conversation.
type Publisher interface {
	Publish(ctx context.Context, conversationID, text string) error
}

// Responder answers one message through the full pipeline.
type Responder interface {
	Respond(ctx context.Context, text string) pipeline.Output
}

type Dependencies struct {
	Config     config.Config
	Store      *store.Store
	Responder  Responder
	Listener   ListenerController
	Connection ConnectionReporter
	Publisher  Publisher
	Metrics    *metrics.Registry
	Logger     *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/chat", rt.handleChat)
	mux.HandleFunc("/api/v1/conversations", rt.handleConversations)
	mux.HandleFunc("/api/v1/conversations/send", rt.handleConversationsSend)
	mux.HandleFunc("/api/v1/agent/start", rt.handleAgentStart)
	mux.HandleFunc("/api/v1/agent/stop", rt.handleAgentStop)
	mux.HandleFunc("/api/v1/agent/status", rt.handleAgentStatus)
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":          "pulse",
		"environment":   r.deps.Config.Environment,
		"agent_address": r.deps.Config.AgentAddress,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
