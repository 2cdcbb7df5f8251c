package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pulsebot/pulse/internal/store"
)

const chatConversationID = "api-chat"

type chatRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// handleChat runs one message through the full pipeline without going
// through the messaging network. Useful for local poking and the CLI.
func (r *router) handleChat(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Responder == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "responder is unavailable"})
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	sender := strings.TrimSpace(payload.Sender)
	if sender == "" {
		sender = "api"
	}

	r.recordChatMessage(req, sender, text, store.DirectionIncoming)
	output := r.deps.Responder.Respond(req.Context(), text)
	if output.Handled && strings.TrimSpace(output.Reply) != "" {
		r.recordChatMessage(req, r.deps.Config.AgentAddress, output.Reply, store.DirectionOutgoing)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reply":   output.Reply,
		"handled": output.Handled,
	})
}

func (r *router) recordChatMessage(req *http.Request, sender, content, direction string) {
	if r.deps.Store == nil {
		return
	}
	if _, err := r.deps.Store.AppendMessage(req.Context(), store.AppendMessageInput{
		ConversationID: chatConversationID,
		PeerAddress:    "api",
		Sender:         sender,
		Content:        content,
		Direction:      direction,
	}); err != nil {
		r.deps.Logger.Error("record chat message failed", "error", err, "direction", direction)
	}
}
