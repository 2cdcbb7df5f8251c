package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pulsebot/pulse/internal/store"
)

type conversationView struct {
	ID               string        `json:"id"`
	PeerAddress      string        `json:"peer_address"`
	LastActivityUnix int64         `json:"last_activity_unix"`
	Messages         []messageView `json:"messages"`
}

type messageView struct {
	ID            string `json:"id"`
	Sender        string `json:"sender"`
	Content       string `json:"content"`
	Direction     string `json:"direction"`
	CreatedAtUnix int64  `json:"created_at_unix"`
}

func (r *router) handleConversations(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := 50
	if raw := strings.TrimSpace(req.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	conversations, err := r.deps.Store.ListConversations(req.Context(), limit)
	if err != nil {
		r.deps.Logger.Error("list conversations failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list conversations failed"})
		return
	}

	views := make([]conversationView, 0, len(conversations))
	for _, conversation := range conversations {
		views = append(views, newConversationView(conversation))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": views})
}

type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

func (r *router) handleConversationsSend(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Publisher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "message delivery is unavailable"})
		return
	}

	var payload sendRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	conversationID := strings.TrimSpace(payload.ConversationID)
	content := strings.TrimSpace(payload.Content)
	if conversationID == "" || content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id and content are required"})
		return
	}

	if err := r.deps.Publisher.Publish(req.Context(), conversationID, content); err != nil {
		r.deps.Logger.Error("publish message failed", "error", err, "conversation_id", conversationID)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "message delivery failed"})
		return
	}

	message, err := r.deps.Store.AppendMessage(req.Context(), store.AppendMessageInput{
		ConversationID: conversationID,
		Sender:         r.deps.Config.AgentAddress,
		Content:        content,
		Direction:      store.DirectionOutgoing,
	})
	if err != nil {
		r.deps.Logger.Error("record outgoing message failed", "error", err, "conversation_id", conversationID)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":          "sent",
		"conversation_id": conversationID,
		"message_id":      message.ID,
	})
}

func newConversationView(conversation store.ConversationWithMessages) conversationView {
	messages := make([]messageView, 0, len(conversation.Messages))
	for _, message := range conversation.Messages {
		messages = append(messages, messageView{
			ID:            message.ID,
			Sender:        message.Sender,
			Content:       message.Content,
			Direction:     message.Direction,
			CreatedAtUnix: message.CreatedAt.Unix(),
		})
	}
	return conversationView{
		ID:               conversation.ID,
		PeerAddress:      conversation.PeerAddress,
		LastActivityUnix: conversation.LastActivity.Unix(),
		Messages:         messages,
	}
}
